// Package shutdown 提供带超时的优雅关闭编排。
// 各组件（HTTP 服务、账本、调试端点）注册回调，退出时并发执行。
package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/goperp/pkg/logger"
)

// Handler 单个组件的关闭回调。返回错误只用于记录，不会中断其它回调。
type Handler func(ctx context.Context) error

type registration struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器
type Manager struct {
	mu        sync.Mutex
	callbacks []registration
}

// NewManager 创建关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调。name 用于日志定位。
func (m *Manager) OnShutdown(name string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, registration{name: name, fn: fn})
}

// Shutdown 并发执行所有关闭回调（阻塞调用）。
// ctx 应带超时，避免某个回调卡死导致进程无法退出。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}
	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(cb registration) {
			defer wg.Done()
			if err := cb.fn(ctx); err != nil {
				logger.Errorf("关闭 %s 失败: %v", cb.name, err)
			}
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Infof("所有关闭回调已完成")
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
	}
}
