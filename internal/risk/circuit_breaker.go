package risk

import (
	"fmt"
	"sync/atomic"
)

// ErrTradingHalted 表示熔断器已打开，变更类操作（下单/撤单/平仓）被拒绝。
var ErrTradingHalted = fmt.Errorf("trading halted by circuit breaker")

// CircuitBreaker 连续失败熔断器。
// 下单路径的快路径检查只读原子变量，无锁。
//
// 触发条件：
//   - 连续 maxConsecutiveFailures 次下单失败（阈值 <= 0 表示关闭该限制）
//   - 人工 Halt()
//
// 触发后必须人工 Resume() 才恢复，不做自动半开探测：
// 合约下单连续失败通常意味着凭证失效或交易所异常，自动恢复只会继续烧钱。
type CircuitBreaker struct {
	halted              atomic.Bool
	consecutiveFailures atomic.Int64

	maxConsecutiveFailures int64
}

// NewCircuitBreaker 创建熔断器。maxConsecutiveFailures <= 0 时仅支持人工熔断。
func NewCircuitBreaker(maxConsecutiveFailures int64) *CircuitBreaker {
	return &CircuitBreaker{maxConsecutiveFailures: maxConsecutiveFailures}
}

// AllowTrading 检查当前是否允许变更类操作。熔断打开时返回 ErrTradingHalted。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}
	if cb.halted.Load() {
		return ErrTradingHalted
	}
	if cb.maxConsecutiveFailures > 0 &&
		cb.consecutiveFailures.Load() >= cb.maxConsecutiveFailures {
		cb.halted.Store(true)
		return ErrTradingHalted
	}
	return nil
}

// RecordSuccess 一次下单成功后调用，清空连续失败计数。
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveFailures.Store(0)
}

// RecordFailure 一次下单失败后调用，累计连续失败计数。
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}
	cb.consecutiveFailures.Add(1)
}

// Halt 人工熔断（人工介入或上层检测到严重异常）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
}

// Resume 人工恢复，同时清空连续失败计数。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveFailures.Store(0)
}

// Halted 当前是否处于熔断状态（只读快照，不像 AllowTrading 会触发状态迁移）。
func (cb *CircuitBreaker) Halted() bool {
	return cb != nil && cb.halted.Load()
}

// ConsecutiveFailures 当前连续失败计数。
func (cb *CircuitBreaker) ConsecutiveFailures() int64 {
	if cb == nil {
		return 0
	}
	return cb.consecutiveFailures.Load()
}
