package mexc

import (
	"sync"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/pkg/persistence"
)

// MarginPrefs 按 symbol 记录保证金模式偏好。
// MEXC 没有独立的"设置保证金模式"接口，只能在下单时通过 openType 指定，
// 所以 SetMarginType 在这里只是记住偏好，下次对该 symbol 下单时生效。
// 偏好是进程内状态，并发写同一 symbol 时后写者生效；可选地挂一个
// persistence.Store 做快照，供多实例部署时恢复。
type MarginPrefs struct {
	mu    sync.RWMutex
	prefs map[string]domain.MarginType
	store persistence.Store // 可选
}

// NewMarginPrefs 创建偏好存储。store 可以为 nil。
func NewMarginPrefs(store persistence.Store) *MarginPrefs {
	p := &MarginPrefs{
		prefs: make(map[string]domain.MarginType),
		store: store,
	}
	p.load()
	return p
}

// Set 记录 symbol 的保证金模式偏好
func (p *MarginPrefs) Set(symbol string, marginType domain.MarginType) {
	p.mu.Lock()
	p.prefs[symbol] = marginType
	snapshot := p.snapshotLocked()
	p.mu.Unlock()

	if p.store != nil {
		// 快照失败不影响偏好本身
		_ = p.store.Save(snapshot)
	}
}

// Get 读取 symbol 的偏好，不存在时 ok=false
func (p *MarginPrefs) Get(symbol string) (domain.MarginType, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	mt, ok := p.prefs[symbol]
	return mt, ok
}

func (p *MarginPrefs) snapshotLocked() map[string]domain.MarginType {
	out := make(map[string]domain.MarginType, len(p.prefs))
	for k, v := range p.prefs {
		out[k] = v
	}
	return out
}

func (p *MarginPrefs) load() {
	if p.store == nil {
		return
	}
	var saved map[string]domain.MarginType
	if err := p.store.Load(&saved); err != nil {
		return
	}
	p.mu.Lock()
	for k, v := range saved {
		p.prefs[k] = v
	}
	p.mu.Unlock()
}
