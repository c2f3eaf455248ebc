package services

import (
	"context"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/risk"
)

// 保证金/杠杆协调。这两个操作折叠为 bool：上层（agent 工具）只关心
// 成功与否，失败细节留在日志里。

// SetLeverage 设置杠杆。dry-run 直接成功，零交易所调用。
func (s *FuturesService) SetLeverage(ctx context.Context, platform domain.Platform, symbol string, leverage int) bool {
	if leverage <= 0 {
		log.Warnf("⚠️ 杠杆必须大于 0: platform=%s symbol=%s leverage=%d", platform, symbol, leverage)
		return false
	}
	if s.cfg.DryRun {
		log.Infof("📝 DRY-RUN 设置杠杆: platform=%s symbol=%s leverage=%d", platform, symbol, leverage)
		return true
	}

	adapter, ok := s.adapter(platform)
	if !ok {
		log.Warnf("⚠️ 平台未配置: %s", platform)
		return false
	}
	if err := adapter.SetLeverage(ctx, symbol, leverage); err != nil {
		log.Warnf("❌ 设置杠杆失败: platform=%s symbol=%s leverage=%d err=%v", platform, symbol, leverage, err)
		return false
	}
	log.Infof("✅ 杠杆已设置: platform=%s symbol=%s leverage=%d", platform, symbol, leverage)
	return true
}

// SetMarginType 设置保证金模式。dry-run 直接成功，零交易所调用。
func (s *FuturesService) SetMarginType(ctx context.Context, platform domain.Platform, symbol string, marginType domain.MarginType) bool {
	if marginType != domain.MarginTypeIsolated && marginType != domain.MarginTypeCross {
		log.Warnf("⚠️ 非法保证金模式: %s", marginType)
		return false
	}
	if s.cfg.DryRun {
		log.Infof("📝 DRY-RUN 设置保证金模式: platform=%s symbol=%s marginType=%s", platform, symbol, marginType)
		return true
	}

	adapter, ok := s.adapter(platform)
	if !ok {
		log.Warnf("⚠️ 平台未配置: %s", platform)
		return false
	}
	if err := adapter.SetMarginType(ctx, symbol, marginType); err != nil {
		log.Warnf("❌ 设置保证金模式失败: platform=%s symbol=%s marginType=%s err=%v", platform, symbol, marginType, err)
		return false
	}
	log.Infof("✅ 保证金模式已设置: platform=%s symbol=%s marginType=%s", platform, symbol, marginType)
	return true
}

// CalculateLiquidationPrice 估算强平价（纯函数，不触网）
func (s *FuturesService) CalculateLiquidationPrice(side domain.Side, entryPrice float64, leverage int, maintenanceMarginRate float64) float64 {
	return risk.EstimateLiquidationPrice(entryPrice, leverage, side == domain.SideLong, maintenanceMarginRate)
}
