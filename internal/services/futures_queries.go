package services

import (
	"context"
	"fmt"
	"time"

	"github.com/betbot/goperp/internal/domain"
)

// 查询路径。与变更类操作不同：
//   - dry-run 不短路查询，持仓/余额/订单永远实时查交易所；
//   - platform 为空表示扇出到所有已装配平台，单个平台失败只丢弃该平台
//     的结果（warn 日志），不中断聚合。可用性优先于完整性。

// GetOpenOrders 查询未成交订单
func (s *FuturesService) GetOpenOrders(ctx context.Context, platform domain.Platform, symbol string) ([]domain.FuturesOpenOrder, error) {
	if platform != "" {
		adapter, ok := s.adapter(platform)
		if !ok {
			return nil, fmt.Errorf("%s not configured", platform)
		}
		return adapter.GetOpenOrders(ctx, symbol)
	}

	var all []domain.FuturesOpenOrder
	for _, p := range s.EnabledPlatforms() {
		adapter, _ := s.adapter(p)
		orders, err := adapter.GetOpenOrders(ctx, symbol)
		if err != nil {
			log.Warnf("⚠️ 查询未成交订单失败（跳过该平台）: platform=%s err=%v", p, err)
			continue
		}
		all = append(all, orders...)
	}
	return all, nil
}

// GetPositions 查询持仓
func (s *FuturesService) GetPositions(ctx context.Context, platform domain.Platform, symbol string) ([]domain.FuturesPosition, error) {
	if platform != "" {
		adapter, ok := s.adapter(platform)
		if !ok {
			return nil, fmt.Errorf("%s not configured", platform)
		}
		return adapter.GetPositions(ctx, symbol)
	}

	var all []domain.FuturesPosition
	for _, p := range s.EnabledPlatforms() {
		adapter, _ := s.adapter(p)
		positions, err := adapter.GetPositions(ctx, symbol)
		if err != nil {
			log.Warnf("⚠️ 查询持仓失败（跳过该平台）: platform=%s err=%v", p, err)
			continue
		}
		all = append(all, positions...)
	}
	return all, nil
}

// GetBalance 查询余额
func (s *FuturesService) GetBalance(ctx context.Context, platform domain.Platform) ([]domain.FuturesBalance, error) {
	if platform != "" {
		adapter, ok := s.adapter(platform)
		if !ok {
			return nil, fmt.Errorf("%s not configured", platform)
		}
		return adapter.GetBalance(ctx)
	}

	var all []domain.FuturesBalance
	for _, p := range s.EnabledPlatforms() {
		adapter, _ := s.adapter(p)
		balances, err := adapter.GetBalance(ctx)
		if err != nil {
			log.Warnf("⚠️ 查询余额失败（跳过该平台）: platform=%s err=%v", p, err)
			continue
		}
		all = append(all, balances...)
	}
	return all, nil
}

// GetFundingRate 查询资金费率（必须指定平台）
func (s *FuturesService) GetFundingRate(ctx context.Context, platform domain.Platform, symbol string) (*domain.FundingRate, error) {
	adapter, ok := s.adapter(platform)
	if !ok {
		return nil, fmt.Errorf("%s not configured", platform)
	}
	return adapter.GetFundingRate(ctx, symbol)
}

// GetIncomeHistory 查询收益流水（platform 为空 = 全平台扇出）
func (s *FuturesService) GetIncomeHistory(ctx context.Context, platform domain.Platform, symbol string, start, end time.Time, limit int) ([]domain.IncomeRecord, error) {
	if platform != "" {
		adapter, ok := s.adapter(platform)
		if !ok {
			return nil, fmt.Errorf("%s not configured", platform)
		}
		return adapter.GetIncomeHistory(ctx, symbol, start, end, limit)
	}

	var all []domain.IncomeRecord
	for _, p := range s.EnabledPlatforms() {
		adapter, _ := s.adapter(p)
		records, err := adapter.GetIncomeHistory(ctx, symbol, start, end, limit)
		if err != nil {
			log.Warnf("⚠️ 查询收益流水失败（跳过该平台）: platform=%s err=%v", p, err)
			continue
		}
		all = append(all, records...)
	}
	return all, nil
}
