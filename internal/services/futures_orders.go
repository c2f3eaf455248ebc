package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/metrics"
)

// 下单入口。所有变更类操作都经过 placeOrder：
//  1. 尺寸校验（触网前拒绝超限订单）
//  2. dry-run 短路（模拟结果，零交易所调用）
//  3. 平台路由（未配置平台 = 结构化失败，零交易所调用）

// OpenLong 市价开多。leverage <= 0 时用默认杠杆。
// price 是名义价值校验用的参考价（市价单不送价，适配器忽略），
// 传 0 表示调用方没有参考价，校验按 size 本身计。
func (s *FuturesService) OpenLong(ctx context.Context, platform domain.Platform, symbol string, size, price float64, leverage int) *domain.FuturesOrderResult {
	return s.placeOrder(ctx, &domain.FuturesOrderRequest{
		Platform:  platform,
		Symbol:    symbol,
		Side:      domain.SideLong,
		Size:      size,
		Price:     price,
		Leverage:  s.normalizeLeverage(leverage),
		OrderType: domain.OrderTypeMarket,
	})
}

// OpenShort 市价开空
func (s *FuturesService) OpenShort(ctx context.Context, platform domain.Platform, symbol string, size, price float64, leverage int) *domain.FuturesOrderResult {
	return s.placeOrder(ctx, &domain.FuturesOrderRequest{
		Platform:  platform,
		Symbol:    symbol,
		Side:      domain.SideShort,
		Size:      size,
		Price:     price,
		Leverage:  s.normalizeLeverage(leverage),
		OrderType: domain.OrderTypeMarket,
	})
}

// CloseLong 市价平多（size <= 0 时全量平仓）。
// 平多 = 反方向（short）的 reduceOnly 订单。
func (s *FuturesService) CloseLong(ctx context.Context, platform domain.Platform, symbol string, size float64) *domain.FuturesOrderResult {
	req := &domain.FuturesOrderRequest{
		Platform:   platform,
		Symbol:     symbol,
		Side:       domain.SideShort,
		Size:       size,
		OrderType:  domain.OrderTypeMarket,
		ReduceOnly: true,
	}
	if size <= 0 {
		req.Size = 0
		req.ClosePosition = true
	}
	return s.placeOrder(ctx, req)
}

// CloseShort 市价平空
func (s *FuturesService) CloseShort(ctx context.Context, platform domain.Platform, symbol string, size float64) *domain.FuturesOrderResult {
	req := &domain.FuturesOrderRequest{
		Platform:   platform,
		Symbol:     symbol,
		Side:       domain.SideLong,
		Size:       size,
		OrderType:  domain.OrderTypeMarket,
		ReduceOnly: true,
	}
	if size <= 0 {
		req.Size = 0
		req.ClosePosition = true
	}
	return s.placeOrder(ctx, req)
}

// ClosePosition 全量平掉某平台某 symbol 的所有持仓。
// 没有持仓时返回成功、不下任何单。
func (s *FuturesService) ClosePosition(ctx context.Context, platform domain.Platform, symbol string) *domain.FuturesOrderResult {
	if s.cfg.DryRun {
		return s.dryRunResult(ctx, &domain.FuturesOrderRequest{
			Platform:      platform,
			Symbol:        symbol,
			OrderType:     domain.OrderTypeMarket,
			ClosePosition: true,
		})
	}

	adapter, ok := s.adapter(platform)
	if !ok {
		return domain.OrderError("%s not configured", platform)
	}

	positions, err := adapter.GetPositions(ctx, symbol)
	if err != nil {
		return domain.OrderError("查询持仓失败: %v", err)
	}

	var last *domain.FuturesOrderResult
	for _, pos := range positions {
		if pos.Size <= 0 {
			continue
		}
		res := s.placeOrder(ctx, &domain.FuturesOrderRequest{
			Platform:   platform,
			Symbol:     symbol,
			Side:       pos.Side.Opposite(),
			Size:       pos.Size,
			OrderType:  domain.OrderTypeMarket,
			ReduceOnly: true,
		})
		if !res.Success {
			return res
		}
		last = res
	}

	if last == nil {
		log.Infof("平仓请求无持仓可平: platform=%s symbol=%s", platform, symbol)
		return &domain.FuturesOrderResult{Success: true, Status: domain.OrderStatusFilled}
	}
	return last
}

// PlaceLimitOrder 限价单
func (s *FuturesService) PlaceLimitOrder(ctx context.Context, platform domain.Platform, symbol string, side domain.Side, size, price float64, reduceOnly bool) *domain.FuturesOrderResult {
	return s.placeOrder(ctx, &domain.FuturesOrderRequest{
		Platform:    platform,
		Symbol:      symbol,
		Side:        side,
		Size:        size,
		Price:       price,
		OrderType:   domain.OrderTypeLimit,
		TimeInForce: "GTC",
		ReduceOnly:  reduceOnly,
	})
}

// PlaceMarketOrder 市价单
func (s *FuturesService) PlaceMarketOrder(ctx context.Context, platform domain.Platform, symbol string, side domain.Side, size float64, reduceOnly bool) *domain.FuturesOrderResult {
	return s.placeOrder(ctx, &domain.FuturesOrderRequest{
		Platform:   platform,
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		OrderType:  domain.OrderTypeMarket,
		ReduceOnly: reduceOnly,
	})
}

// PlaceStopLoss 给持仓挂止损。positionSide 是被保护持仓的方向，
// 订单方向取反、reduceOnly。
func (s *FuturesService) PlaceStopLoss(ctx context.Context, platform domain.Platform, symbol string, positionSide domain.Side, size, stopPrice float64) *domain.FuturesOrderResult {
	return s.placeOrder(ctx, &domain.FuturesOrderRequest{
		Platform:   platform,
		Symbol:     symbol,
		Side:       positionSide.Opposite(),
		Size:       size,
		StopPrice:  stopPrice,
		OrderType:  domain.OrderTypeStopLoss,
		ReduceOnly: true,
	})
}

// PlaceTakeProfit 给持仓挂止盈
func (s *FuturesService) PlaceTakeProfit(ctx context.Context, platform domain.Platform, symbol string, positionSide domain.Side, size, stopPrice float64) *domain.FuturesOrderResult {
	return s.placeOrder(ctx, &domain.FuturesOrderRequest{
		Platform:   platform,
		Symbol:     symbol,
		Side:       positionSide.Opposite(),
		Size:       size,
		StopPrice:  stopPrice,
		OrderType:  domain.OrderTypeTakeProfit,
		ReduceOnly: true,
	})
}

// CancelOrder 撤单
func (s *FuturesService) CancelOrder(ctx context.Context, platform domain.Platform, symbol, orderID string) *domain.FuturesOrderResult {
	if s.cfg.DryRun {
		log.Infof("📝 DRY-RUN 撤单: platform=%s symbol=%s orderID=%s", platform, symbol, orderID)
		return &domain.FuturesOrderResult{
			Success: true,
			OrderID: orderID,
			Status:  domain.OrderStatusCanceled,
		}
	}

	adapter, ok := s.adapter(platform)
	if !ok {
		return domain.OrderError("%s not configured", platform)
	}

	result := adapter.CancelOrder(ctx, symbol, orderID)
	if result.Success {
		metrics.OrdersCanceled.Add(1)
		log.Infof("✅ 撤单成功: platform=%s symbol=%s orderID=%s", platform, symbol, orderID)
	} else {
		log.Warnf("❌ 撤单失败: platform=%s symbol=%s orderID=%s err=%s", platform, symbol, orderID, result.Error)
	}
	return result
}

// CancelAllOrders 撤销未成交订单（platform 为空 = 全平台）。
// 逐个撤销，只返回确认撤销的数量。非原子：中途失败不回滚已撤部分。
func (s *FuturesService) CancelAllOrders(ctx context.Context, platform domain.Platform, symbol string) int {
	orders, err := s.GetOpenOrders(ctx, platform, symbol)
	if err != nil {
		log.Warnf("⚠️ 查询未成交订单失败，无法撤单: %v", err)
		return 0
	}

	canceled := 0
	for _, o := range orders {
		res := s.CancelOrder(ctx, o.Platform, o.Symbol, o.OrderID)
		if res.Success {
			canceled++
		}
	}
	log.Infof("📊 批量撤单完成: 撤销 %d/%d", canceled, len(orders))
	return canceled
}

// placeOrder 统一下单路径
func (s *FuturesService) placeOrder(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	if err := s.validateOrder(req); err != nil {
		metrics.OrdersRejected.Add(1)
		log.Warnf("⚠️ 订单被拒绝: platform=%s symbol=%s err=%s", req.Platform, req.Symbol, err.Error)
		return err
	}

	if s.cfg.DryRun {
		return s.dryRunResult(ctx, req)
	}

	if err := s.breaker.AllowTrading(); err != nil {
		metrics.OrdersRejected.Add(1)
		log.Warnf("⚠️ 熔断拒单: platform=%s symbol=%s consecutiveFailures=%d",
			req.Platform, req.Symbol, s.breaker.ConsecutiveFailures())
		return domain.OrderError("%v", err)
	}

	adapter, ok := s.adapter(req.Platform)
	if !ok {
		return domain.OrderError("%s not configured", req.Platform)
	}

	result := adapter.PlaceOrder(ctx, req)
	if result.Success {
		s.breaker.RecordSuccess()
		metrics.OrdersPlaced.Add(1)
		log.Infof("✅ 下单成功: platform=%s symbol=%s side=%s type=%s size=%v orderID=%s",
			req.Platform, req.Symbol, req.Side, req.OrderType, req.Size, result.OrderID)
	} else {
		s.breaker.RecordFailure()
		metrics.OrdersFailed.Add(1)
		log.Warnf("❌ 下单失败: platform=%s symbol=%s side=%s err=%s",
			req.Platform, req.Symbol, req.Side, result.Error)
	}
	s.record(ctx, req, result)
	return result
}

// validateOrder 触网前校验。返回 nil 表示通过。
func (s *FuturesService) validateOrder(req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	if !req.Platform.Valid() {
		return domain.OrderError("非法平台: %s", req.Platform)
	}
	if req.Symbol == "" {
		return domain.OrderError("symbol 不能为空")
	}
	if req.Size <= 0 && !req.ClosePosition {
		return domain.OrderError("size 必须大于 0")
	}
	if notional := req.Notional(); notional > s.cfg.MaxPositionSize {
		return domain.OrderError("订单名义价值 %.2f 超过上限 maxPositionSize=%.2f",
			notional, s.cfg.MaxPositionSize)
	}
	return nil
}

// dryRunResult 纸交易模拟结果：uuid 订单号、按请求价全额成交
func (s *FuturesService) dryRunResult(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	metrics.OrdersDryRun.Add(1)
	result := &domain.FuturesOrderResult{
		Success:      true,
		OrderID:      "dry-" + uuid.NewString(),
		Status:       domain.OrderStatusFilled,
		FilledSize:   req.Size,
		AvgFillPrice: req.Price,
	}
	log.Infof("📝 DRY-RUN 下单: platform=%s symbol=%s side=%s type=%s size=%v orderID=%s",
		req.Platform, req.Symbol, req.Side, req.OrderType, req.Size, result.OrderID)
	s.record(ctx, req, result)
	return result
}

func (s *FuturesService) normalizeLeverage(leverage int) int {
	if leverage <= 0 {
		return s.cfg.DefaultLeverage
	}
	return leverage
}
