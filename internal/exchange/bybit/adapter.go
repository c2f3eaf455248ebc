package bybit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
)

var log = logrus.WithField("component", "bybit_adapter")

// Adapter Bybit 合约适配器，走官方 V5 API 的 Go SDK。
// 全部使用 linear（USDT 永续）类别。
type Adapter struct {
	client *bybit.Client
}

// New 创建 Bybit 适配器
func New(apiKey, apiSecret string) *Adapter {
	return &Adapter{
		client: bybit.NewClient().WithAuth(apiKey, apiSecret),
	}
}

// Name 返回平台标识
func (a *Adapter) Name() domain.Platform {
	return domain.PlatformBybit
}

// PlaceOrder 下单。Bybit 的止损/止盈通过 TriggerPrice + TriggerDirection
// 表达，不是独立订单类型。
func (a *Adapter) PlaceOrder(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	if req.ClosePosition {
		return a.closeEntirePosition(ctx, req)
	}

	if req.Leverage > 0 {
		// 杠杆设置失败不阻断下单，多数情况是"leverage not modified"
		if err := a.SetLeverage(ctx, req.Symbol, req.Leverage); err != nil {
			log.Warnf("⚠️ 设置杠杆失败（继续下单）: symbol=%s leverage=%d err=%v", req.Symbol, req.Leverage, err)
		}
	}

	param := bybit.V5CreateOrderParam{
		Category: bybit.CategoryV5Linear,
		Symbol:   bybit.SymbolV5(req.Symbol),
		Side:     sideToBybit(req.Side),
		Qty:      formatFloat(req.Size),
	}

	switch req.OrderType {
	case domain.OrderTypeMarket:
		param.OrderType = bybit.OrderTypeMarket
	case domain.OrderTypeLimit:
		param.OrderType = bybit.OrderTypeLimit
		param.Price = strPtr(formatFloat(req.Price))
	case domain.OrderTypeStopLoss, domain.OrderTypeTakeProfit:
		param.OrderType = bybit.OrderTypeMarket
		param.TriggerPrice = strPtr(formatFloat(req.StopPrice))
		param.TriggerDirection = triggerDirection(req)
	case domain.OrderTypeStopLimit, domain.OrderTypeTakeProfitLimit:
		param.OrderType = bybit.OrderTypeLimit
		param.Price = strPtr(formatFloat(req.Price))
		param.TriggerPrice = strPtr(formatFloat(req.StopPrice))
		param.TriggerDirection = triggerDirection(req)
	default:
		return domain.OrderError("bybit: 不支持的订单类型 %s", req.OrderType)
	}

	if req.TimeInForce != "" {
		tif := bybit.TimeInForce(req.TimeInForce)
		param.TimeInForce = &tif
	}
	if req.ReduceOnly {
		reduceOnly := true
		param.ReduceOnly = &reduceOnly
	}

	res, err := a.client.V5().Order().CreateOrder(param)
	if err != nil {
		log.Errorf("❌ 下单失败: symbol=%s side=%s err=%v", req.Symbol, req.Side, err)
		return domain.OrderError("bybit: %v", err)
	}

	return &domain.FuturesOrderResult{
		Success: true,
		OrderID: res.Result.OrderID,
		Status:  domain.OrderStatusNew,
	}
}

// triggerDirection Rise=价格上穿触发 Fall=价格下穿触发
func triggerDirection(req *domain.FuturesOrderRequest) *bybit.TriggerDirection {
	isStop := req.OrderType == domain.OrderTypeStopLoss || req.OrderType == domain.OrderTypeStopLimit
	dir := bybit.TriggerDirectionFall
	if (isStop && req.Side == domain.SideLong) || (!isStop && req.Side == domain.SideShort) {
		dir = bybit.TriggerDirectionRise
	}
	return &dir
}

// closeEntirePosition 全量平仓回退：查持仓→反向 reduceOnly 市价单。
// 无持仓时 no-op 成功。
func (a *Adapter) closeEntirePosition(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	positions, err := a.GetPositions(ctx, req.Symbol)
	if err != nil {
		return domain.OrderError("bybit: 查询持仓失败: %v", err)
	}

	target := req.Side.Opposite()
	for _, pos := range positions {
		if pos.Side != target || pos.Size <= 0 {
			continue
		}
		return a.PlaceOrder(ctx, &domain.FuturesOrderRequest{
			Platform:   req.Platform,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Size:       pos.Size,
			OrderType:  domain.OrderTypeMarket,
			ReduceOnly: true,
		})
	}

	log.Infof("平仓请求无持仓可平: symbol=%s", req.Symbol)
	return &domain.FuturesOrderResult{
		Success: true,
		Status:  domain.OrderStatusFilled,
	}
}

// CancelOrder 撤单
func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) *domain.FuturesOrderResult {
	_, err := a.client.V5().Order().CancelOrder(bybit.V5CancelOrderParam{
		Category: bybit.CategoryV5Linear,
		Symbol:   bybit.SymbolV5(symbol),
		OrderID:  &orderID,
	})
	if err != nil {
		return domain.OrderError("bybit: %v", err)
	}
	return &domain.FuturesOrderResult{
		Success: true,
		OrderID: orderID,
		Status:  domain.OrderStatusCanceled,
	}
}

// GetOpenOrders 查询未成交订单
func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.FuturesOpenOrder, error) {
	param := bybit.V5GetOpenOrdersParam{
		Category: bybit.CategoryV5Linear,
	}
	if symbol != "" {
		s := bybit.SymbolV5(symbol)
		param.Symbol = &s
	} else {
		settle := bybit.CoinUSDT
		param.SettleCoin = &settle
	}

	res, err := a.client.V5().Order().GetOpenOrders(param)
	if err != nil {
		return nil, fmt.Errorf("bybit open orders: %w", err)
	}

	orders := make([]domain.FuturesOpenOrder, 0, len(res.Result.List))
	for _, o := range res.Result.List {
		origQty := parseFloat(o.Qty)
		filled := parseFloat(o.CumExecQty)
		orders = append(orders, domain.FuturesOpenOrder{
			OrderID:       o.OrderID,
			Platform:      domain.PlatformBybit,
			Symbol:        string(o.Symbol),
			Side:          sideFromBybit(o.Side),
			Price:         parseFloat(o.Price),
			OriginalSize:  origQty,
			FilledSize:    filled,
			RemainingSize: origQty - filled,
			OrderType:     orderTypeFromBybit(o.OrderType, o.TriggerPrice),
			TimeInForce:   string(o.TimeInForce),
			Status:        statusFromBybit(string(o.OrderStatus)),
			ReduceOnly:    o.ReduceOnly,
			StopPrice:     parseFloat(o.TriggerPrice),
			CreatedAt:     time.UnixMilli(parseInt(o.CreatedTime)),
		})
	}
	return orders, nil
}

// GetPositions 查询持仓
func (a *Adapter) GetPositions(ctx context.Context, symbol string) ([]domain.FuturesPosition, error) {
	param := bybit.V5GetPositionInfoParam{
		Category: bybit.CategoryV5Linear,
	}
	if symbol != "" {
		s := bybit.SymbolV5(symbol)
		param.Symbol = &s
	} else {
		// linear 类别不带 symbol 时必须指定 settleCoin
		settle := bybit.CoinUSDT
		param.SettleCoin = &settle
	}

	res, err := a.client.V5().Position().GetPositionInfo(param)
	if err != nil {
		return nil, fmt.Errorf("bybit positions: %w", err)
	}

	var positions []domain.FuturesPosition
	for _, p := range res.Result.List {
		size := parseFloat(p.Size)
		if size <= 0 {
			continue
		}
		marginType := domain.MarginTypeCross
		if p.TradeMode == 1 {
			marginType = domain.MarginTypeIsolated
		}
		positions = append(positions, domain.FuturesPosition{
			Platform:         domain.PlatformBybit,
			Symbol:           string(p.Symbol),
			Side:             sideFromBybit(p.Side),
			Size:             size,
			EntryPrice:       parseFloat(p.AvgPrice),
			MarkPrice:        parseFloat(p.MarkPrice),
			LiquidationPrice: parseFloat(p.LiqPrice),
			Leverage:         int(parseFloat(p.Leverage)),
			MarginType:       marginType,
			UnrealizedPnl:    parseFloat(p.UnrealisedPnl),
			Margin:           parseFloat(p.PositionIM),
			Notional:         parseFloat(p.PositionValue),
		})
	}
	return positions, nil
}

// GetBalance 查询统一账户余额。保证金占用在统一账户下是账户级指标，
// 挂在 USDT 条目上返回。
func (a *Adapter) GetBalance(ctx context.Context) ([]domain.FuturesBalance, error) {
	res, err := a.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5UNIFIED, nil)
	if err != nil {
		return nil, fmt.Errorf("bybit balance: %w", err)
	}

	var balances []domain.FuturesBalance
	for _, acct := range res.Result.List {
		for _, coin := range acct.Coin {
			balance := domain.FuturesBalance{
				Platform:         domain.PlatformBybit,
				Asset:            string(coin.Coin),
				Balance:          parseFloat(coin.WalletBalance),
				AvailableBalance: parseFloat(coin.AvailableToWithdraw),
				UnrealizedPnl:    parseFloat(coin.UnrealisedPnl),
				MarginBalance:    parseFloat(coin.Equity),
			}
			if coin.Coin == bybit.CoinUSDT {
				balance.InitialMargin = parseFloat(acct.TotalInitialMargin)
				balance.MaintenanceMargin = parseFloat(acct.TotalMaintenanceMargin)
			}
			balances = append(balances, balance)
		}
	}
	return balances, nil
}

// GetFundingRate 查询当前资金费率（tickers 公共接口）
func (a *Adapter) GetFundingRate(ctx context.Context, symbol string) (*domain.FundingRate, error) {
	s := bybit.SymbolV5(symbol)
	res, err := a.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Linear,
		Symbol:   &s,
	})
	if err != nil {
		return nil, fmt.Errorf("bybit funding rate: %w", err)
	}
	if res.Result.LinearInverse == nil || len(res.Result.LinearInverse.List) == 0 {
		return nil, fmt.Errorf("bybit funding rate: symbol %s not found", symbol)
	}

	t := res.Result.LinearInverse.List[0]
	nextFunding := time.UnixMilli(parseInt(t.NextFundingTime))
	return &domain.FundingRate{
		Platform:        domain.PlatformBybit,
		Symbol:          string(t.Symbol),
		FundingRate:     parseFloat(t.FundingRate),
		FundingTime:     fundingPeriodStart(nextFunding),
		NextFundingTime: nextFunding,
		MarkPrice:       parseFloat(t.MarkPrice),
		IndexPrice:      parseFloat(t.IndexPrice),
	}, nil
}

// SetLeverage 设置杠杆（买卖双向同值）
func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	_, err := a.client.V5().Position().SetLeverage(bybit.V5SetLeverageParam{
		Category:     bybit.CategoryV5Linear,
		Symbol:       bybit.SymbolV5(symbol),
		BuyLeverage:  lev,
		SellLeverage: lev,
	})
	if err != nil {
		return fmt.Errorf("bybit set leverage: %w", err)
	}
	return nil
}

// SetMarginType 统一账户的保证金模式是账户级配置，不支持按 symbol 切换。
// 按约定视为成功，只留日志。
func (a *Adapter) SetMarginType(ctx context.Context, symbol string, marginType domain.MarginType) error {
	log.Infof("Bybit 统一账户不支持按 symbol 切换保证金模式，忽略: symbol=%s marginType=%s", symbol, marginType)
	return nil
}

// GetIncomeHistory 查询已实现盈亏流水（closed-pnl 接口）
func (a *Adapter) GetIncomeHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.IncomeRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	param := bybit.V5GetClosedPnLParam{
		Category: bybit.CategoryV5Linear,
		Limit:    &limit,
	}
	if symbol != "" {
		s := bybit.SymbolV5(symbol)
		param.Symbol = &s
	}

	res, err := a.client.V5().Position().GetClosedPnL(param)
	if err != nil {
		return nil, fmt.Errorf("bybit income: %w", err)
	}

	var records []domain.IncomeRecord
	for _, r := range res.Result.List {
		ts := time.UnixMilli(parseInt(r.UpdatedTime))
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		records = append(records, domain.IncomeRecord{
			Platform:   domain.PlatformBybit,
			Symbol:     string(r.Symbol),
			IncomeType: "REALIZED_PNL",
			Income:     parseFloat(r.ClosedPnl),
			Asset:      "USDT",
			Time:       ts,
		})
	}
	return records, nil
}

func sideToBybit(side domain.Side) bybit.Side {
	if side == domain.SideLong {
		return bybit.SideBuy
	}
	return bybit.SideSell
}

func sideFromBybit(side bybit.Side) domain.Side {
	if side == bybit.SideBuy {
		return domain.SideLong
	}
	return domain.SideShort
}

func statusFromBybit(status string) domain.OrderStatus {
	switch status {
	case "New", "Untriggered", "Triggered", "Created":
		return domain.OrderStatusNew
	case "PartiallyFilled":
		return domain.OrderStatusPartiallyFilled
	case "Filled":
		return domain.OrderStatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return domain.OrderStatusCanceled
	case "Rejected":
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusNew
	}
}

func orderTypeFromBybit(orderType bybit.OrderType, triggerPrice string) domain.OrderType {
	hasTrigger := parseFloat(triggerPrice) > 0
	if orderType == bybit.OrderTypeMarket {
		if hasTrigger {
			return domain.OrderTypeStopLoss
		}
		return domain.OrderTypeMarket
	}
	if hasTrigger {
		return domain.OrderTypeStopLimit
	}
	return domain.OrderTypeLimit
}

// fundingPeriodStart 当前资金费率周期的起点。USDT 永续结算间隔 8 小时。
func fundingPeriodStart(nextFunding time.Time) time.Time {
	if nextFunding.IsZero() {
		return time.Time{}
	}
	return nextFunding.Add(-8 * time.Hour)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func strPtr(s string) *string {
	return &s
}
