package hyperliquid

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/pkg/cache"
)

var log = logrus.WithField("component", "hyperliquid_adapter")

// Hyperliquid 没有原生市价单，市价请求转成滑点上限内的 IOC 限价单
const marketSlippage = 0.05

// ctxs 快照缓存 key 与 TTL。资产上下文（mid/mark/funding）短缓存即可，
// 持仓和余额永远实时查 UserState，不走缓存。
const (
	ctxCacheKey = "meta_and_ctxs"
	ctxCacheTTL = 15 * time.Second
)

// Adapter Hyperliquid 永续适配器。
// 下单走钱包私钥签名（EIP-712），不是 API key；查询按钱包地址查链上状态。
type Adapter struct {
	info     *hyperliquid.Info
	exchange *hyperliquid.Exchange
	meta     *hyperliquid.Meta
	address  string

	ctxCache *cache.InMemoryCache[string, *hyperliquid.MetaAndAssetCtxs]

	mu        sync.RWMutex
	crossPref map[string]bool // symbol → 是否全仓（UpdateLeverage 需要）
}

// New 创建适配器。walletAddress 为空时从私钥推导。
func New(privateKeyHex, walletAddress, baseURL string) (*Adapter, error) {
	ctx := context.Background()

	pk, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: 解析私钥失败: %w", err)
	}
	if walletAddress == "" {
		walletAddress = crypto.PubkeyToAddress(pk.PublicKey).Hex()
	}

	info := hyperliquid.NewInfo(ctx, baseURL, true, nil, nil)
	meta, err := info.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: 获取 meta 失败: %w", err)
	}

	exc := hyperliquid.NewExchange(ctx, pk, baseURL, meta, "", walletAddress, nil)

	return &Adapter{
		info:      info,
		exchange:  exc,
		meta:      meta,
		address:   walletAddress,
		ctxCache:  cache.NewInMemoryCache[string, *hyperliquid.MetaAndAssetCtxs](ctxCacheTTL),
		crossPref: make(map[string]bool),
	}, nil
}

// Name 返回平台标识
func (a *Adapter) Name() domain.Platform {
	return domain.PlatformHyperliquid
}

// coinFromSymbol Hyperliquid 用裸 coin 名（ETH 而非 ETH-USD/ETHUSDT）
func coinFromSymbol(symbol string) string {
	s := strings.TrimSuffix(symbol, "-USD")
	s = strings.TrimSuffix(s, "USDT")
	return strings.TrimSuffix(s, "-PERP")
}

// assetCtxs 带短缓存的资产上下文快照
func (a *Adapter) assetCtxs(ctx context.Context) (*hyperliquid.MetaAndAssetCtxs, error) {
	if state, ok := a.ctxCache.Get(ctxCacheKey); ok {
		return state, nil
	}
	state, err := a.info.MetaAndAssetCtxs(ctx)
	if err != nil {
		return nil, err
	}
	a.ctxCache.Set(ctxCacheKey, state, ctxCacheTTL)
	return state, nil
}

// assetCtx 按 coin 查资产上下文，返回 (universe 下标, ctx)
func (a *Adapter) assetCtx(ctx context.Context, coin string) (int, *hyperliquid.AssetCtx, error) {
	state, err := a.assetCtxs(ctx)
	if err != nil {
		return 0, nil, err
	}
	for i := range state.Universe {
		if state.Universe[i].Name == coin {
			if i >= len(state.Ctxs) {
				return 0, nil, fmt.Errorf("asset context missing for %s", coin)
			}
			return i, &state.Ctxs[i], nil
		}
	}
	return 0, nil, fmt.Errorf("symbol %s not found in universe", coin)
}

// roundSize 按 universe 的 szDecimals 截断下单数量
func (a *Adapter) roundSize(coin string, size float64) float64 {
	for i := range a.meta.Universe {
		if a.meta.Universe[i].Name == coin {
			pow := math.Pow10(a.meta.Universe[i].SzDecimals)
			return math.Floor(size*pow) / pow
		}
	}
	return size
}

// PlaceOrder 下单
func (a *Adapter) PlaceOrder(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	if req.ClosePosition {
		return a.closeEntirePosition(ctx, req)
	}

	coin := coinFromSymbol(req.Symbol)
	isBuy := req.Side == domain.SideLong

	if req.Leverage > 0 {
		if err := a.updateLeverage(ctx, coin, req.Symbol, req.Leverage, req.MarginType); err != nil {
			log.Warnf("⚠️ 设置杠杆失败（继续下单）: coin=%s leverage=%d err=%v", coin, req.Leverage, err)
		}
	}

	price := req.Price
	orderType, err := a.buildOrderType(ctx, req, coin, &price)
	if err != nil {
		return domain.OrderError("hyperliquid: %v", err)
	}

	res, err := a.exchange.Order(ctx, hyperliquid.CreateOrderRequest{
		Coin:       coin,
		IsBuy:      isBuy,
		Size:       a.roundSize(coin, req.Size),
		Price:      price,
		OrderType:  *orderType,
		ReduceOnly: req.ReduceOnly,
	}, nil)
	if err != nil {
		log.Errorf("❌ 下单失败: coin=%s side=%s err=%v", coin, req.Side, err)
		return domain.OrderError("hyperliquid: %v", err)
	}
	if res.Error != nil {
		return domain.OrderError("hyperliquid: %s", *res.Error)
	}

	result := &domain.FuturesOrderResult{Success: true}
	switch {
	case res.Filled != nil:
		result.OrderID = strconv.Itoa(res.Filled.Oid)
		result.Status = domain.OrderStatusFilled
		result.FilledSize = parseFloat(res.Filled.TotalSz)
		result.AvgFillPrice = parseFloat(res.Filled.AvgPx)
	case res.Resting != nil:
		result.OrderID = strconv.FormatInt(res.Resting.Oid, 10)
		result.Status = domain.OrderStatusNew
	default:
		result.Status = domain.OrderStatusNew
	}
	return result
}

// buildOrderType 组装订单类型。市价单转为 mid 价 ± 滑点的 IOC 限价单，
// 止损/止盈走 trigger 订单。
func (a *Adapter) buildOrderType(ctx context.Context, req *domain.FuturesOrderRequest, coin string, price *float64) (*hyperliquid.OrderType, error) {
	switch req.OrderType {
	case domain.OrderTypeLimit:
		return &hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: tifFromString(req.TimeInForce)},
		}, nil

	case domain.OrderTypeMarket:
		_, ctxInfo, err := a.assetCtx(ctx, coin)
		if err != nil {
			return nil, err
		}
		mid := parseFloat(ctxInfo.MidPx)
		if mid <= 0 {
			return nil, fmt.Errorf("no mid price for %s", coin)
		}
		if req.Side == domain.SideLong {
			*price = mid * (1 + marketSlippage)
		} else {
			*price = mid * (1 - marketSlippage)
		}
		return &hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifIoc},
		}, nil

	case domain.OrderTypeStopLoss, domain.OrderTypeTakeProfit:
		if *price <= 0 {
			*price = req.StopPrice
		}
		return &hyperliquid.OrderType{
			Trigger: &hyperliquid.TriggerOrderType{
				TriggerPx: req.StopPrice,
				IsMarket:  true,
				Tpsl:      tpslFor(req.OrderType),
			},
		}, nil

	case domain.OrderTypeStopLimit, domain.OrderTypeTakeProfitLimit:
		return &hyperliquid.OrderType{
			Trigger: &hyperliquid.TriggerOrderType{
				TriggerPx: req.StopPrice,
				IsMarket:  false,
				Tpsl:      tpslFor(req.OrderType),
			},
		}, nil
	}
	return nil, fmt.Errorf("不支持的订单类型 %s", req.OrderType)
}

func tpslFor(t domain.OrderType) hyperliquid.Tpsl {
	if t == domain.OrderTypeTakeProfit || t == domain.OrderTypeTakeProfitLimit {
		return hyperliquid.TakeProfit
	}
	return hyperliquid.StopLoss
}

func tifFromString(tif string) hyperliquid.Tif {
	switch strings.ToUpper(tif) {
	case "IOC":
		return hyperliquid.TifIoc
	case "ALO", "POST_ONLY":
		return hyperliquid.TifAlo
	default:
		return hyperliquid.TifGtc
	}
}

// closeEntirePosition 全量平仓回退：查持仓→反向 reduceOnly 市价单。
// 无持仓时 no-op 成功。
func (a *Adapter) closeEntirePosition(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	positions, err := a.GetPositions(ctx, req.Symbol)
	if err != nil {
		return domain.OrderError("hyperliquid: 查询持仓失败: %v", err)
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

// CancelOrder 撤单。Hyperliquid 的 oid 是整数。
func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) *domain.FuturesOrderResult {
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return domain.OrderError("hyperliquid: 非法订单号 %q", orderID)
	}
	if _, err := a.exchange.Cancel(ctx, coinFromSymbol(symbol), oid); err != nil {
		return domain.OrderError("hyperliquid: %v", err)
	}
	return &domain.FuturesOrderResult{
		Success: true,
		OrderID: orderID,
		Status:  domain.OrderStatusCanceled,
	}
}

// GetOpenOrders 查询未成交订单。frontendOpenOrders 才带原始数量和触发信息，
// Sz 是剩余数量。side 编码：B=买 A=卖。
func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.FuturesOpenOrder, error) {
	open, err := a.info.FrontendOpenOrders(ctx, a.address)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid open orders: %w", err)
	}

	coin := ""
	if symbol != "" {
		coin = coinFromSymbol(symbol)
	}

	var orders []domain.FuturesOpenOrder
	for _, o := range open {
		if coin != "" && o.Coin != coin {
			continue
		}
		side := domain.SideShort
		if o.Side == hyperliquid.OrderSideBid {
			side = domain.SideLong
		}
		orders = append(orders, domain.FuturesOpenOrder{
			OrderID:       strconv.FormatInt(o.Oid, 10),
			Platform:      domain.PlatformHyperliquid,
			Symbol:        o.Coin,
			Side:          side,
			Price:         o.LimitPx,
			StopPrice:     o.TriggerPx,
			OriginalSize:  o.OrigSz,
			FilledSize:    o.OrigSz - o.Sz,
			RemainingSize: o.Sz,
			OrderType:     openOrderType(o),
			ReduceOnly:    o.ReduceOnly,
			Status:        openOrderStatus(o.OrigSz, o.Sz),
			CreatedAt:     time.UnixMilli(o.Timestamp),
		})
	}
	return orders, nil
}

// openOrderType 从 frontend 订单的触发标记推断订单类型
func openOrderType(o hyperliquid.FrontendOpenOrder) domain.OrderType {
	if !o.IsTrigger {
		return domain.OrderTypeLimit
	}
	if strings.Contains(strings.ToLower(o.OrderType), "take profit") {
		return domain.OrderTypeTakeProfit
	}
	return domain.OrderTypeStopLoss
}

func openOrderStatus(orig, remaining float64) domain.OrderStatus {
	if remaining < orig {
		return domain.OrderStatusPartiallyFilled
	}
	return domain.OrderStatusNew
}

// GetPositions 查询持仓。szi 为带符号数量，负数是空头。
func (a *Adapter) GetPositions(ctx context.Context, symbol string) ([]domain.FuturesPosition, error) {
	state, err := a.info.UserState(ctx, a.address)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid positions: %w", err)
	}

	coin := ""
	if symbol != "" {
		coin = coinFromSymbol(symbol)
	}

	var positions []domain.FuturesPosition
	for _, ap := range state.AssetPositions {
		p := ap.Position
		szi := parseFloat(p.Szi)
		if szi == 0 {
			continue
		}
		if coin != "" && p.Coin != coin {
			continue
		}

		side := domain.SideLong
		if szi < 0 {
			side = domain.SideShort
		}
		marginType := domain.MarginTypeIsolated
		if p.Leverage.Type == "cross" {
			marginType = domain.MarginTypeCross
		}

		mark := 0.0
		if _, ctxInfo, err := a.assetCtx(ctx, p.Coin); err == nil {
			mark = parseFloat(ctxInfo.MarkPx)
		}

		positions = append(positions, domain.FuturesPosition{
			Platform:         domain.PlatformHyperliquid,
			Symbol:           p.Coin,
			Side:             side,
			Size:             math.Abs(szi),
			EntryPrice:       parseFloatPtr(p.EntryPx),
			MarkPrice:        mark,
			LiquidationPrice: parseFloatPtr(p.LiquidationPx),
			Leverage:         p.Leverage.Value,
			MarginType:       marginType,
			UnrealizedPnl:    parseFloat(p.UnrealizedPnl),
			Margin:           parseFloat(p.MarginUsed),
			Notional:         math.Abs(parseFloat(p.PositionValue)),
		})
	}
	return positions, nil
}

// GetBalance 查询账户余额。Hyperliquid 结算资产只有 USDC。
func (a *Adapter) GetBalance(ctx context.Context) ([]domain.FuturesBalance, error) {
	state, err := a.info.UserState(ctx, a.address)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid balance: %w", err)
	}

	accountValue := parseFloat(state.MarginSummary.AccountValue)
	marginUsed := parseFloat(state.MarginSummary.TotalMarginUsed)

	unrealized := 0.0
	for _, ap := range state.AssetPositions {
		unrealized += parseFloat(ap.Position.UnrealizedPnl)
	}

	return []domain.FuturesBalance{{
		Platform:         domain.PlatformHyperliquid,
		Asset:            "USDC",
		Balance:          accountValue - unrealized,
		AvailableBalance: parseFloat(state.Withdrawable),
		UnrealizedPnl:    unrealized,
		MarginBalance:    accountValue,
		InitialMargin:    marginUsed,
	}}, nil
}

// GetFundingRate 查询当前资金费率。Hyperliquid 每小时收取，
// 下次收取时间按整点推算。
func (a *Adapter) GetFundingRate(ctx context.Context, symbol string) (*domain.FundingRate, error) {
	coin := coinFromSymbol(symbol)
	_, ctxInfo, err := a.assetCtx(ctx, coin)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid funding rate: %w", err)
	}

	now := time.Now().UTC()
	nextHour := now.Truncate(time.Hour).Add(time.Hour)

	return &domain.FundingRate{
		Platform:        domain.PlatformHyperliquid,
		Symbol:          coin,
		FundingRate:     parseFloat(ctxInfo.Funding),
		NextFundingTime: nextHour,
		MarkPrice:       parseFloat(ctxInfo.MarkPx),
		IndexPrice:      parseFloat(ctxInfo.OraclePx),
	}, nil
}

// SetLeverage 设置杠杆，按已记录的保证金模式偏好决定 cross/isolated
func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	coin := coinFromSymbol(symbol)
	if err := a.updateLeverage(ctx, coin, symbol, leverage, ""); err != nil {
		return fmt.Errorf("hyperliquid set leverage: %w", err)
	}
	return nil
}

func (a *Adapter) updateLeverage(ctx context.Context, coin, symbol string, leverage int, override domain.MarginType) error {
	isCross := a.isCross(symbol)
	if override != "" {
		isCross = override == domain.MarginTypeCross
	}
	_, err := a.exchange.UpdateLeverage(ctx, leverage, coin, isCross)
	return err
}

func (a *Adapter) isCross(symbol string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if cross, ok := a.crossPref[symbol]; ok {
		return cross
	}
	return true
}

// SetMarginType Hyperliquid 的保证金模式跟杠杆一起在 updateLeverage 里提交，
// 这里记录偏好，下次设置杠杆或下单时生效。
func (a *Adapter) SetMarginType(ctx context.Context, symbol string, marginType domain.MarginType) error {
	a.mu.Lock()
	a.crossPref[symbol] = marginType == domain.MarginTypeCross
	a.mu.Unlock()
	log.Infof("已记录保证金模式偏好（下次设置杠杆生效）: symbol=%s marginType=%s", symbol, marginType)
	return nil
}

// GetIncomeHistory 查询成交流水里的已实现盈亏
func (a *Adapter) GetIncomeHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.IncomeRecord, error) {
	fills, err := a.info.UserFills(ctx, a.address)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid income: %w", err)
	}

	coin := ""
	if symbol != "" {
		coin = coinFromSymbol(symbol)
	}

	var records []domain.IncomeRecord
	for _, f := range fills {
		if coin != "" && f.Coin != coin {
			continue
		}
		ts := time.UnixMilli(f.Time)
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		records = append(records, domain.IncomeRecord{
			Platform:   domain.PlatformHyperliquid,
			Symbol:     f.Coin,
			IncomeType: "REALIZED_PNL",
			Income:     parseFloat(f.ClosedPnl) - parseFloat(f.Fee),
			Asset:      "USDC",
			Time:       ts,
		})
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseFloatPtr(s *string) float64 {
	if s == nil {
		return 0
	}
	return parseFloat(*s)
}
