package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/pkg/httpclient"
)

var log = logrus.WithField("component", "binance_adapter")

const defaultBaseURL = "https://fapi.binance.com"

// Adapter 币安 USDⓈ-M 合约适配器。
// fapi 是 HMAC-SHA256 签名的 REST API：把 query string 整体签名后追加
// signature 参数，API key 放在 X-MBX-APIKEY 头。
type Adapter struct {
	apiKey    string
	secretKey string
	http      *httpclient.Client
}

// New 创建币安适配器
func New(apiKey, secretKey, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		apiKey:    apiKey,
		secretKey: secretKey,
		http:      httpclient.NewClient(baseURL, 15*time.Second),
	}
}

// Name 返回平台标识
func (a *Adapter) Name() domain.Platform {
	return domain.PlatformBinance
}

// sign 对 query string 做 HMAC-SHA256，返回 hex 签名
func (a *Adapter) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(a.secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// doSigned 发送签名请求。签名覆盖编码后的完整 query string，
// 所以这里自己拼 endpoint，不走 resty 的 QueryParams。
func (a *Adapter) doSigned(ctx context.Context, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	endpoint := path + "?" + query + "&signature=" + a.sign(query)
	return a.http.DoRequest(ctx, method, endpoint, &httpclient.RequestOptions{
		Headers: map[string]string{"X-MBX-APIKEY": a.apiKey},
	}, out)
}

// doPublic 发送公共（无签名）请求
func (a *Adapter) doPublic(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return a.http.DoRequest(ctx, http.MethodGet, endpoint, nil, out)
}

// PlaceOrder 下单。归一化请求翻译为 fapi 词汇：
// long→BUY short→SELL；STOP_LOSS/TAKE_PROFIT 映射为市价触发单
// （STOP_MARKET/TAKE_PROFIT_MARKET），STOP_LIMIT/TAKE_PROFIT_LIMIT
// 映射为限价触发单（STOP/TAKE_PROFIT）。
func (a *Adapter) PlaceOrder(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	// closePosition 参数只在触发类市价单上合法，市价全量平仓走持仓查询回退
	if req.ClosePosition && req.OrderType == domain.OrderTypeMarket {
		return a.closeEntirePosition(ctx, req)
	}

	// 带杠杆的请求先设置杠杆；失败只记日志，下单继续
	if req.Leverage > 0 {
		if err := a.SetLeverage(ctx, req.Symbol, req.Leverage); err != nil {
			log.Warnf("⚠️ 设置杠杆失败（继续下单）: symbol=%s leverage=%d err=%v", req.Symbol, req.Leverage, err)
		}
	}
	if req.MarginType != "" {
		if err := a.SetMarginType(ctx, req.Symbol, req.MarginType); err != nil {
			log.Warnf("⚠️ 设置保证金模式失败（继续下单）: symbol=%s marginType=%s err=%v", req.Symbol, req.MarginType, err)
		}
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", sideToBinance(req.Side))

	tif := req.TimeInForce
	if tif == "" {
		tif = "GTC"
	}

	switch req.OrderType {
	case domain.OrderTypeLimit:
		params.Set("type", "LIMIT")
		params.Set("timeInForce", tif)
		params.Set("price", formatFloat(req.Price))
		params.Set("quantity", formatFloat(req.Size))
	case domain.OrderTypeMarket:
		params.Set("type", "MARKET")
		params.Set("quantity", formatFloat(req.Size))
	case domain.OrderTypeStopLoss:
		params.Set("type", "STOP_MARKET")
		params.Set("stopPrice", formatFloat(req.StopPrice))
		params.Set("quantity", formatFloat(req.Size))
	case domain.OrderTypeTakeProfit:
		params.Set("type", "TAKE_PROFIT_MARKET")
		params.Set("stopPrice", formatFloat(req.StopPrice))
		params.Set("quantity", formatFloat(req.Size))
	case domain.OrderTypeStopLimit:
		params.Set("type", "STOP")
		params.Set("timeInForce", tif)
		params.Set("price", formatFloat(req.Price))
		params.Set("stopPrice", formatFloat(req.StopPrice))
		params.Set("quantity", formatFloat(req.Size))
	case domain.OrderTypeTakeProfitLimit:
		params.Set("type", "TAKE_PROFIT")
		params.Set("timeInForce", tif)
		params.Set("price", formatFloat(req.Price))
		params.Set("stopPrice", formatFloat(req.StopPrice))
		params.Set("quantity", formatFloat(req.Size))
	default:
		return domain.OrderError("binance: 不支持的订单类型 %s", req.OrderType)
	}

	if req.ClosePosition {
		// STOP_MARKET/TAKE_PROFIT_MARKET 支持 closePosition，与 quantity 互斥，
		// 触发时按持仓全量平掉
		params.Del("quantity")
		params.Set("closePosition", "true")
	} else if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	var resp orderResponse
	if err := a.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params, &resp); err != nil {
		log.Errorf("❌ 下单失败: symbol=%s side=%s err=%v", req.Symbol, req.Side, err)
		return domain.OrderError("binance: %v", err)
	}

	return &domain.FuturesOrderResult{
		Success:       true,
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		FilledSize:    parseFloat(resp.ExecutedQty),
		AvgFillPrice:  parseFloat(resp.AvgPrice),
		Status:        statusFromBinance(resp.Status),
	}
}

// closeEntirePosition 全量平仓回退：查持仓→反向 reduceOnly 市价单。
// 无持仓时 no-op 成功。
func (a *Adapter) closeEntirePosition(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	positions, err := a.GetPositions(ctx, req.Symbol)
	if err != nil {
		return domain.OrderError("binance: 查询持仓失败: %v", err)
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
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp orderResponse
	if err := a.doSigned(ctx, http.MethodDelete, "/fapi/v1/order", params, &resp); err != nil {
		return domain.OrderError("binance: %v", err)
	}
	return &domain.FuturesOrderResult{
		Success: true,
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:  domain.OrderStatusCanceled,
	}
}

// GetOpenOrders 查询未成交订单
func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.FuturesOpenOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var resp []orderResponse
	if err := a.doSigned(ctx, http.MethodGet, "/fapi/v1/openOrders", params, &resp); err != nil {
		return nil, fmt.Errorf("binance open orders: %w", err)
	}

	orders := make([]domain.FuturesOpenOrder, 0, len(resp))
	for _, o := range resp {
		orig := parseFloat(o.OrigQty)
		filled := parseFloat(o.ExecutedQty)
		orders = append(orders, domain.FuturesOpenOrder{
			OrderID:       strconv.FormatInt(o.OrderID, 10),
			Platform:      domain.PlatformBinance,
			Symbol:        o.Symbol,
			Side:          sideFromBinance(o.Side),
			Price:         parseFloat(o.Price),
			OriginalSize:  orig,
			FilledSize:    filled,
			RemainingSize: orig - filled,
			OrderType:     orderTypeFromBinance(o.Type),
			TimeInForce:   o.TimeInForce,
			Status:        statusFromBinance(o.Status),
			ReduceOnly:    o.ReduceOnly,
			StopPrice:     parseFloat(o.StopPrice),
			CreatedAt:     time.UnixMilli(o.Time),
		})
	}
	return orders, nil
}

// GetPositions 查询持仓。positionAmt 带符号：正为多头、负为空头，
// 归一化为 size 恒正 + side。
func (a *Adapter) GetPositions(ctx context.Context, symbol string) ([]domain.FuturesPosition, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var resp []positionRisk
	if err := a.doSigned(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, &resp); err != nil {
		return nil, fmt.Errorf("binance positions: %w", err)
	}

	var positions []domain.FuturesPosition
	for _, p := range resp {
		amt := parseFloat(p.PositionAmt)
		if amt == 0 {
			continue
		}
		side := domain.SideLong
		if amt < 0 {
			side = domain.SideShort
			amt = -amt
		}
		marginType := domain.MarginTypeCross
		margin := parseFloat(p.IsolatedMargin)
		if strings.EqualFold(p.MarginType, "isolated") {
			marginType = domain.MarginTypeIsolated
		}
		leverage, _ := strconv.Atoi(p.Leverage)
		notional := parseFloat(p.Notional)
		if notional < 0 {
			notional = -notional
		}
		positions = append(positions, domain.FuturesPosition{
			Platform:         domain.PlatformBinance,
			Symbol:           p.Symbol,
			Side:             side,
			Size:             amt,
			EntryPrice:       parseFloat(p.EntryPrice),
			MarkPrice:        parseFloat(p.MarkPrice),
			LiquidationPrice: parseFloat(p.LiquidationPrice),
			Leverage:         leverage,
			MarginType:       marginType,
			UnrealizedPnl:    parseFloat(p.UnRealizedProfit),
			Margin:           margin,
			Notional:         notional,
		})
	}
	return positions, nil
}

// GetBalance 查询合约账户余额（只返回有余额的资产）
func (a *Adapter) GetBalance(ctx context.Context) ([]domain.FuturesBalance, error) {
	var resp accountInfo
	if err := a.doSigned(ctx, http.MethodGet, "/fapi/v2/account", nil, &resp); err != nil {
		return nil, fmt.Errorf("binance balance: %w", err)
	}

	var balances []domain.FuturesBalance
	for _, asset := range resp.Assets {
		wallet := parseFloat(asset.WalletBalance)
		if wallet == 0 && parseFloat(asset.MarginBalance) == 0 {
			continue
		}
		balances = append(balances, domain.FuturesBalance{
			Platform:          domain.PlatformBinance,
			Asset:             asset.Asset,
			Balance:           wallet,
			AvailableBalance:  parseFloat(asset.AvailableBalance),
			UnrealizedPnl:     parseFloat(asset.UnrealizedProfit),
			MarginBalance:     parseFloat(asset.MarginBalance),
			MaintenanceMargin: parseFloat(asset.MaintMargin),
			InitialMargin:     parseFloat(asset.InitialMargin),
		})
	}
	return balances, nil
}

// GetFundingRate 查询当前资金费率（公共接口，无需签名）
func (a *Adapter) GetFundingRate(ctx context.Context, symbol string) (*domain.FundingRate, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp premiumIndex
	if err := a.doPublic(ctx, "/fapi/v1/premiumIndex", params, &resp); err != nil {
		return nil, fmt.Errorf("binance funding rate: %w", err)
	}
	return &domain.FundingRate{
		Platform:        domain.PlatformBinance,
		Symbol:          resp.Symbol,
		FundingRate:     parseFloat(resp.LastFundingRate),
		FundingTime:     time.UnixMilli(resp.Time),
		NextFundingTime: time.UnixMilli(resp.NextFundingTime),
		MarkPrice:       parseFloat(resp.MarkPrice),
		IndexPrice:      parseFloat(resp.IndexPrice),
	}, nil
}

// SetLeverage 设置杠杆
func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	if err := a.doSigned(ctx, http.MethodPost, "/fapi/v1/leverage", params, nil); err != nil {
		return fmt.Errorf("binance set leverage: %w", err)
	}
	return nil
}

// SetMarginType 设置保证金模式。币安对"已经是目标模式"返回 -4046，
// 视为成功。
func (a *Adapter) SetMarginType(ctx context.Context, symbol string, marginType domain.MarginType) error {
	mt := "CROSSED"
	if marginType == domain.MarginTypeIsolated {
		mt = "ISOLATED"
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("marginType", mt)
	if err := a.doSigned(ctx, http.MethodPost, "/fapi/v1/marginType", params, nil); err != nil {
		if strings.Contains(err.Error(), "-4046") || strings.Contains(err.Error(), "No need to change margin type") {
			return nil
		}
		return fmt.Errorf("binance set margin type: %w", err)
	}
	return nil
}

// GetIncomeHistory 查询账户收益流水
func (a *Adapter) GetIncomeHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.IncomeRecord, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp []incomeEntry
	if err := a.doSigned(ctx, http.MethodGet, "/fapi/v1/income", params, &resp); err != nil {
		return nil, fmt.Errorf("binance income: %w", err)
	}

	records := make([]domain.IncomeRecord, 0, len(resp))
	for _, e := range resp {
		records = append(records, domain.IncomeRecord{
			Platform:   domain.PlatformBinance,
			Symbol:     e.Symbol,
			IncomeType: e.IncomeType,
			Income:     parseFloat(e.Income),
			Asset:      e.Asset,
			Time:       time.UnixMilli(e.Time),
		})
	}
	return records, nil
}

func sideToBinance(side domain.Side) string {
	if side == domain.SideLong {
		return "BUY"
	}
	return "SELL"
}

func sideFromBinance(side string) domain.Side {
	if side == "BUY" {
		return domain.SideLong
	}
	return domain.SideShort
}

func statusFromBinance(status string) domain.OrderStatus {
	switch status {
	case "NEW":
		return domain.OrderStatusNew
	case "PARTIALLY_FILLED":
		return domain.OrderStatusPartiallyFilled
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED":
		return domain.OrderStatusCanceled
	case "REJECTED":
		return domain.OrderStatusRejected
	case "EXPIRED":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusNew
	}
}

func orderTypeFromBinance(t string) domain.OrderType {
	switch t {
	case "LIMIT":
		return domain.OrderTypeLimit
	case "MARKET":
		return domain.OrderTypeMarket
	case "STOP_MARKET":
		return domain.OrderTypeStopLoss
	case "TAKE_PROFIT_MARKET":
		return domain.OrderTypeTakeProfit
	case "STOP":
		return domain.OrderTypeStopLimit
	case "TAKE_PROFIT":
		return domain.OrderTypeTakeProfitLimit
	default:
		return domain.OrderTypeLimit
	}
}

// formatFloat 用 decimal 格式化数量/价格，避免 float64 直接转字符串
// 带出的科学计数法或多余尾数被交易所拒单
func formatFloat(f float64) string {
	return decimal.NewFromFloat(f).String()
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
