package mexc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/pkg/httpclient"
)

var log = logrus.WithField("component", "mexc_adapter")

const defaultBaseURL = "https://contract.mexc.com"

// Adapter MEXC 合约适配器。
// MEXC 合约 API 用数字编码表达开平仓：side 1=开多 2=平空 3=开空 4=平多，
// openType 1=逐仓 2=全仓。这些编码只存在于本包内部。
type Adapter struct {
	apiKey    string
	secretKey string
	http      *httpclient.Client

	defaultLeverage   int
	defaultMarginType domain.MarginType
	marginPrefs       *MarginPrefs
}

// New 创建 MEXC 适配器。prefs 为 nil 时内部新建一个无快照的偏好存储。
func New(apiKey, secretKey, baseURL string, defaultLeverage int, defaultMarginType domain.MarginType, prefs *MarginPrefs) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if prefs == nil {
		prefs = NewMarginPrefs(nil)
	}
	if defaultLeverage <= 0 {
		defaultLeverage = 5
	}
	if defaultMarginType == "" {
		defaultMarginType = domain.MarginTypeCross
	}
	return &Adapter{
		apiKey:            apiKey,
		secretKey:         secretKey,
		http:              httpclient.NewClient(baseURL, 15*time.Second),
		defaultLeverage:   defaultLeverage,
		defaultMarginType: defaultMarginType,
		marginPrefs:       prefs,
	}
}

// Name 返回平台标识
func (a *Adapter) Name() domain.Platform {
	return domain.PlatformMEXC
}

// sign 签名目标 = accessKey + requestTime + paramString
func (a *Adapter) sign(requestTime, paramString string) string {
	h := hmac.New(sha256.New, []byte(a.secretKey))
	h.Write([]byte(a.apiKey + requestTime + paramString))
	return hex.EncodeToString(h.Sum(nil))
}

// doGet 发送签名 GET 请求（paramString 为按字典序编码的 query string）
func (a *Adapter) doGet(ctx context.Context, path string, params url.Values, out any) error {
	query := ""
	if len(params) > 0 {
		query = params.Encode() // Encode 自带字典序
	}
	endpoint := path
	if query != "" {
		endpoint += "?" + query
	}
	requestTime := strconv.FormatInt(time.Now().UnixMilli(), 10)
	var env envelope
	err := a.http.DoRequest(ctx, http.MethodGet, endpoint, &httpclient.RequestOptions{
		Headers: map[string]string{
			"ApiKey":       a.apiKey,
			"Request-Time": requestTime,
			"Signature":    a.sign(requestTime, query),
		},
	}, &env)
	if err != nil {
		return err
	}
	return decodeEnvelope(&env, out)
}

// doPost 发送签名 POST 请求（paramString 为 JSON body 原文）
func (a *Adapter) doPost(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	requestTime := strconv.FormatInt(time.Now().UnixMilli(), 10)
	var env envelope
	err = a.http.DoRequest(ctx, http.MethodPost, path, &httpclient.RequestOptions{
		Headers: map[string]string{
			"ApiKey":       a.apiKey,
			"Request-Time": requestTime,
			"Signature":    a.sign(requestTime, string(raw)),
		},
		Body: raw,
	}, &env)
	if err != nil {
		return err
	}
	return decodeEnvelope(&env, out)
}

// doPublic 公共接口，无签名
func (a *Adapter) doPublic(ctx context.Context, path string, out any) error {
	var env envelope
	if err := a.http.DoRequest(ctx, http.MethodGet, path, nil, &env); err != nil {
		return err
	}
	return decodeEnvelope(&env, out)
}

func decodeEnvelope(env *envelope, out any) error {
	if !env.Success {
		return fmt.Errorf("mexc api error %d: %s", env.Code, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// PlaceOrder 下单。closePosition 请求走"查仓反向市价平掉"的回退路径，
// 其余请求直接翻译为数字编码提交。
func (a *Adapter) PlaceOrder(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	if req.ClosePosition {
		return a.closeEntirePosition(ctx, req)
	}

	sideCode := encodeSide(req.Side, req.ReduceOnly)
	openType := a.resolveOpenType(req)
	leverage := req.Leverage
	if leverage <= 0 {
		leverage = a.defaultLeverage
	}

	switch req.OrderType {
	case domain.OrderTypeLimit, domain.OrderTypeMarket:
		body := submitOrderRequest{
			Symbol:   req.Symbol,
			Vol:      req.Size,
			Leverage: leverage,
			Side:     sideCode,
			Type:     orderTypeMarket,
			OpenType: openType,
		}
		if req.OrderType == domain.OrderTypeLimit {
			body.Type = orderTypeLimit
			body.Price = req.Price
		}
		var orderID json.Number
		if err := a.doPost(ctx, "/api/v1/private/order/submit", body, &orderID); err != nil {
			log.Errorf("❌ 下单失败: symbol=%s side=%s err=%v", req.Symbol, req.Side, err)
			return domain.OrderError("mexc: %v", err)
		}
		return &domain.FuturesOrderResult{
			Success: true,
			OrderID: orderID.String(),
			Status:  domain.OrderStatusNew,
		}

	case domain.OrderTypeStopLoss, domain.OrderTypeTakeProfit,
		domain.OrderTypeStopLimit, domain.OrderTypeTakeProfitLimit:
		return a.placeTriggerOrder(ctx, req, sideCode, openType, leverage)

	default:
		return domain.OrderError("mexc: 不支持的订单类型 %s", req.OrderType)
	}
}

// placeTriggerOrder 止损/止盈走计划委托接口。
// triggerType: 1=价格≥触发价 2=价格≤触发价；trend 1=最新价。
func (a *Adapter) placeTriggerOrder(ctx context.Context, req *domain.FuturesOrderRequest, sideCode, openType, leverage int) *domain.FuturesOrderResult {
	triggerType := 2 // 价格跌破触发
	isStop := req.OrderType == domain.OrderTypeStopLoss || req.OrderType == domain.OrderTypeStopLimit
	if (isStop && req.Side == domain.SideLong) || (!isStop && req.Side == domain.SideShort) {
		triggerType = 1 // 价格突破触发
	}

	execType := orderTypeMarket
	if req.OrderType == domain.OrderTypeStopLimit || req.OrderType == domain.OrderTypeTakeProfitLimit {
		execType = orderTypeLimit
	}

	body := map[string]any{
		"symbol":       req.Symbol,
		"vol":          req.Size,
		"leverage":     leverage,
		"side":         sideCode,
		"openType":     openType,
		"triggerPrice": req.StopPrice,
		"triggerType":  triggerType,
		"executeCycle": 1, // 24 小时有效
		"orderType":    execType,
		"trend":        1, // 最新价触发
	}
	if execType == orderTypeLimit {
		body["price"] = req.Price
	}

	var planID json.Number
	if err := a.doPost(ctx, "/api/v1/private/planorder/place", body, &planID); err != nil {
		log.Errorf("❌ 计划委托失败: symbol=%s type=%s err=%v", req.Symbol, req.OrderType, err)
		return domain.OrderError("mexc: %v", err)
	}
	return &domain.FuturesOrderResult{
		Success: true,
		OrderID: planID.String(),
		Status:  domain.OrderStatusNew,
	}
}

// closeEntirePosition 全量平仓回退：查持仓→反向市价单平掉剩余数量。
// 没有持仓时是 no-op 成功，不算错误。
func (a *Adapter) closeEntirePosition(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	positions, err := a.GetPositions(ctx, req.Symbol)
	if err != nil {
		return domain.OrderError("mexc: 查询持仓失败: %v", err)
	}

	// closePosition 请求里 side 已经是持仓的反方向
	target := req.Side.Opposite()
	for _, pos := range positions {
		if pos.Side != target || pos.Size <= 0 {
			continue
		}
		closeReq := &domain.FuturesOrderRequest{
			Platform:   req.Platform,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Size:       pos.Size,
			OrderType:  domain.OrderTypeMarket,
			ReduceOnly: true,
		}
		return a.PlaceOrder(ctx, closeReq)
	}

	log.Infof("平仓请求无持仓可平: symbol=%s", req.Symbol)
	return &domain.FuturesOrderResult{
		Success: true,
		Status:  domain.OrderStatusFilled,
	}
}

// CancelOrder 撤单（批量接口，单个 id）
func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) *domain.FuturesOrderResult {
	var results []cancelResult
	if err := a.doPost(ctx, "/api/v1/private/order/cancel", []string{orderID}, &results); err != nil {
		return domain.OrderError("mexc: %v", err)
	}
	for _, r := range results {
		if r.ErrorCode != 0 {
			return domain.OrderError("mexc: 撤单失败 %d: %s", r.ErrorCode, r.ErrorMsg)
		}
	}
	return &domain.FuturesOrderResult{
		Success: true,
		OrderID: orderID,
		Status:  domain.OrderStatusCanceled,
	}
}

// GetOpenOrders 查询未成交订单
func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.FuturesOpenOrder, error) {
	path := "/api/v1/private/order/list/open_orders"
	if symbol != "" {
		path += "/" + symbol
	}
	params := url.Values{}
	params.Set("page_num", "1")
	params.Set("page_size", "100")

	var resp []openOrder
	if err := a.doGet(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("mexc open orders: %w", err)
	}

	orders := make([]domain.FuturesOpenOrder, 0, len(resp))
	for _, o := range resp {
		side, reduceOnly := decodeSide(o.Side)
		orders = append(orders, domain.FuturesOpenOrder{
			OrderID:       strconv.FormatInt(o.OrderID, 10),
			Platform:      domain.PlatformMEXC,
			Symbol:        o.Symbol,
			Side:          side,
			Price:         o.Price,
			OriginalSize:  o.Vol,
			FilledSize:    o.DealVol,
			RemainingSize: o.Vol - o.DealVol,
			OrderType:     decodeOrderType(o.OrderType),
			Status:        decodeState(o.State),
			ReduceOnly:    reduceOnly,
			CreatedAt:     time.UnixMilli(o.CreateTime),
		})
	}
	return orders, nil
}

// GetPositions 查询持仓。MEXC 不在持仓接口里返回标记价格和浮动盈亏，
// 这里补一次 fair_price 查询后本地计算（holdVol 按张数计）。
func (a *Adapter) GetPositions(ctx context.Context, symbol string) ([]domain.FuturesPosition, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var resp []position
	if err := a.doGet(ctx, "/api/v1/private/position/open_positions", params, &resp); err != nil {
		return nil, fmt.Errorf("mexc positions: %w", err)
	}

	var positions []domain.FuturesPosition
	for _, p := range resp {
		if p.HoldVol <= 0 {
			continue
		}
		side := domain.SideLong
		dir := 1.0
		if p.PositionType == 2 {
			side = domain.SideShort
			dir = -1.0
		}
		marginType := domain.MarginTypeCross
		if p.OpenType == openTypeIsolated {
			marginType = domain.MarginTypeIsolated
		}

		mark := 0.0
		unrealized := 0.0
		if fp, err := a.getFairPrice(ctx, p.Symbol); err == nil {
			mark = fp
			unrealized = (mark - p.HoldAvgPrice) * p.HoldVol * dir
		} else {
			log.Debugf("获取标记价格失败: symbol=%s err=%v", p.Symbol, err)
		}

		positions = append(positions, domain.FuturesPosition{
			Platform:         domain.PlatformMEXC,
			Symbol:           p.Symbol,
			Side:             side,
			Size:             p.HoldVol,
			EntryPrice:       p.HoldAvgPrice,
			MarkPrice:        mark,
			LiquidationPrice: p.LiquidatePrice,
			Leverage:         p.Leverage,
			MarginType:       marginType,
			UnrealizedPnl:    unrealized,
			Margin:           p.IM,
			Notional:         p.HoldVol * mark,
		})
	}
	return positions, nil
}

func (a *Adapter) getFairPrice(ctx context.Context, symbol string) (float64, error) {
	var resp fairPrice
	if err := a.doPublic(ctx, "/api/v1/contract/fair_price/"+symbol, &resp); err != nil {
		return 0, err
	}
	return resp.FairPrice, nil
}

// GetBalance 查询合约账户余额
func (a *Adapter) GetBalance(ctx context.Context) ([]domain.FuturesBalance, error) {
	var resp []asset
	if err := a.doGet(ctx, "/api/v1/private/account/assets", nil, &resp); err != nil {
		return nil, fmt.Errorf("mexc balance: %w", err)
	}

	var balances []domain.FuturesBalance
	for _, as := range resp {
		if as.Equity == 0 && as.CashBalance == 0 {
			continue
		}
		balances = append(balances, domain.FuturesBalance{
			Platform:          domain.PlatformMEXC,
			Asset:             as.Currency,
			Balance:           as.CashBalance,
			AvailableBalance:  as.AvailableBalance,
			UnrealizedPnl:     as.Unrealized,
			MarginBalance:     as.Equity,
			InitialMargin:     as.PositionMargin,
			MaintenanceMargin: 0, // MEXC 资产接口不单列维持保证金
		})
	}
	return balances, nil
}

// GetFundingRate 查询当前资金费率（公共接口）
func (a *Adapter) GetFundingRate(ctx context.Context, symbol string) (*domain.FundingRate, error) {
	var resp fundingRate
	if err := a.doPublic(ctx, "/api/v1/contract/funding_rate/"+symbol, &resp); err != nil {
		return nil, fmt.Errorf("mexc funding rate: %w", err)
	}

	mark, _ := a.getFairPrice(ctx, symbol)
	return &domain.FundingRate{
		Platform:        domain.PlatformMEXC,
		Symbol:          resp.Symbol,
		FundingRate:     resp.FundingRate,
		FundingTime:     time.UnixMilli(resp.Timestamp),
		NextFundingTime: time.UnixMilli(resp.NextSettleTime),
		MarkPrice:       mark,
	}, nil
}

// SetLeverage 设置杠杆。无持仓时 MEXC 要求按 positionType 分别设置，
// 多空两个方向都发一遍。
func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	openType := a.currentOpenType(symbol)
	for _, positionType := range []int{1, 2} {
		body := map[string]any{
			"symbol":       symbol,
			"leverage":     leverage,
			"openType":     openType,
			"positionType": positionType,
		}
		if err := a.doPost(ctx, "/api/v1/private/position/change_leverage", body, nil); err != nil {
			return fmt.Errorf("mexc set leverage (positionType=%d): %w", positionType, err)
		}
	}
	return nil
}

// SetMarginType 记录偏好，下次下单生效（MEXC 没有独立接口）
func (a *Adapter) SetMarginType(ctx context.Context, symbol string, marginType domain.MarginType) error {
	a.marginPrefs.Set(symbol, marginType)
	log.Infof("已记录保证金模式偏好（下次下单生效）: symbol=%s marginType=%s", symbol, marginType)
	return nil
}

// GetIncomeHistory 查询资金费流水
func (a *Adapter) GetIncomeHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.IncomeRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	params := url.Values{}
	params.Set("page_num", "1")
	params.Set("page_size", strconv.Itoa(limit))
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var page fundingRecordPage
	if err := a.doGet(ctx, "/api/v1/private/position/funding_records", params, &page); err != nil {
		return nil, fmt.Errorf("mexc income: %w", err)
	}

	var records []domain.IncomeRecord
	for _, r := range page.ResultList {
		ts := time.UnixMilli(r.SettleTime)
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		records = append(records, domain.IncomeRecord{
			Platform:   domain.PlatformMEXC,
			Symbol:     r.Symbol,
			IncomeType: "FUNDING_FEE",
			Income:     r.Funding,
			Asset:      "USDT",
			Time:       ts,
		})
	}
	return records, nil
}

// resolveOpenType 决定下单 openType：请求显式指定 > 偏好缓存 > 默认值
func (a *Adapter) resolveOpenType(req *domain.FuturesOrderRequest) int {
	if req.MarginType != "" {
		return marginTypeToOpenType(req.MarginType)
	}
	return a.currentOpenType(req.Symbol)
}

func (a *Adapter) currentOpenType(symbol string) int {
	if mt, ok := a.marginPrefs.Get(symbol); ok {
		return marginTypeToOpenType(mt)
	}
	return marginTypeToOpenType(a.defaultMarginType)
}

func marginTypeToOpenType(mt domain.MarginType) int {
	if mt == domain.MarginTypeIsolated {
		return openTypeIsolated
	}
	return openTypeCross
}

// encodeSide 把 {side, reduceOnly} 翻译为 MEXC 数字编码。
// 平仓单的 side 是订单方向（与持仓相反）：reduceOnly 的多头方向订单
// 实际是在平空（2），空头方向订单是在平多（4）。
func encodeSide(side domain.Side, reduceOnly bool) int {
	if side == domain.SideLong {
		if reduceOnly {
			return sideCloseShort
		}
		return sideOpenLong
	}
	if reduceOnly {
		return sideCloseLong
	}
	return sideOpenShort
}

func decodeSide(code int) (domain.Side, bool) {
	switch code {
	case sideOpenLong:
		return domain.SideLong, false
	case sideCloseShort:
		return domain.SideLong, true
	case sideOpenShort:
		return domain.SideShort, false
	case sideCloseLong:
		return domain.SideShort, true
	default:
		return domain.SideLong, false
	}
}

func decodeOrderType(code int) domain.OrderType {
	if code == orderTypeMarket {
		return domain.OrderTypeMarket
	}
	return domain.OrderTypeLimit
}

func decodeState(state int) domain.OrderStatus {
	switch state {
	case 1:
		return domain.OrderStatusNew
	case 2:
		return domain.OrderStatusPartiallyFilled
	case 3:
		return domain.OrderStatusFilled
	case 4:
		return domain.OrderStatusCanceled
	case 5:
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusNew
	}
}
