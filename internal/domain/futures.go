package domain

import (
	"fmt"
	"time"
)

// Platform 交易所平台标识
type Platform string

const (
	PlatformBinance     Platform = "binance"
	PlatformBybit       Platform = "bybit"
	PlatformMEXC        Platform = "mexc"
	PlatformHyperliquid Platform = "hyperliquid"
)

// AllPlatforms 返回所有支持的平台（顺序固定，聚合查询按此顺序遍历）
func AllPlatforms() []Platform {
	return []Platform{PlatformBinance, PlatformBybit, PlatformMEXC, PlatformHyperliquid}
}

// Valid 检查平台标识是否合法
func (p Platform) Valid() bool {
	switch p {
	case PlatformBinance, PlatformBybit, PlatformMEXC, PlatformHyperliquid:
		return true
	}
	return false
}

// Side 仓位方向（统一模型：long/short）
// 各交易所的 BUY/SELL、数字开平仓编码等词汇表只存在于 adapter 内部，
// 绝不允许泄漏到 domain 或 façade 层。
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite 返回相反方向（平仓时使用）
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// MarginType 保证金模式
type MarginType string

const (
	MarginTypeIsolated MarginType = "isolated" // 逐仓
	MarginTypeCross    MarginType = "cross"    // 全仓
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeStopLoss        OrderType = "STOP_LOSS"
	OrderTypeTakeProfit      OrderType = "TAKE_PROFIT"
	OrderTypeStopLimit       OrderType = "STOP_LIMIT"
	OrderTypeTakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
)

// OrderStatus 订单状态（统一模型）
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// FuturesOrderRequest 合约下单请求（已归一化）
// Side 永远是 long/short；reduceOnly/closePosition 与 side 一起构成统一的
// 开平仓三元组，由各 adapter 翻译为交易所原生词汇。
type FuturesOrderRequest struct {
	Platform      Platform   `json:"platform"`
	Symbol        string     `json:"symbol"`
	Side          Side       `json:"side"`
	Price         float64    `json:"price,omitempty"`      // 限价类订单必填
	Size          float64    `json:"size"`                 // 数量（币本位数量，始终为正）
	Leverage      int        `json:"leverage,omitempty"`   // 可选，下单前先行设置
	MarginType    MarginType `json:"marginType,omitempty"` // 可选
	OrderType     OrderType  `json:"orderType"`
	TimeInForce   string     `json:"timeInForce,omitempty"` // GTC/IOC/FOK
	ReduceOnly    bool       `json:"reduceOnly,omitempty"`
	StopPrice     float64    `json:"stopPrice,omitempty"` // 触发价（止损/止盈类订单）
	ClosePosition bool       `json:"closePosition,omitempty"`
}

// Notional 计算请求的名义价值（USD）。市价单没有价格时按 1 计，
// 即市价单的 size 直接与 maxPositionSize 比较。
func (r *FuturesOrderRequest) Notional() float64 {
	price := r.Price
	if price <= 0 {
		price = 1
	}
	return r.Size * price
}

// FuturesOrderResult 下单/撤单结果。
// 不变量：Success 为 true 时填充订单明细字段，为 false 时只填充 Error，
// 两者互斥。adapter 必须捕获一切传输层错误并转换为 {Success:false}，
// 不允许向 façade 抛出异常。
type FuturesOrderResult struct {
	Success         bool        `json:"success"`
	OrderID         string      `json:"orderId,omitempty"`
	ClientOrderID   string      `json:"clientOrderId,omitempty"`
	FilledSize      float64     `json:"filledSize,omitempty"`
	AvgFillPrice    float64     `json:"avgFillPrice,omitempty"`
	Status          OrderStatus `json:"status,omitempty"`
	Commission      float64     `json:"commission,omitempty"`
	CommissionAsset string      `json:"commissionAsset,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// OrderError 构造失败结果
func OrderError(format string, args ...interface{}) *FuturesOrderResult {
	return &FuturesOrderResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// FuturesPosition 合约持仓（只读投影，每次查询实时拉取，core 不做缓存）
// Size 始终为正，方向由 Side 表达。
type FuturesPosition struct {
	Platform         Platform   `json:"platform"`
	Symbol           string     `json:"symbol"`
	Side             Side       `json:"side"`
	Size             float64    `json:"size"`
	EntryPrice       float64    `json:"entryPrice"`
	MarkPrice        float64    `json:"markPrice"`
	LiquidationPrice float64    `json:"liquidationPrice"`
	Leverage         int        `json:"leverage"`
	MarginType       MarginType `json:"marginType"`
	UnrealizedPnl    float64    `json:"unrealizedPnl"`
	Margin           float64    `json:"margin"`
	Notional         float64    `json:"notional"`
}

// FuturesOpenOrder 未成交订单
type FuturesOpenOrder struct {
	OrderID       string      `json:"orderId"`
	Platform      Platform    `json:"platform"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Price         float64     `json:"price"`
	OriginalSize  float64     `json:"originalSize"`
	FilledSize    float64     `json:"filledSize"`
	RemainingSize float64     `json:"remainingSize"` // = OriginalSize - FilledSize
	OrderType     OrderType   `json:"orderType"`
	TimeInForce   string      `json:"timeInForce,omitempty"`
	Status        OrderStatus `json:"status"`
	ReduceOnly    bool        `json:"reduceOnly"`
	StopPrice     float64     `json:"stopPrice,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// FuturesBalance 合约账户余额
type FuturesBalance struct {
	Platform          Platform `json:"platform"`
	Asset             string   `json:"asset"`
	Balance           float64  `json:"balance"`
	AvailableBalance  float64  `json:"availableBalance"`
	UnrealizedPnl     float64  `json:"unrealizedPnl"`
	MarginBalance     float64  `json:"marginBalance"`
	MaintenanceMargin float64  `json:"maintenanceMargin"`
	InitialMargin     float64  `json:"initialMargin"`
}

// FundingRate 资金费率（0.0001 = 0.01%）
type FundingRate struct {
	Platform        Platform  `json:"platform"`
	Symbol          string    `json:"symbol"`
	FundingRate     float64   `json:"fundingRate"`
	FundingTime     time.Time `json:"fundingTime"`
	NextFundingTime time.Time `json:"nextFundingTime"`
	MarkPrice       float64   `json:"markPrice"`
	IndexPrice      float64   `json:"indexPrice"`
}

// IncomeRecord 账户收益流水（资金费、已实现盈亏、手续费等）
type IncomeRecord struct {
	Platform   Platform  `json:"platform"`
	Symbol     string    `json:"symbol,omitempty"`
	IncomeType string    `json:"incomeType"` // FUNDING_FEE/REALIZED_PNL/COMMISSION/...
	Income     float64   `json:"income"`
	Asset      string    `json:"asset"`
	Time       time.Time `json:"time"`
}
