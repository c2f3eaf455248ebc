package mexc

import "encoding/json"

// 合约 API 统一响应包装
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// side 编码：1=开多 2=平空 3=开空 4=平多
// openType 编码：1=逐仓 2=全仓
// type 编码：1=限价 5=市价
// state 编码：1=待成交 2=部分成交 3=已成交 4=已撤销 5=无效
const (
	sideOpenLong   = 1
	sideCloseShort = 2
	sideOpenShort  = 3
	sideCloseLong  = 4

	openTypeIsolated = 1
	openTypeCross    = 2

	orderTypeLimit  = 1
	orderTypeMarket = 5
)

type submitOrderRequest struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price,omitempty"`
	Vol        float64 `json:"vol"`
	Leverage   int     `json:"leverage,omitempty"`
	Side       int     `json:"side"`
	Type       int     `json:"type"`
	OpenType   int     `json:"openType"`
	ExternalID string  `json:"externalOid,omitempty"`
}

type openOrder struct {
	OrderID      int64   `json:"orderId"`
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	Vol          float64 `json:"vol"`
	DealVol      float64 `json:"dealVol"`
	DealAvgPrice float64 `json:"dealAvgPrice"`
	OrderType    int     `json:"orderType"`
	Side         int     `json:"side"`
	State        int     `json:"state"`
	OpenType     int     `json:"openType"`
	ExternalOid  string  `json:"externalOid"`
	CreateTime   int64   `json:"createTime"`
}

type position struct {
	PositionID     int64   `json:"positionId"`
	Symbol         string  `json:"symbol"`
	PositionType   int     `json:"positionType"` // 1=多 2=空
	OpenType       int     `json:"openType"`
	HoldVol        float64 `json:"holdVol"`
	HoldAvgPrice   float64 `json:"holdAvgPrice"`
	OpenAvgPrice   float64 `json:"openAvgPrice"`
	LiquidatePrice float64 `json:"liquidatePrice"`
	IM             float64 `json:"im"`
	Leverage       int     `json:"leverage"`
	Realised       float64 `json:"realised"`
}

type asset struct {
	Currency         string  `json:"currency"`
	PositionMargin   float64 `json:"positionMargin"`
	AvailableBalance float64 `json:"availableBalance"`
	CashBalance      float64 `json:"cashBalance"`
	FrozenBalance    float64 `json:"frozenBalance"`
	Equity           float64 `json:"equity"`
	Unrealized       float64 `json:"unrealized"`
}

type fundingRate struct {
	Symbol         string  `json:"symbol"`
	FundingRate    float64 `json:"fundingRate"`
	CollectCycle   int     `json:"collectCycle"` // 收取周期（小时）
	NextSettleTime int64   `json:"nextSettleTime"`
	Timestamp      int64   `json:"timestamp"`
}

type fairPrice struct {
	Symbol    string  `json:"symbol"`
	FairPrice float64 `json:"fairPrice"`
	Timestamp int64   `json:"timestamp"`
}

type fundingRecord struct {
	ID           int64   `json:"id"`
	Symbol       string  `json:"symbol"`
	PositionType int     `json:"positionType"`
	Funding      float64 `json:"funding"`
	Rate         float64 `json:"rate"`
	SettleTime   int64   `json:"settleTime"`
}

type fundingRecordPage struct {
	PageSize    int             `json:"pageSize"`
	TotalCount  int             `json:"totalCount"`
	TotalPage   int             `json:"totalPage"`
	CurrentPage int             `json:"currentPage"`
	ResultList  []fundingRecord `json:"resultList"`
}

type cancelResult struct {
	OrderID   int64  `json:"orderId"`
	ErrorCode int    `json:"errorCode"`
	ErrorMsg  string `json:"errorMsg"`
}
