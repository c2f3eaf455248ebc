package exchange

import (
	"context"
	"time"

	"github.com/betbot/goperp/internal/domain"
)

// Adapter 交易所适配器统一接口。
// 每个交易所实现同一组操作，把归一化的订单/查询模型翻译为交易所原生
// 请求与响应。约定：
//   - PlaceOrder 永远返回 FuturesOrderResult，传输层/协议层错误一律
//     转换为 {Success:false, Error}，不向上层返回 error；
//   - 查询操作返回 (结果, error)，由 façade 决定聚合时如何降级；
//   - SetLeverage/SetMarginType 返回 error，façade 把它折叠为 bool。
type Adapter interface {
	// Name 返回平台标识
	Name() domain.Platform

	// PlaceOrder 下单（请求已由 façade 完成尺寸校验）
	PlaceOrder(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult

	// CancelOrder 撤单
	CancelOrder(ctx context.Context, symbol, orderID string) *domain.FuturesOrderResult

	// GetOpenOrders 查询未成交订单（symbol 为空表示全部）
	GetOpenOrders(ctx context.Context, symbol string) ([]domain.FuturesOpenOrder, error)

	// GetPositions 查询持仓（symbol 为空表示全部）
	GetPositions(ctx context.Context, symbol string) ([]domain.FuturesPosition, error)

	// GetBalance 查询合约账户余额
	GetBalance(ctx context.Context) ([]domain.FuturesBalance, error)

	// GetFundingRate 查询当前资金费率
	GetFundingRate(ctx context.Context, symbol string) (*domain.FundingRate, error)

	// SetLeverage 设置杠杆
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// SetMarginType 设置保证金模式。部分交易所没有独立的保证金模式概念
	// （统一账户），实现为记录日志后直接成功；部分交易所只能在下单时指定，
	// 实现为记住偏好、下次下单时生效。
	SetMarginType(ctx context.Context, symbol string, marginType domain.MarginType) error

	// GetIncomeHistory 查询账户收益流水（资金费/已实现盈亏等）
	GetIncomeHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.IncomeRecord, error)
}
