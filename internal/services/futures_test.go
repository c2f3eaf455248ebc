package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/exchange"
	"github.com/betbot/goperp/internal/risk"
	"github.com/betbot/goperp/pkg/config"
)

// mockAdapter 计数型假 adapter，记录每类调用次数与最近一次请求
type mockAdapter struct {
	platform domain.Platform

	placeCalls   int
	cancelCalls  int
	queryCalls   int
	lastRequest  *domain.FuturesOrderRequest
	placeResult  *domain.FuturesOrderResult
	openOrders   []domain.FuturesOpenOrder
	positions    []domain.FuturesPosition
	balances     []domain.FuturesBalance
	queryErr     error
	leverageErr  error
	leverageSets int
}

var _ exchange.Adapter = (*mockAdapter)(nil)

func (m *mockAdapter) Name() domain.Platform { return m.platform }

func (m *mockAdapter) PlaceOrder(ctx context.Context, req *domain.FuturesOrderRequest) *domain.FuturesOrderResult {
	m.placeCalls++
	m.lastRequest = req
	if m.placeResult != nil {
		return m.placeResult
	}
	return &domain.FuturesOrderResult{Success: true, OrderID: "mock-1", Status: domain.OrderStatusNew}
}

func (m *mockAdapter) CancelOrder(ctx context.Context, symbol, orderID string) *domain.FuturesOrderResult {
	m.cancelCalls++
	return &domain.FuturesOrderResult{Success: true, OrderID: orderID, Status: domain.OrderStatusCanceled}
}

func (m *mockAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]domain.FuturesOpenOrder, error) {
	m.queryCalls++
	return m.openOrders, m.queryErr
}

func (m *mockAdapter) GetPositions(ctx context.Context, symbol string) ([]domain.FuturesPosition, error) {
	m.queryCalls++
	return m.positions, m.queryErr
}

func (m *mockAdapter) GetBalance(ctx context.Context) ([]domain.FuturesBalance, error) {
	m.queryCalls++
	return m.balances, m.queryErr
}

func (m *mockAdapter) GetFundingRate(ctx context.Context, symbol string) (*domain.FundingRate, error) {
	m.queryCalls++
	return &domain.FundingRate{Platform: m.platform, Symbol: symbol}, m.queryErr
}

func (m *mockAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.leverageSets++
	return m.leverageErr
}

func (m *mockAdapter) SetMarginType(ctx context.Context, symbol string, marginType domain.MarginType) error {
	return nil
}

func (m *mockAdapter) GetIncomeHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.IncomeRecord, error) {
	m.queryCalls++
	return nil, m.queryErr
}

func newTestService(dryRun bool, adapters ...*mockAdapter) (*FuturesService, map[domain.Platform]*mockAdapter) {
	s := &FuturesService{
		cfg: config.FuturesConfig{
			DefaultLeverage:   5,
			DefaultMarginType: domain.MarginTypeCross,
			MaxPositionSize:   1000,
			DryRun:            dryRun,
		},
		adapters: make(map[domain.Platform]exchange.Adapter),
	}
	mocks := make(map[domain.Platform]*mockAdapter)
	for _, a := range adapters {
		s.adapters[a.platform] = a
		mocks[a.platform] = a
	}
	return s, mocks
}

func TestSizeCapRejectedBeforeNetwork(t *testing.T) {
	s, mocks := newTestService(false, &mockAdapter{platform: domain.PlatformBinance})

	// 2 * 600 = 1200 > 1000
	res := s.PlaceLimitOrder(context.Background(), domain.PlatformBinance, "BTCUSDT", domain.SideLong, 2, 600, false)
	if res.Success {
		t.Fatal("超限订单应被拒绝")
	}
	if !strings.Contains(res.Error, "1000") {
		t.Errorf("错误信息应包含上限值: %s", res.Error)
	}
	if mocks[domain.PlatformBinance].placeCalls != 0 {
		t.Error("超限订单不应触达 adapter")
	}
}

func TestMarketOrderSizeCapTreatsPriceAsOne(t *testing.T) {
	s, mocks := newTestService(false, &mockAdapter{platform: domain.PlatformBinance})

	// 市价单无价格：size 直接与上限比较，999 <= 1000 放行
	res := s.PlaceMarketOrder(context.Background(), domain.PlatformBinance, "BTCUSDT", domain.SideLong, 999, false)
	if !res.Success {
		t.Fatalf("999 <= 1000 应放行: %s", res.Error)
	}
	// 1001 > 1000 拒绝
	res = s.PlaceMarketOrder(context.Background(), domain.PlatformBinance, "BTCUSDT", domain.SideLong, 1001, false)
	if res.Success {
		t.Fatal("1001 > 1000 应拒绝")
	}
	if mocks[domain.PlatformBinance].placeCalls != 1 {
		t.Errorf("placeCalls = %d, want 1", mocks[domain.PlatformBinance].placeCalls)
	}
}

func TestOpenOrderNotionalUsesReferencePrice(t *testing.T) {
	s, mocks := newTestService(false, &mockAdapter{platform: domain.PlatformBinance})
	mock := mocks[domain.PlatformBinance]

	// 0.01 BTC @ 150000 = 1500 > 1000，带参考价的市价开仓必须在触网前拒绝
	res := s.OpenShort(context.Background(), domain.PlatformBinance, "BTCUSDT", 0.01, 150000, 5)
	if res.Success {
		t.Fatal("名义价值超限的市价开仓应被拒绝")
	}
	if !strings.Contains(res.Error, "1000") {
		t.Errorf("错误信息应包含上限值: %s", res.Error)
	}
	if mock.placeCalls != 0 {
		t.Errorf("超限订单不应触达 adapter, placeCalls = %d", mock.placeCalls)
	}

	// 0.01 * 50000 = 500 <= 1000 放行
	if res := s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 0.01, 50000, 5); !res.Success {
		t.Fatalf("限内订单应放行: %s", res.Error)
	}
	if mock.placeCalls != 1 {
		t.Errorf("placeCalls = %d, want 1", mock.placeCalls)
	}
}

func TestUnconfiguredPlatform(t *testing.T) {
	s, _ := newTestService(false, &mockAdapter{platform: domain.PlatformBinance})

	res := s.OpenLong(context.Background(), domain.PlatformBybit, "BTCUSDT", 1, 0, 5)
	if res.Success {
		t.Fatal("未配置平台应失败")
	}
	if !strings.Contains(res.Error, "not configured") {
		t.Errorf("错误信息应为 not configured: %s", res.Error)
	}

	if _, err := s.GetPositions(context.Background(), domain.PlatformBybit, ""); err == nil {
		t.Error("未配置平台的查询应返回 error")
	}
}

func TestDryRunShortCircuitsMutations(t *testing.T) {
	s, mocks := newTestService(true, &mockAdapter{platform: domain.PlatformBinance})
	mock := mocks[domain.PlatformBinance]

	res := s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 1, 0, 10)
	if !res.Success {
		t.Fatalf("dry-run 应返回成功: %s", res.Error)
	}
	if res.Status != domain.OrderStatusFilled {
		t.Errorf("status = %s, want FILLED", res.Status)
	}
	if res.OrderID == "" {
		t.Error("dry-run 应生成模拟订单号")
	}
	if res.FilledSize != 1 {
		t.Errorf("filledSize = %v, want 1", res.FilledSize)
	}
	if mock.placeCalls != 0 {
		t.Error("dry-run 不应触达 adapter")
	}

	if !s.SetLeverage(context.Background(), domain.PlatformBinance, "BTCUSDT", 10) {
		t.Error("dry-run SetLeverage 应返回 true")
	}
	if mock.leverageSets != 0 {
		t.Error("dry-run SetLeverage 不应触达 adapter")
	}
}

func TestDryRunDoesNotShortCircuitQueries(t *testing.T) {
	s, mocks := newTestService(true, &mockAdapter{platform: domain.PlatformBinance})
	mock := mocks[domain.PlatformBinance]

	if _, err := s.GetPositions(context.Background(), domain.PlatformBinance, ""); err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if mock.queryCalls != 1 {
		t.Errorf("dry-run 查询应照常触达 adapter, queryCalls = %d", mock.queryCalls)
	}
}

func TestFanOutDropsFailingPlatform(t *testing.T) {
	good := &mockAdapter{
		platform: domain.PlatformBinance,
		positions: []domain.FuturesPosition{
			{Platform: domain.PlatformBinance, Symbol: "BTCUSDT", Side: domain.SideLong, Size: 1},
		},
	}
	bad := &mockAdapter{
		platform: domain.PlatformBybit,
		queryErr: errors.New("api down"),
	}
	s, _ := newTestService(false, good, bad)

	positions, err := s.GetPositions(context.Background(), "", "")
	if err != nil {
		t.Fatalf("扇出不应返回 error: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1（坏平台被丢弃）", len(positions))
	}
	if positions[0].Platform != domain.PlatformBinance {
		t.Errorf("platform = %s, want binance", positions[0].Platform)
	}
}

func TestCloseLongForcesReduceOnlyShort(t *testing.T) {
	mock := &mockAdapter{platform: domain.PlatformBinance}
	s, _ := newTestService(false, mock)

	s.CloseLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 2)
	req := mock.lastRequest
	if req == nil {
		t.Fatal("adapter 未被调用")
	}
	if req.Side != domain.SideShort {
		t.Errorf("side = %s, want short（平多 = 反向订单）", req.Side)
	}
	if !req.ReduceOnly {
		t.Error("平仓订单必须 reduceOnly")
	}
}

func TestCloseLongFullWhenSizeZero(t *testing.T) {
	mock := &mockAdapter{platform: domain.PlatformBinance}
	s, _ := newTestService(false, mock)

	s.CloseLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 0)
	if mock.lastRequest == nil || !mock.lastRequest.ClosePosition {
		t.Error("size=0 应转为全量平仓请求")
	}
}

func TestClosePositionNoPositionIsNoop(t *testing.T) {
	mock := &mockAdapter{platform: domain.PlatformBinance} // 无持仓
	s, _ := newTestService(false, mock)

	res := s.ClosePosition(context.Background(), domain.PlatformBinance, "BTCUSDT")
	if !res.Success {
		t.Fatalf("无持仓平仓应为 no-op 成功: %s", res.Error)
	}
	if mock.placeCalls != 0 {
		t.Error("无持仓时不应下单")
	}
}

func TestClosePositionClosesExactSize(t *testing.T) {
	mock := &mockAdapter{
		platform: domain.PlatformBinance,
		positions: []domain.FuturesPosition{
			{Platform: domain.PlatformBinance, Symbol: "BTCUSDT", Side: domain.SideLong, Size: 3},
		},
	}
	s, _ := newTestService(false, mock)

	res := s.ClosePosition(context.Background(), domain.PlatformBinance, "BTCUSDT")
	if !res.Success {
		t.Fatalf("平仓失败: %s", res.Error)
	}
	req := mock.lastRequest
	if req.Side != domain.SideShort || !req.ReduceOnly || req.Size != 3 {
		t.Errorf("平仓请求错误: side=%s reduceOnly=%v size=%v", req.Side, req.ReduceOnly, req.Size)
	}
}

func TestCancelAllOrdersReturnsCountOnly(t *testing.T) {
	mock := &mockAdapter{
		platform: domain.PlatformBinance,
		openOrders: []domain.FuturesOpenOrder{
			{OrderID: "1", Platform: domain.PlatformBinance, Symbol: "BTCUSDT"},
			{OrderID: "2", Platform: domain.PlatformBinance, Symbol: "BTCUSDT"},
		},
	}
	s, _ := newTestService(false, mock)

	count := s.CancelAllOrders(context.Background(), domain.PlatformBinance, "BTCUSDT")
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if mock.cancelCalls != 2 {
		t.Errorf("cancelCalls = %d, want 2（逐个撤销）", mock.cancelCalls)
	}
}

func TestSetLeverageFoldedToBool(t *testing.T) {
	mock := &mockAdapter{platform: domain.PlatformBinance, leverageErr: errors.New("rejected")}
	s, _ := newTestService(false, mock)

	if s.SetLeverage(context.Background(), domain.PlatformBinance, "BTCUSDT", 10) {
		t.Error("adapter 失败应折叠为 false")
	}
	if s.SetLeverage(context.Background(), domain.PlatformBinance, "BTCUSDT", 0) {
		t.Error("非法杠杆应返回 false")
	}
	if s.SetLeverage(context.Background(), domain.PlatformBybit, "BTCUSDT", 10) {
		t.Error("未配置平台应返回 false")
	}
}

func TestOpenLongUsesDefaultLeverage(t *testing.T) {
	mock := &mockAdapter{platform: domain.PlatformBinance}
	s, _ := newTestService(false, mock)

	s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 1, 0, 0)
	if mock.lastRequest.Leverage != 5 {
		t.Errorf("leverage = %d, want 默认 5", mock.lastRequest.Leverage)
	}
}

func TestAdapterFailureIsStructuredResult(t *testing.T) {
	mock := &mockAdapter{
		platform:    domain.PlatformBinance,
		placeResult: domain.OrderError("insufficient margin"),
	}
	s, _ := newTestService(false, mock)

	res := s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 1, 0, 5)
	if res.Success {
		t.Fatal("应返回结构化失败")
	}
	if res.Error != "insufficient margin" {
		t.Errorf("error = %s", res.Error)
	}
}

func TestCircuitBreakerTripsAndRejects(t *testing.T) {
	mock := &mockAdapter{
		platform:    domain.PlatformBinance,
		placeResult: domain.OrderError("exchange down"),
	}
	s, _ := newTestService(false, mock)
	s.breaker = risk.NewCircuitBreaker(2)

	// 连续 2 次失败后熔断
	s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 1, 0, 5)
	s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 1, 0, 5)

	res := s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 1, 0, 5)
	if res.Success {
		t.Fatal("熔断后下单应被拒绝")
	}
	if !strings.Contains(res.Error, "halted") {
		t.Errorf("error = %s", res.Error)
	}
	if mock.placeCalls != 2 {
		t.Errorf("熔断后不应再触达 adapter, placeCalls = %d", mock.placeCalls)
	}

	// 人工恢复后放行
	s.breaker.Resume()
	mock.placeResult = &domain.FuturesOrderResult{Success: true, OrderID: "1", Status: domain.OrderStatusFilled}
	if res := s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 1, 0, 5); !res.Success {
		t.Fatalf("恢复后应放行: %s", res.Error)
	}
}

func TestCircuitBreakerSuccessResets(t *testing.T) {
	mock := &mockAdapter{
		platform:    domain.PlatformBinance,
		placeResult: domain.OrderError("timeout"),
	}
	s, _ := newTestService(false, mock)
	s.breaker = risk.NewCircuitBreaker(2)

	s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 1, 0, 5)
	mock.placeResult = &domain.FuturesOrderResult{Success: true, OrderID: "1", Status: domain.OrderStatusFilled}
	s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 1, 0, 5)
	mock.placeResult = domain.OrderError("timeout")
	s.OpenLong(context.Background(), domain.PlatformBinance, "BTCUSDT", 1, 0, 5)

	// 失败-成功-失败：从未连续 2 次，不应熔断
	if s.breaker.Halted() {
		t.Error("非连续失败不应熔断")
	}
}
