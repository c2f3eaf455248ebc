package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/betbot/goperp/internal/domain"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", "test-secret", srv.URL)
}

func TestPlaceOrderSignedRequest(t *testing.T) {
	var captured url.Values
	var apiKeyHeader string

	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/fapi/v1/leverage":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"leverage":10,"symbol":"BTCUSDT"}`))
		case r.URL.Path == "/fapi/v1/order" && r.Method == http.MethodPost:
			captured = r.URL.Query()
			apiKeyHeader = r.Header.Get("X-MBX-APIKEY")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"orderId":112233,"clientOrderId":"abc","symbol":"BTCUSDT","status":"NEW","price":"50000","origQty":"0.5","executedQty":"0","side":"BUY","type":"LIMIT"}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	result := a.PlaceOrder(context.Background(), &domain.FuturesOrderRequest{
		Platform:  domain.PlatformBinance,
		Symbol:    "BTCUSDT",
		Side:      domain.SideLong,
		Size:      0.5,
		Price:     50000,
		OrderType: domain.OrderTypeLimit,
		Leverage:  10,
	})

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.OrderID != "112233" {
		t.Errorf("orderID = %s, want 112233", result.OrderID)
	}
	if apiKeyHeader != "test-key" {
		t.Errorf("X-MBX-APIKEY = %s", apiKeyHeader)
	}
	if captured.Get("side") != "BUY" {
		t.Errorf("side = %s, want BUY", captured.Get("side"))
	}
	if captured.Get("type") != "LIMIT" {
		t.Errorf("type = %s, want LIMIT", captured.Get("type"))
	}
	if captured.Get("quantity") != "0.5" {
		t.Errorf("quantity = %s, want 0.5", captured.Get("quantity"))
	}

	// 验证签名：signature = HMAC(secret, 去掉 signature 后的 query)
	sig := captured.Get("signature")
	if sig == "" {
		t.Fatal("missing signature")
	}
	unsigned := url.Values{}
	for k, v := range captured {
		if k != "signature" {
			unsigned[k] = v
		}
	}
	h := hmac.New(sha256.New, []byte("test-secret"))
	h.Write([]byte(unsigned.Encode()))
	if want := hex.EncodeToString(h.Sum(nil)); sig != want {
		t.Errorf("signature = %s, want %s", sig, want)
	}
}

func TestPlaceOrderStopMarketClosePositionOmitsQuantity(t *testing.T) {
	var captured url.Values
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orderId":1,"status":"NEW"}`))
	})

	a.PlaceOrder(context.Background(), &domain.FuturesOrderRequest{
		Symbol:        "BTCUSDT",
		Side:          domain.SideShort,
		OrderType:     domain.OrderTypeStopLoss,
		StopPrice:     55000,
		ClosePosition: true,
	})

	if captured.Get("type") != "STOP_MARKET" {
		t.Errorf("type = %s, want STOP_MARKET", captured.Get("type"))
	}
	if captured.Get("closePosition") != "true" {
		t.Error("closePosition 应为 true")
	}
	if captured.Has("quantity") {
		t.Error("closePosition 单不应带 quantity")
	}
}

func TestPlaceOrderMarketCloseFallsBackToPositionLookup(t *testing.T) {
	var captured url.Values
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/fapi/v2/positionRisk":
			w.Write([]byte(`[{"symbol":"BTCUSDT","positionAmt":"0.03","entryPrice":"60000","markPrice":"61000","unRealizedProfit":"30","liquidationPrice":"54000","leverage":"10","marginType":"cross","isolatedMargin":"0","notional":"1830"}]`))
		case r.URL.Path == "/fapi/v1/order" && r.Method == http.MethodPost:
			captured = r.URL.Query()
			w.Write([]byte(`{"orderId":42,"status":"FILLED","executedQty":"0.03","avgPrice":"61000"}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	// 市价全量平多 = 反向 SELL reduceOnly 市价单，数量取自持仓
	result := a.PlaceOrder(context.Background(), &domain.FuturesOrderRequest{
		Symbol:        "BTCUSDT",
		Side:          domain.SideShort,
		OrderType:     domain.OrderTypeMarket,
		ClosePosition: true,
	})

	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Error)
	}
	if captured.Get("type") != "MARKET" {
		t.Errorf("type = %s, want MARKET", captured.Get("type"))
	}
	if captured.Get("side") != "SELL" {
		t.Errorf("side = %s, want SELL", captured.Get("side"))
	}
	if captured.Get("quantity") != "0.03" {
		t.Errorf("quantity = %s, want 0.03", captured.Get("quantity"))
	}
	if captured.Get("reduceOnly") != "true" {
		t.Error("平仓单应为 reduceOnly")
	}
	if captured.Has("closePosition") {
		t.Error("MARKET 单不应携带 closePosition 参数")
	}
}

func TestPlaceOrderMarketCloseWithoutPositionIsNoop(t *testing.T) {
	orderPlaced := false
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/fapi/v2/positionRisk" {
			w.Write([]byte(`[]`))
			return
		}
		orderPlaced = true
		w.Write([]byte(`{"orderId":1,"status":"NEW"}`))
	})

	result := a.PlaceOrder(context.Background(), &domain.FuturesOrderRequest{
		Symbol:        "BTCUSDT",
		Side:          domain.SideShort,
		OrderType:     domain.OrderTypeMarket,
		ClosePosition: true,
	})

	if !result.Success {
		t.Fatalf("无持仓平仓应为 no-op 成功: %s", result.Error)
	}
	if result.Status != domain.OrderStatusFilled {
		t.Errorf("status = %s, want FILLED", result.Status)
	}
	if orderPlaced {
		t.Error("无持仓不应下单")
	}
}

func TestPlaceOrderLeverageFailureDoesNotBlock(t *testing.T) {
	orderPlaced := false
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/fapi/v1/leverage" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-4028,"msg":"Invalid leverage"}`))
			return
		}
		orderPlaced = true
		w.Write([]byte(`{"orderId":7,"status":"NEW"}`))
	})

	result := a.PlaceOrder(context.Background(), &domain.FuturesOrderRequest{
		Symbol:    "BTCUSDT",
		Side:      domain.SideLong,
		Size:      1,
		OrderType: domain.OrderTypeMarket,
		Leverage:  999,
	})

	if !orderPlaced {
		t.Fatal("杠杆设置失败不应阻断下单")
	}
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Error)
	}
}

func TestPlaceOrderTransportErrorBecomesResult(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	})

	result := a.PlaceOrder(context.Background(), &domain.FuturesOrderRequest{
		Symbol:    "BTCUSDT",
		Side:      domain.SideLong,
		Size:      1,
		OrderType: domain.OrderTypeMarket,
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "-2019") {
		t.Errorf("错误信息应包含交易所返回: %s", result.Error)
	}
}

func TestGetPositionsNormalizesSignedAmount(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","positionAmt":"-0.02","entryPrice":"60000","markPrice":"59000","unRealizedProfit":"20","liquidationPrice":"72000","leverage":"10","marginType":"isolated","isolatedMargin":"120","notional":"-1180"},
			{"symbol":"ETHUSDT","positionAmt":"0","entryPrice":"0","markPrice":"3000","unRealizedProfit":"0","liquidationPrice":"0","leverage":"20","marginType":"cross","isolatedMargin":"0","notional":"0"}
		]`))
	})

	positions, err := a.GetPositions(context.Background(), "")
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1（零仓位应被过滤）", len(positions))
	}
	p := positions[0]
	if p.Side != domain.SideShort {
		t.Errorf("side = %s, want short", p.Side)
	}
	if p.Size != 0.02 {
		t.Errorf("size = %v, want 0.02（恒正）", p.Size)
	}
	if p.MarginType != domain.MarginTypeIsolated {
		t.Errorf("marginType = %s", p.MarginType)
	}
	if p.Notional != 1180 {
		t.Errorf("notional = %v, want 1180（恒正）", p.Notional)
	}
	if p.Leverage != 10 {
		t.Errorf("leverage = %d", p.Leverage)
	}
}

func TestSetMarginTypeAlreadySetIsSuccess(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-4046,"msg":"No need to change margin type."}`))
	})

	if err := a.SetMarginType(context.Background(), "BTCUSDT", domain.MarginTypeCross); err != nil {
		t.Errorf("-4046 应视为成功: %v", err)
	}
}

func TestGetFundingRatePublicEndpoint(t *testing.T) {
	sawAuth := false
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-MBX-APIKEY") != "" {
			sawAuth = true
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","markPrice":"50000","indexPrice":"49990","lastFundingRate":"0.0001","nextFundingTime":1700000000000,"time":1699999000000}`))
	})

	rate, err := a.GetFundingRate(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetFundingRate: %v", err)
	}
	if sawAuth {
		t.Error("公共接口不应带 API key")
	}
	if rate.FundingRate != 0.0001 {
		t.Errorf("fundingRate = %v", rate.FundingRate)
	}
	if rate.MarkPrice != 50000 {
		t.Errorf("markPrice = %v", rate.MarkPrice)
	}
}

func TestOrderTypeMapping(t *testing.T) {
	cases := map[string]domain.OrderType{
		"LIMIT":              domain.OrderTypeLimit,
		"MARKET":             domain.OrderTypeMarket,
		"STOP_MARKET":        domain.OrderTypeStopLoss,
		"TAKE_PROFIT_MARKET": domain.OrderTypeTakeProfit,
		"STOP":               domain.OrderTypeStopLimit,
		"TAKE_PROFIT":        domain.OrderTypeTakeProfitLimit,
	}
	for raw, want := range cases {
		if got := orderTypeFromBinance(raw); got != want {
			t.Errorf("orderTypeFromBinance(%s) = %s, want %s", raw, got, want)
		}
	}
}
