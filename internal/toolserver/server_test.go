package toolserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/betbot/goperp/internal/services"
	"github.com/betbot/goperp/pkg/config"
)

func newTestRouter() http.Handler {
	svc := services.NewFuturesService(config.FuturesConfig{
		DefaultLeverage:   5,
		DefaultMarginType: "cross",
		MaxPositionSize:   1000,
		DryRun:            true,
	}, nil)
	return New(svc, nil).Router()
}

func TestHealthz(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestOpenLongDryRun(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	body := `{"platform":"binance","symbol":"BTCUSDT","size":1,"leverage":10}`
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/futures/orders/open_long", strings.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var res struct {
		Success bool   `json:"success"`
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Status != "FILLED" || res.OrderID == "" {
		t.Errorf("dry-run 响应不符合预期: %+v", res)
	}
}

func TestOpenLongMissingFields(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/futures/orders/open_long", strings.NewReader(`{"size":1}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("缺少必填字段应返回 400, got %d", w.Code)
	}
}

func TestLiquidationPriceEndpoint(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/futures/liquidation_price?side=long&entryPrice=50000&leverage=10", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res struct {
		LiquidationPrice float64 `json:"liquidationPrice"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.LiquidationPrice != 45200 {
		t.Errorf("liquidationPrice = %v, want 45200", res.LiquidationPrice)
	}
}

func TestPlatformsEndpoint(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/futures/platforms", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res struct {
		DryRun bool `json:"dryRun"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.DryRun {
		t.Error("dryRun 应为 true")
	}
}

func TestBreakerHaltAndResume(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/futures/breaker/halt", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("halt status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/futures/breaker", nil))
	var status struct {
		Halted bool `json:"halted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Halted {
		t.Error("halt 后状态应为 halted")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/futures/breaker/resume", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("resume status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/futures/breaker", nil))
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Halted {
		t.Error("resume 后状态应恢复")
	}
}
