package hyperliquid

import (
	"testing"

	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/betbot/goperp/internal/domain"
)

func TestCoinFromSymbol(t *testing.T) {
	cases := map[string]string{
		"ETH":      "ETH",
		"ETH-USD":  "ETH",
		"ETHUSDT":  "ETH",
		"BTC-PERP": "BTC",
	}
	for in, want := range cases {
		if got := coinFromSymbol(in); got != want {
			t.Errorf("coinFromSymbol(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestTifFromString(t *testing.T) {
	if tifFromString("") != hyperliquid.TifGtc {
		t.Error("默认应为 GTC")
	}
	if tifFromString("IOC") != hyperliquid.TifIoc {
		t.Error("IOC 映射错误")
	}
	if tifFromString("gtc") != hyperliquid.TifGtc {
		t.Error("大小写不敏感")
	}
}

func TestTpslFor(t *testing.T) {
	if tpslFor(domain.OrderTypeStopLoss) != hyperliquid.StopLoss {
		t.Error("止损应为 sl")
	}
	if tpslFor(domain.OrderTypeTakeProfitLimit) != hyperliquid.TakeProfit {
		t.Error("止盈应为 tp")
	}
}

func TestOpenOrderType(t *testing.T) {
	if got := openOrderType(hyperliquid.FrontendOpenOrder{IsTrigger: false, OrderType: "Limit"}); got != domain.OrderTypeLimit {
		t.Errorf("非触发单应为 LIMIT, got %s", got)
	}
	if got := openOrderType(hyperliquid.FrontendOpenOrder{IsTrigger: true, OrderType: "Stop Market"}); got != domain.OrderTypeStopLoss {
		t.Errorf("止损触发单应为 STOP_LOSS, got %s", got)
	}
	if got := openOrderType(hyperliquid.FrontendOpenOrder{IsTrigger: true, OrderType: "Take Profit Market"}); got != domain.OrderTypeTakeProfit {
		t.Errorf("止盈触发单应为 TAKE_PROFIT, got %s", got)
	}
}

func TestOpenOrderStatus(t *testing.T) {
	if openOrderStatus(5, 5) != domain.OrderStatusNew {
		t.Error("未成交应为 NEW")
	}
	if openOrderStatus(5, 3) != domain.OrderStatusPartiallyFilled {
		t.Error("部分成交应为 PARTIALLY_FILLED")
	}
}
