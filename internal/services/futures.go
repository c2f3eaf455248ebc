package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/exchange"
	"github.com/betbot/goperp/internal/exchange/binance"
	"github.com/betbot/goperp/internal/exchange/bybit"
	"github.com/betbot/goperp/internal/exchange/hyperliquid"
	"github.com/betbot/goperp/internal/exchange/mexc"
	"github.com/betbot/goperp/internal/risk"
	"github.com/betbot/goperp/pkg/config"
)

var log = logrus.WithField("component", "futures_service")

// TradeRecorder 成交流水记录器。可选依赖，传 nil 表示不记录。
// 记录失败不影响交易路径，由实现自行消化错误。
type TradeRecorder interface {
	RecordOrder(ctx context.Context, req *domain.FuturesOrderRequest, result *domain.FuturesOrderResult)
}

// FuturesService 合约执行服务（执行核心的唯一入口）。
// 构造时根据凭证装配各平台 adapter，之后配置不可变。
// 上层（agent/工具层）只跟这个 façade 打交道，不接触 adapter。
type FuturesService struct {
	cfg      config.FuturesConfig
	adapters map[domain.Platform]exchange.Adapter
	recorder TradeRecorder
	breaker  *risk.CircuitBreaker
}

// NewFuturesService 创建执行服务。凭证齐全的平台才会装配 adapter，
// 凭证缺失的平台在调用时返回 "not configured" 错误。
func NewFuturesService(cfg config.FuturesConfig, recorder TradeRecorder) *FuturesService {
	s := &FuturesService{
		cfg:      cfg,
		adapters: make(map[domain.Platform]exchange.Adapter),
		recorder: recorder,
		breaker:  risk.NewCircuitBreaker(cfg.MaxConsecutiveFailures),
	}

	if cfg.Binance.Configured() {
		s.adapters[domain.PlatformBinance] = binance.New(
			cfg.Binance.APIKey, cfg.Binance.SecretKey, cfg.Binance.BaseURL)
		log.Info("✅ Binance 合约适配器已装配")
	}
	if cfg.Bybit.Configured() {
		s.adapters[domain.PlatformBybit] = bybit.New(cfg.Bybit.APIKey, cfg.Bybit.APISecret)
		log.Info("✅ Bybit 合约适配器已装配")
	}
	if cfg.MEXC.Configured() {
		s.adapters[domain.PlatformMEXC] = mexc.New(
			cfg.MEXC.APIKey, cfg.MEXC.SecretKey, cfg.MEXC.BaseURL,
			cfg.DefaultLeverage, cfg.DefaultMarginType, nil)
		log.Info("✅ MEXC 合约适配器已装配")
	}
	if cfg.Hyperliquid.Configured() {
		adapter, err := hyperliquid.New(
			cfg.Hyperliquid.PrivateKey, cfg.Hyperliquid.WalletAddress, cfg.Hyperliquid.BaseURL)
		if err != nil {
			log.Errorf("❌ Hyperliquid 适配器初始化失败（平台不可用）: %v", err)
		} else {
			s.adapters[domain.PlatformHyperliquid] = adapter
			log.Info("✅ Hyperliquid 合约适配器已装配")
		}
	}

	if cfg.DryRun {
		log.Warn("📝 DRY-RUN 模式：所有变更类操作返回模拟结果，不触达交易所")
	}
	return s
}

// RegisterAdapter 覆盖/注入某个平台的 adapter。
// 用于带持久化偏好的 MEXC adapter 等自定义装配。
func (s *FuturesService) RegisterAdapter(a exchange.Adapter) {
	s.adapters[a.Name()] = a
}

// EnabledPlatforms 返回已装配平台（顺序固定）
func (s *FuturesService) EnabledPlatforms() []domain.Platform {
	var out []domain.Platform
	for _, p := range domain.AllPlatforms() {
		if _, ok := s.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// DryRun 当前是否纸交易模式
func (s *FuturesService) DryRun() bool {
	return s.cfg.DryRun
}

// MaxPositionSize 单笔名义价值上限
func (s *FuturesService) MaxPositionSize() float64 {
	return s.cfg.MaxPositionSize
}

// Breaker 暴露熔断器给管理面（状态查询 / 人工熔断 / 恢复）
func (s *FuturesService) Breaker() *risk.CircuitBreaker {
	return s.breaker
}

func (s *FuturesService) adapter(platform domain.Platform) (exchange.Adapter, bool) {
	a, ok := s.adapters[platform]
	return a, ok
}

func (s *FuturesService) record(ctx context.Context, req *domain.FuturesOrderRequest, result *domain.FuturesOrderResult) {
	if s.recorder != nil {
		s.recorder.RecordOrder(ctx, req, result)
	}
}
