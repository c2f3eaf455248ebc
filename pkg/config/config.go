package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/betbot/goperp/internal/domain"
)

// BinanceCredentials 币安合约（fapi）凭证
type BinanceCredentials struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	BaseURL   string `yaml:"base_url" json:"base_url"` // 可选，默认主网
}

// BybitCredentials Bybit V5 凭证
type BybitCredentials struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	APISecret string `yaml:"api_secret" json:"api_secret"`
}

// MEXCCredentials MEXC 合约凭证
type MEXCCredentials struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
}

// HyperliquidCredentials Hyperliquid 钱包凭证
type HyperliquidCredentials struct {
	PrivateKey    string `yaml:"private_key" json:"private_key"`
	WalletAddress string `yaml:"wallet_address" json:"wallet_address"` // 可选，空则从私钥推导
	BaseURL       string `yaml:"base_url" json:"base_url"`
}

// Configured 判断凭证是否齐全（凭证存在 ⇒ 平台启用）
func (c *BinanceCredentials) Configured() bool {
	return c != nil && c.APIKey != "" && c.SecretKey != ""
}

func (c *BybitCredentials) Configured() bool {
	return c != nil && c.APIKey != "" && c.APISecret != ""
}

func (c *MEXCCredentials) Configured() bool {
	return c != nil && c.APIKey != "" && c.SecretKey != ""
}

func (c *HyperliquidCredentials) Configured() bool {
	return c != nil && c.PrivateKey != ""
}

// FuturesConfig 合约执行核心配置。
// 服务构造时传入一次，服务生命周期内不可变。
type FuturesConfig struct {
	Binance     *BinanceCredentials     `yaml:"binance" json:"binance"`
	Bybit       *BybitCredentials       `yaml:"bybit" json:"bybit"`
	MEXC        *MEXCCredentials        `yaml:"mexc" json:"mexc"`
	Hyperliquid *HyperliquidCredentials `yaml:"hyperliquid" json:"hyperliquid"`

	DefaultLeverage   int               `yaml:"default_leverage" json:"default_leverage"`       // 默认杠杆，默认 5
	DefaultMarginType domain.MarginType `yaml:"default_margin_type" json:"default_margin_type"` // 默认保证金模式，默认 cross
	MaxPositionSize   float64           `yaml:"max_position_size" json:"max_position_size"`     // 单笔名义价值上限（USD），默认 1000
	DryRun            bool              `yaml:"dry_run" json:"dry_run"`                         // 纸交易模式

	// MaxConsecutiveFailures 连续下单失败熔断阈值，<= 0 表示关闭熔断。
	MaxConsecutiveFailures int64 `yaml:"max_consecutive_failures" json:"max_consecutive_failures"`
}

// EnabledPlatforms 返回已配置凭证的平台列表
func (c *FuturesConfig) EnabledPlatforms() []domain.Platform {
	var out []domain.Platform
	if c.Binance.Configured() {
		out = append(out, domain.PlatformBinance)
	}
	if c.Bybit.Configured() {
		out = append(out, domain.PlatformBybit)
	}
	if c.MEXC.Configured() {
		out = append(out, domain.PlatformMEXC)
	}
	if c.Hyperliquid.Configured() {
		out = append(out, domain.PlatformHyperliquid)
	}
	return out
}

// Config 应用配置
type Config struct {
	Futures FuturesConfig `yaml:"futures" json:"futures"`

	LogLevel        string `yaml:"log_level" json:"log_level"`
	LogFile         string `yaml:"log_file" json:"log_file"`
	ListenAddr      string `yaml:"listen_addr" json:"listen_addr"`             // 工具 HTTP 服务监听地址，默认 :8710
	DebugAddr       string `yaml:"debug_addr" json:"debug_addr"`               // expvar/pprof 调试地址（可选，建议 localhost）
	LedgerPath      string `yaml:"ledger_path" json:"ledger_path"`             // sqlite 成交流水路径（可选）
	SecretStorePath string `yaml:"secret_store_path" json:"secret_store_path"` // badger 凭证库路径（可选）
}

// LoadFromFile 从 YAML 文件加载配置，再用环境变量覆盖敏感字段。
// .env 文件存在时先行加载（godotenv），便于本地开发。
func LoadFromFile(filePath string) (*Config, error) {
	// .env 可选，不存在不算错误
	_ = godotenv.Load()

	cfg := &Config{}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides 环境变量覆盖（凭证永远优先取环境变量，避免写进文件）
func applyEnvOverrides(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	if cfg.Futures.Binance == nil {
		cfg.Futures.Binance = &BinanceCredentials{}
	}
	set(&cfg.Futures.Binance.APIKey, "BINANCE_API_KEY")
	set(&cfg.Futures.Binance.SecretKey, "BINANCE_SECRET_KEY")

	if cfg.Futures.Bybit == nil {
		cfg.Futures.Bybit = &BybitCredentials{}
	}
	set(&cfg.Futures.Bybit.APIKey, "BYBIT_API_KEY")
	set(&cfg.Futures.Bybit.APISecret, "BYBIT_API_SECRET")

	if cfg.Futures.MEXC == nil {
		cfg.Futures.MEXC = &MEXCCredentials{}
	}
	set(&cfg.Futures.MEXC.APIKey, "MEXC_API_KEY")
	set(&cfg.Futures.MEXC.SecretKey, "MEXC_SECRET_KEY")

	if cfg.Futures.Hyperliquid == nil {
		cfg.Futures.Hyperliquid = &HyperliquidCredentials{}
	}
	set(&cfg.Futures.Hyperliquid.PrivateKey, "HYPERLIQUID_PRIVATE_KEY")
	set(&cfg.Futures.Hyperliquid.WalletAddress, "HYPERLIQUID_WALLET_ADDRESS")

	if v := os.Getenv("FUTURES_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Futures.DryRun = b
		}
	}
	if v := os.Getenv("FUTURES_MAX_POSITION_SIZE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Futures.MaxPositionSize = f
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Futures.DefaultLeverage <= 0 {
		cfg.Futures.DefaultLeverage = 5
	}
	if cfg.Futures.DefaultMarginType == "" {
		cfg.Futures.DefaultMarginType = domain.MarginTypeCross
	}
	if cfg.Futures.MaxPositionSize <= 0 {
		cfg.Futures.MaxPositionSize = 1000
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8710"
	}
}

func validate(cfg *Config) error {
	if cfg.Futures.DefaultMarginType != domain.MarginTypeIsolated &&
		cfg.Futures.DefaultMarginType != domain.MarginTypeCross {
		return fmt.Errorf("default_margin_type 非法: %s（只允许 isolated/cross）", cfg.Futures.DefaultMarginType)
	}
	return nil
}
