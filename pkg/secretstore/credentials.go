package secretstore

import (
	"github.com/betbot/goperp/pkg/config"
)

// Credential key layout: "futures/<platform>/<field>".
const (
	KeyBinanceAPIKey    = "futures/binance/api_key"
	KeyBinanceSecretKey = "futures/binance/secret_key"
	KeyBybitAPIKey      = "futures/bybit/api_key"
	KeyBybitAPISecret   = "futures/bybit/api_secret"
	KeyMEXCAPIKey       = "futures/mexc/api_key"
	KeyMEXCSecretKey    = "futures/mexc/secret_key"
	KeyHLPrivateKey     = "futures/hyperliquid/private_key"
	KeyHLWalletAddress  = "futures/hyperliquid/wallet_address"
)

// OverlayFutures fills credential fields that are still empty after
// YAML/env loading from the store. Precedence: env > YAML > store.
func OverlayFutures(s *Store, cfg *config.FuturesConfig) error {
	fill := func(dst *string, key string) error {
		if *dst != "" {
			return nil
		}
		val, found, err := s.GetString(key)
		if err != nil {
			return err
		}
		if found {
			*dst = val
		}
		return nil
	}

	if cfg.Binance == nil {
		cfg.Binance = &config.BinanceCredentials{}
	}
	if err := fill(&cfg.Binance.APIKey, KeyBinanceAPIKey); err != nil {
		return err
	}
	if err := fill(&cfg.Binance.SecretKey, KeyBinanceSecretKey); err != nil {
		return err
	}

	if cfg.Bybit == nil {
		cfg.Bybit = &config.BybitCredentials{}
	}
	if err := fill(&cfg.Bybit.APIKey, KeyBybitAPIKey); err != nil {
		return err
	}
	if err := fill(&cfg.Bybit.APISecret, KeyBybitAPISecret); err != nil {
		return err
	}

	if cfg.MEXC == nil {
		cfg.MEXC = &config.MEXCCredentials{}
	}
	if err := fill(&cfg.MEXC.APIKey, KeyMEXCAPIKey); err != nil {
		return err
	}
	if err := fill(&cfg.MEXC.SecretKey, KeyMEXCSecretKey); err != nil {
		return err
	}

	if cfg.Hyperliquid == nil {
		cfg.Hyperliquid = &config.HyperliquidCredentials{}
	}
	if err := fill(&cfg.Hyperliquid.PrivateKey, KeyHLPrivateKey); err != nil {
		return err
	}
	return fill(&cfg.Hyperliquid.WalletAddress, KeyHLWalletAddress)
}
