package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/betbot/goperp/pkg/secretstore"
)

// 把 .env 里的交易所凭证导入加密 badger 凭证库。
// 只搬运已知的凭证变量，其余环境变量忽略。

var credentialKeys = map[string]string{
	"BINANCE_API_KEY":            secretstore.KeyBinanceAPIKey,
	"BINANCE_SECRET_KEY":         secretstore.KeyBinanceSecretKey,
	"BYBIT_API_KEY":              secretstore.KeyBybitAPIKey,
	"BYBIT_API_SECRET":           secretstore.KeyBybitAPISecret,
	"MEXC_API_KEY":               secretstore.KeyMEXCAPIKey,
	"MEXC_SECRET_KEY":            secretstore.KeyMEXCSecretKey,
	"HYPERLIQUID_PRIVATE_KEY":    secretstore.KeyHLPrivateKey,
	"HYPERLIQUID_WALLET_ADDRESS": secretstore.KeyHLWalletAddress,
}

func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		dbPath    = flag.String("badger", getenv("GOPERP_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("GOPERP_SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set GOPERP_SECRET_KEY or pass -secret-key"))
	}

	kv, err := parseDotEnvFile(*inPath)
	if err != nil {
		fatal(err)
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
		ReadOnly:      false,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	written := 0
	for envName, storeKey := range credentialKeys {
		v, ok := kv[envName]
		if !ok || v == "" {
			continue
		}
		if err := ss.SetString(storeKey, v); err != nil {
			fatal(err)
		}
		written++
	}

	fmt.Fprintf(os.Stderr, "已导入 %d 项凭证到 badger：%s\n", written, *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}

func parseDotEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, line := range strings.Split(string(b), "\n") {
		l := strings.TrimSpace(strings.TrimRight(line, "\r"))
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		i := strings.Index(l, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(l[:i])
		val := strings.Trim(strings.TrimSpace(l[i+1:]), `"'`)
		out[key] = val
	}
	return out, nil
}
