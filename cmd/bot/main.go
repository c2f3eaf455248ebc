package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/exchange/mexc"
	"github.com/betbot/goperp/internal/ledger"
	"github.com/betbot/goperp/internal/metrics"
	"github.com/betbot/goperp/internal/services"
	"github.com/betbot/goperp/internal/toolserver"
	"github.com/betbot/goperp/pkg/config"
	"github.com/betbot/goperp/pkg/logger"
	"github.com/betbot/goperp/pkg/persistence"
	"github.com/betbot/goperp/pkg/secretstore"
	"github.com/betbot/goperp/pkg/shutdown"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "配置文件路径（可为空，纯环境变量启动）")
		listenAddr = flag.String("listen", "", "覆盖工具服务监听地址")
		dataDir    = flag.String("data", "data", "运行时数据目录（偏好快照等）")
	)
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		// 默认配置文件缺失不算错（纯环境变量启动），显式传了才算硬错误
		if *configPath != "config.yaml" || !errors.Is(err, os.ErrNotExist) {
			logrus.Fatalf("加载配置失败: %v", err)
		}
		cfg, err = config.LoadFromFile("")
		if err != nil {
			logrus.Fatalf("加载配置失败: %v", err)
		}
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	// 凭证补全顺序：环境变量 > YAML > badger 凭证库
	if cfg.SecretStorePath != "" {
		keyBytes, err := secretstore.ParseKey(os.Getenv("GOPERP_SECRET_KEY"))
		if err != nil {
			logger.Errorf("解析凭证库密钥失败: %v", err)
		} else {
			store, err := secretstore.Open(secretstore.OpenOptions{
				Path:          cfg.SecretStorePath,
				EncryptionKey: keyBytes,
				ReadOnly:      true,
			})
			if err != nil {
				logger.Errorf("打开凭证库失败（跳过）: %v", err)
			} else {
				if err := secretstore.OverlayFutures(store, &cfg.Futures); err != nil {
					logger.Errorf("凭证库读取失败: %v", err)
				}
				store.Close()
			}
		}
	}

	shut := shutdown.NewManager()

	var recorder services.TradeRecorder
	var ldg *ledger.Ledger
	if cfg.LedgerPath != "" {
		ldg, err = ledger.Open(cfg.LedgerPath)
		if err != nil {
			logger.Errorf("打开成交账本失败（不记录流水）: %v", err)
		} else {
			recorder = ldg
			shut.OnShutdown("ledger", func(context.Context) error { return ldg.Close() })
		}
	}

	svc := services.NewFuturesService(cfg.Futures, recorder)

	// MEXC 的保证金偏好挂 JSON 快照，重启后仍按上次设置下单
	if cfg.Futures.MEXC.Configured() {
		store := persistence.NewJSONFileService(*dataDir).NewStore("futures", "mexc", "margin_prefs")
		svc.RegisterAdapter(mexc.New(
			cfg.Futures.MEXC.APIKey, cfg.Futures.MEXC.SecretKey, cfg.Futures.MEXC.BaseURL,
			cfg.Futures.DefaultLeverage, cfg.Futures.DefaultMarginType,
			mexc.NewMarginPrefs(store)))
	}

	if len(svc.EnabledPlatforms()) == 0 {
		logger.Warnf("⚠️ 没有任何平台配置了凭证，所有交易操作都会失败")
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: toolserver.New(svc, ldg).Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DebugAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.DebugAddr); err != nil {
			logger.Errorf("启动调试端点失败: %v", err)
		} else {
			logger.Infof("📊 调试端点已启动: %s (/debug/vars /debug/pprof)", cfg.DebugAddr)
		}
	}

	shut.OnShutdown("http", srv.Shutdown)

	go func() {
		logger.Infof("🚀 工具服务已启动: %s (platforms=%v dryRun=%v)",
			cfg.ListenAddr, svc.EnabledPlatforms(), svc.DryRun())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP 服务异常退出: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("收到退出信号，优雅关闭中...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shut.Shutdown(shutdownCtx)
	logger.Infof("已退出")
}
