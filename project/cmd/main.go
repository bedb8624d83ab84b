package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hackathon-gallery/project/handler"
	"hackathon-gallery/project/infrastructure/config"
	"hackathon-gallery/project/infrastructure/httpsec"
	"hackathon-gallery/project/infrastructure/logging"
	"hackathon-gallery/project/infrastructure/metrics"
	"hackathon-gallery/project/infrastructure/secret"
	"hackathon-gallery/project/infrastructure/store"
	"hackathon-gallery/project/infrastructure/tasks"
	"hackathon-gallery/project/infrastructure/whapi"
	"hackathon-gallery/project/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 設定を読み込む
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("設定読み込み失敗: %v", err)
	}

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("ロガー初期化失敗: %v", err)
	}
	defer logger.Sync()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server_failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// 2. シークレットを解決（GCP_PROJECT 設定時のみ Secret Manager を使用）
	if cfg.GcpProject != "" {
		secretMgr, err := secret.NewManager(ctx, cfg.GcpProject)
		if err != nil {
			return fmt.Errorf("Secret Manager 初期化失敗: %w", err)
		}
		defer secretMgr.Close()

		if err := cfg.ResolveSecrets(ctx, secretMgr); err != nil {
			return err
		}
	}
	if cfg.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET が未設定です")
	}

	// 3. ストアを開く
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("ストア初期化失敗: %w", err)
	}
	defer st.Close()
	logger.Info("store_opened", zap.String("backend", st.Name()))

	// 4. サービス層を初期化
	reconciler := service.NewReconciler(st, logger)
	ingestMetrics := metrics.NewIngest(prometheus.DefaultRegisterer)
	ingest := service.NewIngestService(cfg, reconciler, ingestMetrics, logger)
	gallery := service.NewGalleryService(st)

	// 5. ポーリング（任意）
	var poller *tasks.Poller
	if cfg.PollEnabled {
		if cfg.WhapiToken == "" {
			return errors.New("POLL_ENABLED には WHAPI_TOKEN が必要です")
		}
		poller = tasks.NewPoller(cfg, whapi.NewClient(cfg.WhapiBaseURL, cfg.WhapiToken), ingest, logger)
		if err := poller.Start(ctx); err != nil {
			return err
		}
	}

	// 6. HTTP ハンドラーを設定
	limiter := httpsec.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).TrustForwardedFor(cfg.TrustProxy)
	go sweepLimiter(ctx, limiter)

	mux := http.NewServeMux()

	// Whapi Webhook 受信（署名検証必須）
	mux.Handle("/api/webhook", limiter.Middleware(
		httpsec.RequireSignature(cfg.WebhookSecret, logger, handler.NewWebhookHandler(ingest, logger)),
	))

	// ギャラリー
	mux.Handle("GET /api/projects", limiter.Middleware(handler.NewProjectsHandler(gallery, logger)))

	// 稼働状況
	mux.Handle("GET /api/health", handler.NewHealthHandler(gallery, st, cfg.Version, logger))
	if poller != nil {
		mux.Handle("GET /api/fetcher/status", handler.NewFetcherStatusHandler(poller))
	} else {
		mux.Handle("GET /api/fetcher/status", handler.NewFetcherStatusHandler(nil))
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	// 7. サーバー起動
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_started", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("サーバーエラー: %w", err)
	case <-ctx.Done():
	}

	logger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepLimiter(ctx context.Context, limiter *httpsec.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
