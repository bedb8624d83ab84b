package cmd

import (
	"context"
	"fmt"

	"hackathon-gallery/project/infrastructure/config"
	"hackathon-gallery/project/infrastructure/logging"
	"hackathon-gallery/project/infrastructure/secret"
	"hackathon-gallery/project/infrastructure/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runtime はサブコマンド共通の依存関係です
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

func openRuntime(ctx context.Context, c *cobra.Command) (*runtime, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("設定読み込み失敗: %w", err)
	}

	level := "warn"
	if verbose, _ := c.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logger, err := logging.New("development", level)
	if err != nil {
		return nil, err
	}

	if cfg.GcpProject != "" {
		secretMgr, err := secret.NewManager(ctx, cfg.GcpProject)
		if err != nil {
			return nil, fmt.Errorf("Secret Manager 初期化失敗: %w", err)
		}
		defer secretMgr.Close()
		if err := cfg.ResolveSecrets(ctx, secretMgr); err != nil {
			return nil, err
		}
	}

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("ストア初期化失敗: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger, store: st}, nil
}

func (rt *runtime) Close() {
	rt.store.Close()
	_ = rt.logger.Sync()
}
