package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"hackathon-gallery/project/domain"
	"hackathon-gallery/project/infrastructure/config"

	"go.uber.org/zap"
)

// Store は設定に従って開いたリポジトリと、その後始末をまとめたものです
type Store struct {
	domain.ProjectRepository
	name    string
	closers []io.Closer
}

// Name は使用中のバックエンド名を返します（例: "pebble", "postgres+memory"）
func (s *Store) Name() string {
	if fb, ok := s.ProjectRepository.(*FallbackRepo); ok && fb.Degraded() {
		return s.name + " (degraded)"
	}
	return s.name
}

// Close は開いたすべてのバックエンドを閉じます
func (s *Store) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open は STORE_BACKEND（と任意の STORE_FALLBACK）に従ってリポジトリを開きます
// primary を開けず fallback が設定されている場合は fallback 単独で動作します
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	primary, pc, err := openBackend(ctx, cfg.StoreBackend, cfg, logger)
	if cfg.StoreFallback == "" {
		if err != nil {
			return nil, err
		}
		return &Store{ProjectRepository: primary, name: cfg.StoreBackend, closers: closers(pc)}, nil
	}

	secondary, sc, serr := openBackend(ctx, cfg.StoreFallback, cfg, logger)
	if serr != nil {
		if pc != nil {
			pc.Close()
		}
		return nil, serr
	}

	if err != nil {
		logger.Warn("store_primary_open_failed",
			zap.String("backend", cfg.StoreBackend),
			zap.String("fallback", cfg.StoreFallback),
			zap.Error(err))
		return &Store{ProjectRepository: secondary, name: cfg.StoreFallback, closers: closers(sc)}, nil
	}

	return &Store{
		ProjectRepository: NewFallbackRepo(primary, secondary, logger),
		name:              cfg.StoreBackend + "+" + cfg.StoreFallback,
		closers:           closers(pc, sc),
	}, nil
}

func openBackend(ctx context.Context, backend string, cfg *config.Config, logger *zap.Logger) (domain.ProjectRepository, io.Closer, error) {
	switch backend {
	case config.StoreMemory:
		return NewMemoryRepo(), nil, nil
	case config.StorePebble:
		repo, err := NewPebbleRepo(cfg.PebblePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	case config.StorePostgres:
		repo, err := NewPostgresRepo(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	case config.StoreFirestore:
		repo, err := NewFirestoreRepo(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("store: 不明なバックエンドです: %s", backend)
	}
}

func closers(cs ...io.Closer) []io.Closer {
	var out []io.Closer
	for _, c := range cs {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}
