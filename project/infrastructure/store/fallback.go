package store

import (
	"context"
	"errors"
	"sync/atomic"

	"hackathon-gallery/project/domain"

	"go.uber.org/zap"
)

// FallbackRepo は primary が domain.ErrStoreUnavailable を返したときだけ secondary を使う
// domain.ProjectRepository です。primary 復旧後は自動的に primary へ戻ります
type FallbackRepo struct {
	primary   domain.ProjectRepository
	secondary domain.ProjectRepository
	logger    *zap.Logger
	degraded  atomic.Bool
}

// NewFallbackRepo は FallbackRepo を作成します
func NewFallbackRepo(primary, secondary domain.ProjectRepository, logger *zap.Logger) *FallbackRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackRepo{primary: primary, secondary: secondary, logger: logger}
}

// Degraded は直近の操作が secondary で処理されたかを返します
func (repo *FallbackRepo) Degraded() bool {
	return repo.degraded.Load()
}

func (repo *FallbackRepo) observe(op string, err error) bool {
	if err != nil && errors.Is(err, domain.ErrStoreUnavailable) {
		if !repo.degraded.Swap(true) {
			repo.logger.Warn("store_fallback_engaged", zap.String("op", op), zap.Error(err))
		}
		return true
	}
	if repo.degraded.Swap(false) {
		repo.logger.Info("store_primary_recovered", zap.String("op", op))
	}
	return false
}

// FindByMessageID は primary、接続不可なら secondary で検索します
func (repo *FallbackRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.ProjectRecord, error) {
	p, err := repo.primary.FindByMessageID(ctx, messageID)
	if repo.observe("FindByMessageID", err) {
		return repo.secondary.FindByMessageID(ctx, messageID)
	}
	return p, err
}

// FindByNameURL は primary、接続不可なら secondary で検索します
func (repo *FallbackRepo) FindByNameURL(ctx context.Context, name, url string) (*domain.ProjectRecord, error) {
	p, err := repo.primary.FindByNameURL(ctx, name, url)
	if repo.observe("FindByNameURL", err) {
		return repo.secondary.FindByNameURL(ctx, name, url)
	}
	return p, err
}

// UpsertProject は primary、接続不可なら secondary に保存します
func (repo *FallbackRepo) UpsertProject(ctx context.Context, p *domain.ProjectRecord) error {
	err := repo.primary.UpsertProject(ctx, p)
	if repo.observe("UpsertProject", err) {
		return repo.secondary.UpsertProject(ctx, p)
	}
	return err
}

// DeleteProject は primary、接続不可なら secondary から削除します
func (repo *FallbackRepo) DeleteProject(ctx context.Context, primaryMessageID string) error {
	err := repo.primary.DeleteProject(ctx, primaryMessageID)
	if repo.observe("DeleteProject", err) {
		return repo.secondary.DeleteProject(ctx, primaryMessageID)
	}
	return err
}

// AppendReaction は primary、接続不可なら secondary に追記します
func (repo *FallbackRepo) AppendReaction(ctx context.Context, r *domain.Reaction) error {
	err := repo.primary.AppendReaction(ctx, r)
	if repo.observe("AppendReaction", err) {
		return repo.secondary.AppendReaction(ctx, r)
	}
	return err
}

// AppendReply は primary、接続不可なら secondary に追記します
func (repo *FallbackRepo) AppendReply(ctx context.Context, r *domain.Reply) error {
	err := repo.primary.AppendReply(ctx, r)
	if repo.observe("AppendReply", err) {
		return repo.secondary.AppendReply(ctx, r)
	}
	return err
}

// AllProjects は primary、接続不可なら secondary の一覧を返します
func (repo *FallbackRepo) AllProjects(ctx context.Context) ([]*domain.ProjectRecord, error) {
	ps, err := repo.primary.AllProjects(ctx)
	if repo.observe("AllProjects", err) {
		return repo.secondary.AllProjects(ctx)
	}
	return ps, err
}

// Reactions は primary、接続不可なら secondary のログを返します
func (repo *FallbackRepo) Reactions(ctx context.Context) ([]*domain.Reaction, error) {
	rs, err := repo.primary.Reactions(ctx)
	if repo.observe("Reactions", err) {
		return repo.secondary.Reactions(ctx)
	}
	return rs, err
}

// Replies は primary、接続不可なら secondary のログを返します
func (repo *FallbackRepo) Replies(ctx context.Context) ([]*domain.Reply, error) {
	rs, err := repo.primary.Replies(ctx)
	if repo.observe("Replies", err) {
		return repo.secondary.Replies(ctx)
	}
	return rs, err
}
