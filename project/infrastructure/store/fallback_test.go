package store

import (
	"context"
	"fmt"
	"testing"

	"hackathon-gallery/project/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyRepo は down が true の間すべての操作で接続不可を返します
type flakyRepo struct {
	*MemoryRepo
	down bool
}

func (f *flakyRepo) unavailable() error {
	return fmt.Errorf("flaky: %w", domain.ErrStoreUnavailable)
}

func (f *flakyRepo) UpsertProject(ctx context.Context, p *domain.ProjectRecord) error {
	if f.down {
		return f.unavailable()
	}
	return f.MemoryRepo.UpsertProject(ctx, p)
}

func (f *flakyRepo) FindByMessageID(ctx context.Context, id string) (*domain.ProjectRecord, error) {
	if f.down {
		return nil, f.unavailable()
	}
	return f.MemoryRepo.FindByMessageID(ctx, id)
}

func (f *flakyRepo) AllProjects(ctx context.Context) ([]*domain.ProjectRecord, error) {
	if f.down {
		return nil, f.unavailable()
	}
	return f.MemoryRepo.AllProjects(ctx)
}

func TestFallbackRepo_UsesSecondaryWhenPrimaryUnavailable(t *testing.T) {
	ctx := context.Background()
	primary := &flakyRepo{MemoryRepo: NewMemoryRepo(), down: true}
	secondary := NewMemoryRepo()
	repo := NewFallbackRepo(primary, secondary, nil)

	require.NoError(t, repo.UpsertProject(ctx, sampleProject("m1", "DawnBot", "https://dawn.example", baseTime)))
	assert.True(t, repo.Degraded())

	got, err := secondary.FindByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "DawnBot", got.Name)

	all, err := repo.AllProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFallbackRepo_NotFoundDoesNotFallBack(t *testing.T) {
	ctx := context.Background()
	primary := &flakyRepo{MemoryRepo: NewMemoryRepo()}
	secondary := NewMemoryRepo()
	require.NoError(t, secondary.UpsertProject(ctx, sampleProject("m1", "DawnBot", "https://dawn.example", baseTime)))
	repo := NewFallbackRepo(primary, secondary, nil)

	_, err := repo.FindByMessageID(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, repo.Degraded())
}

func TestFallbackRepo_RecoversToPrimary(t *testing.T) {
	ctx := context.Background()
	primary := &flakyRepo{MemoryRepo: NewMemoryRepo(), down: true}
	repo := NewFallbackRepo(primary, NewMemoryRepo(), nil)

	_, _ = repo.AllProjects(ctx)
	assert.True(t, repo.Degraded())

	primary.down = false
	require.NoError(t, repo.UpsertProject(ctx, sampleProject("m1", "DawnBot", "https://dawn.example", baseTime)))
	assert.False(t, repo.Degraded())

	got, err := primary.MemoryRepo.FindByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.PrimaryMessageID)
}
