package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"hackathon-gallery/project/domain"
	"hackathon-gallery/project/infrastructure/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDuplicates(t *testing.T) *store.MemoryRepo {
	t.Helper()
	repo := store.NewMemoryRepo()
	seedInto(t, repo)
	return repo
}

func seedInto(t *testing.T, repo domain.ProjectRepository) {
	t.Helper()
	ctx := context.Background()

	oldest := record("m1", "Foo", "https://x", "Ana", t0)
	oldest.RelatedMessageIDs = []string{"m1"}

	sameNameURL := record("m2", "FOO", "https://x", "Ben", t0.Add(time.Hour))
	sameNameURL.RelatedMessageIDs = []string{"m2"}
	sameNameURL.Reactions = []domain.Reaction{{MessageID: "m2", Emoji: "🔥", Sender: "Cy", Timestamp: t0}}

	sharedID := record("m3", "Foo v2", "https://y", "Cy", t0.Add(2*time.Hour))
	sharedID.RelatedMessageIDs = []string{"m3", "m2"}
	sharedID.Replies = []domain.Reply{{MessageID: "r1", QuotedMessageID: "m3", Text: "hi", Timestamp: t0}}

	unrelated := record("m4", "Bar", "https://z", "Dee", t0.Add(30*time.Minute))
	unrelated.RelatedMessageIDs = []string{"m4"}

	for _, p := range []*domain.ProjectRecord{oldest, sameNameURL, sharedID, unrelated} {
		require.NoError(t, repo.UpsertProject(ctx, p))
	}
}

func TestCollapseDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := seedDuplicates(t)
	rc := NewReconciler(repo, nil)

	result, err := rc.CollapseDuplicates(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Before)
	assert.Equal(t, 2, result.After)
	assert.ElementsMatch(t, []string{"m2", "m3"}, result.Removed)

	all, err := repo.AllProjects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	survivor, err := repo.FindByMessageID(ctx, "m3")
	require.NoError(t, err)
	assert.Equal(t, "m1", survivor.PrimaryMessageID)
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, survivor.RelatedMessageIDs)
	assert.Len(t, survivor.Reactions, 1)
	assert.Len(t, survivor.Replies, 1)
	assert.Equal(t, "Cy", survivor.Sender, "latest message sender")
	assert.True(t, survivor.Timestamp.Equal(t0.Add(2*time.Hour)))
}

func TestCollapseDuplicates_DryRun(t *testing.T) {
	ctx := context.Background()
	repo := seedDuplicates(t)
	rc := NewReconciler(repo, nil)

	result, err := rc.CollapseDuplicates(ctx, true)
	require.NoError(t, err)
	assert.Len(t, result.Removed, 2)

	all, err := repo.AllProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestCollapseDuplicates_NothingToDo(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	rc := NewReconciler(repo, nil)
	_, err := rc.Upsert(ctx, record("m1", "Foo", "https://x", "Ana", t0))
	require.NoError(t, err)

	result, err := rc.CollapseDuplicates(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, result.Removed)
	assert.Equal(t, 1, result.After)
}

// saveFailingRepo は作品の保存だけが失敗するストアです
type saveFailingRepo struct {
	*store.MemoryRepo
}

func (saveFailingRepo) UpsertProject(ctx context.Context, p *domain.ProjectRecord) error {
	return fmt.Errorf("down: %w", domain.ErrStoreUnavailable)
}

func TestCollapseDuplicates_SaveFailureKeepsDuplicates(t *testing.T) {
	ctx := context.Background()
	seeded := seedDuplicates(t)
	rc := NewReconciler(saveFailingRepo{seeded}, nil)

	_, err := rc.CollapseDuplicates(ctx, false)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	all, err := seeded.AllProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	dup, err := seeded.FindByMessageID(ctx, "m2")
	require.NoError(t, err)
	assert.Len(t, dup.Reactions, 1)

	shared, err := seeded.FindByMessageID(ctx, "m3")
	require.NoError(t, err)
	assert.Len(t, shared.Replies, 1)
}

func TestCollapseDuplicates_PebbleIndexes(t *testing.T) {
	ctx := context.Background()
	repo, err := store.NewPebbleRepo(filepath.Join(t.TempDir(), "gallery"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	seedInto(t, repo)

	result, err := NewReconciler(repo, nil).CollapseDuplicates(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.After)

	for _, id := range []string{"m1", "m2", "m3"} {
		p, err := repo.FindByMessageID(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, "m1", p.PrimaryMessageID, id)
	}
	p, err := repo.FindByNameURL(ctx, "foo", "https://x")
	require.NoError(t, err)
	assert.Equal(t, "m1", p.PrimaryMessageID)
	assert.Len(t, p.Reactions, 1)
	assert.Len(t, p.Replies, 1)

	all, err := repo.AllProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
