package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hackathon-gallery/project/domain"
)

// MemoryRepo は domain.ProjectRepository のメモリ実装です
// 開発・テスト用で、プロセス終了とともに内容は失われます
type MemoryRepo struct {
	mu        sync.RWMutex
	projects  map[string]*domain.ProjectRecord
	reactions []domain.Reaction
	replies   []domain.Reply
}

// NewMemoryRepo はメモリリポジトリを初期化します
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{projects: make(map[string]*domain.ProjectRecord)}
}

// FindByMessageID は主ID、次に関連IDで作品を検索します
func (repo *MemoryRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.ProjectRecord, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if p, ok := repo.projects[messageID]; ok {
		return p.Clone(), nil
	}
	for _, p := range repo.projects {
		if p.HasMessageID(messageID) {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

// FindByNameURL は作品名（大文字小文字無視）とURLで作品を検索します
func (repo *MemoryRepo) FindByNameURL(ctx context.Context, name, url string) (*domain.ProjectRecord, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	key := domain.NameURLKey(name, url)
	for _, p := range repo.projects {
		if domain.NameURLKey(p.Name, p.URL) == key {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

// UpsertProject は作品を保存します
func (repo *MemoryRepo) UpsertProject(ctx context.Context, p *domain.ProjectRecord) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("memory: UpsertProject検証失敗: %w", err)
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.projects[p.PrimaryMessageID] = p.Clone()
	return nil
}

// DeleteProject は作品を削除します
func (repo *MemoryRepo) DeleteProject(ctx context.Context, primaryMessageID string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.projects[primaryMessageID]; !ok {
		return domain.ErrNotFound
	}
	delete(repo.projects, primaryMessageID)
	return nil
}

// AppendReaction はリアクションを全体ログに追記します
func (repo *MemoryRepo) AppendReaction(ctx context.Context, r *domain.Reaction) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("memory: AppendReaction検証失敗: %w", err)
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.reactions = append(repo.reactions, *r)
	return nil
}

// AppendReply は返信を全体ログに追記します
func (repo *MemoryRepo) AppendReply(ctx context.Context, r *domain.Reply) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("memory: AppendReply検証失敗: %w", err)
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.replies = append(repo.replies, *r)
	return nil
}

// AllProjects は全作品を新しい順に返します
func (repo *MemoryRepo) AllProjects(ctx context.Context) ([]*domain.ProjectRecord, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	out := make([]*domain.ProjectRecord, 0, len(repo.projects))
	for _, p := range repo.projects {
		out = append(out, p.Clone())
	}
	sortByTimestampDesc(out)
	return out, nil
}

// Reactions は全体ログのリアクションを返します
func (repo *MemoryRepo) Reactions(ctx context.Context) ([]*domain.Reaction, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	out := make([]*domain.Reaction, 0, len(repo.reactions))
	for i := range repo.reactions {
		r := repo.reactions[i]
		out = append(out, &r)
	}
	return out, nil
}

// Replies は全体ログの返信を返します
func (repo *MemoryRepo) Replies(ctx context.Context) ([]*domain.Reply, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	out := make([]*domain.Reply, 0, len(repo.replies))
	for i := range repo.replies {
		r := repo.replies[i]
		out = append(out, &r)
	}
	return out, nil
}

// sortByTimestampDesc は新しい順に並べ替えます。同時刻は主IDで安定させます
func sortByTimestampDesc(ps []*domain.ProjectRecord) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Timestamp.Equal(ps[j].Timestamp) {
			return ps[i].PrimaryMessageID < ps[j].PrimaryMessageID
		}
		return ps[i].Timestamp.After(ps[j].Timestamp)
	})
}
