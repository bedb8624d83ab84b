package service

import (
	"context"
	"fmt"
	"time"

	"hackathon-gallery/project/domain"
)

// ProjectView はギャラリー表示用に集計値を付けた作品です
type ProjectView struct {
	Record *domain.ProjectRecord

	// ReactionCounts は絵文字ごとのリアクション数
	ReactionCounts map[string]int

	TotalReactions int
	TotalReplies   int
}

// GallerySummary は作品一覧の概要です
type GallerySummary struct {
	TotalCount int

	// LastUpdated は最新作品の時刻。作品がない場合は nil
	LastUpdated *time.Time
}

// GalleryService は作品一覧の読み取りAPIです
type GalleryService interface {
	// ListProjects は作品を新しい順に集計値付きで返します
	ListProjects(ctx context.Context) ([]ProjectView, GallerySummary, error)
}

type galleryService struct {
	repo domain.ProjectRepository
}

// NewGalleryService は GalleryService のインスタンスを作成します
func NewGalleryService(repo domain.ProjectRepository) GalleryService {
	return &galleryService{repo: repo}
}

// ListProjects は全作品を取得してリアクション・返信を集計します
func (gs *galleryService) ListProjects(ctx context.Context) ([]ProjectView, GallerySummary, error) {
	projects, err := gs.repo.AllProjects(ctx)
	if err != nil {
		return nil, GallerySummary{}, fmt.Errorf("ListProjects: 作品一覧取得失敗: %w", err)
	}

	views := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, NewProjectView(p))
	}

	summary := GallerySummary{TotalCount: len(projects)}
	if len(projects) > 0 {
		ts := projects[0].Timestamp
		summary.LastUpdated = &ts
	}
	return views, summary, nil
}

// NewProjectView は作品のリアクションを絵文字ごとに集計します
func NewProjectView(p *domain.ProjectRecord) ProjectView {
	counts := make(map[string]int)
	for _, r := range p.Reactions {
		counts[r.Emoji]++
	}
	return ProjectView{
		Record:         p,
		ReactionCounts: counts,
		TotalReactions: len(p.Reactions),
		TotalReplies:   len(p.Replies),
	}
}
