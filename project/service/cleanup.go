package service

import (
	"context"
	"fmt"
	"sort"

	"hackathon-gallery/project/domain"

	"go.uber.org/zap"
)

// CleanupResult は重複整理の結果です
type CleanupResult struct {
	Before  int
	After   int
	Removed []string // 削除（マージ）された作品の PrimaryMessageID
}

// CollapseDuplicates は同一作品と判定される重複レコードを最も古いレコードへまとめます
// 判定条件はメッセージIDの共有、または (小文字化した作品名, URL) の一致です
// dryRun が true の場合はストアを変更しません
func (rc *Reconciler) CollapseDuplicates(ctx context.Context, dryRun bool) (*CleanupResult, error) {
	projects, err := rc.repo.AllProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("CollapseDuplicates: 作品一覧取得失敗: %w", err)
	}

	// 古い順に処理し、先に現れたものを残す
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].Timestamp.Before(projects[j].Timestamp)
	})

	result := &CleanupResult{Before: len(projects)}
	var kept []*domain.ProjectRecord
	byMessageID := make(map[string]*domain.ProjectRecord)
	byNameURL := make(map[string]*domain.ProjectRecord)
	dirty := make(map[*domain.ProjectRecord]bool)

	for _, p := range projects {
		survivor := byNameURL[domain.NameURLKey(p.Name, p.URL)]
		if survivor == nil {
			for _, id := range append([]string{p.PrimaryMessageID}, p.RelatedMessageIDs...) {
				if s, ok := byMessageID[id]; ok {
					survivor = s
					break
				}
			}
		}

		if survivor == nil {
			kept = append(kept, p)
			byNameURL[domain.NameURLKey(p.Name, p.URL)] = p
			for _, id := range append([]string{p.PrimaryMessageID}, p.RelatedMessageIDs...) {
				byMessageID[id] = p
			}
			continue
		}

		rc.logger.Info("duplicate_project_found",
			zap.String("name", p.Name),
			zap.String("message_id", p.PrimaryMessageID),
			zap.String("survivor", survivor.PrimaryMessageID))

		rc.merge(survivor, p)
		dirty[survivor] = true
		for _, id := range survivor.RelatedMessageIDs {
			byMessageID[id] = survivor
		}
		result.Removed = append(result.Removed, p.PrimaryMessageID)
	}
	result.After = len(kept)

	if dryRun {
		return result, nil
	}

	// 残す側を先に保存する。保存に失敗しても重複レコードは残る
	// 削除は削除対象を指す索引だけを消すため、保存済みの索引は壊れない
	for _, p := range kept {
		if !dirty[p] {
			continue
		}
		if err := rc.repo.UpsertProject(ctx, p); err != nil {
			return nil, fmt.Errorf("CollapseDuplicates: 作品保存失敗 (id=%s): %w", p.PrimaryMessageID, err)
		}
	}
	for _, id := range result.Removed {
		if err := rc.repo.DeleteProject(ctx, id); err != nil {
			return nil, fmt.Errorf("CollapseDuplicates: 重複作品削除失敗 (id=%s): %w", id, err)
		}
	}

	rc.logger.Info("duplicates_collapsed",
		zap.Int("before", result.Before),
		zap.Int("after", result.After))
	return result, nil
}
