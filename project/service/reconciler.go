package service

import (
	"context"
	"errors"
	"fmt"

	"hackathon-gallery/project/domain"

	"go.uber.org/zap"
)

// TeamMergePolicy はマージ時のチーム名・メンバー表記の統合方法です
type TeamMergePolicy func(existing []string, incoming string) []string

// AppendDistinct は未登録の値だけを末尾に追加します
func AppendDistinct(existing []string, incoming string) []string {
	if incoming == "" {
		return existing
	}
	for _, v := range existing {
		if v == incoming {
			return existing
		}
	}
	return append(existing, incoming)
}

// AppendAlways は直前の値と異なれば毎回追加します（表示文字列は連結され続けます）
func AppendAlways(existing []string, incoming string) []string {
	if incoming == "" {
		return existing
	}
	if n := len(existing); n > 0 && existing[n-1] == incoming {
		return existing
	}
	return append(existing, incoming)
}

// Reconciler は新着の作品レコードを既存レコードと突き合わせてマージし、
// リアクションと返信をメッセージIDで作品に紐づけます
type Reconciler struct {
	repo      domain.ProjectRepository
	teamMerge TeamMergePolicy
	logger    *zap.Logger
}

// NewReconciler は Reconciler を作成します
func NewReconciler(repo domain.ProjectRepository, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		repo:      repo,
		teamMerge: AppendDistinct,
		logger:    logger,
	}
}

// WithTeamMergePolicy はチーム情報の統合方法を差し替えます
func (rc *Reconciler) WithTeamMergePolicy(policy TeamMergePolicy) *Reconciler {
	if policy != nil {
		rc.teamMerge = policy
	}
	return rc
}

// Upsert は作品を新規登録するか、同一作品と判定された既存レコードにマージします
func (rc *Reconciler) Upsert(ctx context.Context, incoming *domain.ProjectRecord) (*domain.ProjectRecord, error) {
	if err := incoming.Validate(); err != nil {
		return nil, fmt.Errorf("Upsert: 作品検証失敗: %w", err)
	}

	existing, err := rc.findExisting(ctx, incoming)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		created := incoming.Clone()
		created.RelatedMessageIDs = []string{created.PrimaryMessageID}
		created.Reactions = []domain.Reaction{}
		created.Replies = []domain.Reply{}

		if err := rc.repo.UpsertProject(ctx, created); err != nil {
			return nil, fmt.Errorf("Upsert: 作品保存失敗: %w", err)
		}
		rc.logger.Info("project_created",
			zap.String("name", created.Name),
			zap.String("message_id", created.PrimaryMessageID))
		return created, nil
	}

	rc.merge(existing, incoming)

	if err := rc.repo.UpsertProject(ctx, existing); err != nil {
		return nil, fmt.Errorf("Upsert: マージ結果保存失敗: %w", err)
	}
	rc.logger.Info("project_merged",
		zap.String("name", existing.Name),
		zap.String("primary_message_id", existing.PrimaryMessageID),
		zap.String("incoming_message_id", incoming.PrimaryMessageID),
		zap.Int("related_count", len(existing.RelatedMessageIDs)))
	return existing, nil
}

// findExisting はメッセージID、次に (作品名, URL) で既存作品を探します
func (rc *Reconciler) findExisting(ctx context.Context, incoming *domain.ProjectRecord) (*domain.ProjectRecord, error) {
	existing, err := rc.repo.FindByMessageID(ctx, incoming.PrimaryMessageID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("Upsert: メッセージID検索失敗: %w", err)
	}

	existing, err = rc.repo.FindByNameURL(ctx, incoming.Name, incoming.URL)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("Upsert: 作品名・URL検索失敗: %w", err)
	}
	return nil, nil
}

// merge は incoming の内容を existing に反映します
func (rc *Reconciler) merge(existing, incoming *domain.ProjectRecord) {
	if incoming.Timestamp.After(existing.Timestamp) {
		existing.Timestamp = incoming.Timestamp
		existing.Sender = incoming.Sender
	}

	for _, name := range incoming.TeamNames {
		existing.TeamNames = rc.teamMerge(existing.TeamNames, name)
	}
	for _, members := range incoming.TeamMembers {
		existing.TeamMembers = rc.teamMerge(existing.TeamMembers, members)
	}

	// 長い方がより詳しい説明とみなす
	if len(incoming.Description) > len(existing.Description) {
		existing.Description = incoming.Description
	}

	if len(existing.RelatedMessageIDs) == 0 {
		existing.RelatedMessageIDs = []string{existing.PrimaryMessageID}
	}
	existing.AddRelatedMessageID(incoming.PrimaryMessageID)

	// 重複整理では両方の作品にリアクション・返信が付いている
	for _, r := range incoming.Reactions {
		if !existing.HasReaction(r) {
			existing.Reactions = append(existing.Reactions, r)
		}
	}
	for _, r := range incoming.Replies {
		if !existing.HasReply(r) {
			existing.Replies = append(existing.Replies, r)
		}
	}
	for _, id := range incoming.RelatedMessageIDs {
		existing.AddRelatedMessageID(id)
	}
}

// AttachReaction はリアクションを全体ログに追記し、対象作品に紐づけます
// 対象作品が見つからない場合はログのみ記録して nil を返します
func (rc *Reconciler) AttachReaction(ctx context.Context, r *domain.Reaction) (*domain.Reaction, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("AttachReaction: リアクション検証失敗: %w", err)
	}

	project, err := rc.repo.FindByMessageID(ctx, r.MessageID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("AttachReaction: 作品検索失敗: %w", err)
	}

	if project != nil && project.HasReaction(*r) {
		// 再送されたリアクションは二重に数えない
		return r, nil
	}

	if err := rc.repo.AppendReaction(ctx, r); err != nil {
		return nil, fmt.Errorf("AttachReaction: リアクションログ追記失敗: %w", err)
	}

	if project == nil {
		rc.logger.Warn("reaction_target_not_found",
			zap.String("message_id", r.MessageID),
			zap.String("emoji", r.Emoji))
		return nil, nil
	}

	project.Reactions = append(project.Reactions, *r)
	if err := rc.repo.UpsertProject(ctx, project); err != nil {
		return nil, fmt.Errorf("AttachReaction: 作品保存失敗: %w", err)
	}

	rc.logger.Info("reaction_attached",
		zap.String("project", project.Name),
		zap.String("message_id", r.MessageID),
		zap.String("emoji", r.Emoji))
	return r, nil
}

// AttachReply は返信を全体ログに追記し、引用元の作品に紐づけます
// 対象作品が見つからない場合はログのみ記録して nil を返します
func (rc *Reconciler) AttachReply(ctx context.Context, r *domain.Reply) (*domain.Reply, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("AttachReply: 返信検証失敗: %w", err)
	}

	project, err := rc.repo.FindByMessageID(ctx, r.QuotedMessageID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("AttachReply: 作品検索失敗: %w", err)
	}

	if project != nil && project.HasReply(*r) {
		return r, nil
	}

	if err := rc.repo.AppendReply(ctx, r); err != nil {
		return nil, fmt.Errorf("AttachReply: 返信ログ追記失敗: %w", err)
	}

	if project == nil {
		rc.logger.Warn("reply_target_not_found",
			zap.String("message_id", r.MessageID),
			zap.String("quoted_message_id", r.QuotedMessageID))
		return nil, nil
	}

	project.Replies = append(project.Replies, *r)
	if err := rc.repo.UpsertProject(ctx, project); err != nil {
		return nil, fmt.Errorf("AttachReply: 作品保存失敗: %w", err)
	}

	rc.logger.Info("reply_attached",
		zap.String("project", project.Name),
		zap.String("message_id", r.MessageID),
		zap.String("quoted_message_id", r.QuotedMessageID))
	return r, nil
}
