package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"hackathon-gallery/project/domain"
	"hackathon-gallery/project/infrastructure/config"

	"go.uber.org/zap"
)

// IngestService はグループのメッセージを作品・リアクション・返信として取り込みます
type IngestService interface {
	// HandleMessage は1件のメッセージを種別に応じて処理し、取り込み結果を返します
	// ストア接続不可の場合は domain.ErrStoreUnavailable をラップしたエラーを返します
	HandleMessage(ctx context.Context, ev *MessageEvent) (string, error)

	// HandleBatch はメッセージを送信時刻の昇順に並べ替えて1件ずつ処理します
	// ストア接続不可のエラーが出た時点で中断し、そのエラーを返します
	HandleBatch(ctx context.Context, events []MessageEvent) error
}

// ingestService は IngestService の実装です
type ingestService struct {
	targetGroup string
	parser      Parser
	rc          *Reconciler
	metrics     MetricsPort
	logger      *zap.Logger
}

// NewIngestService は IngestService のインスタンスを作成します
func NewIngestService(
	cfg *config.Config,
	rc *Reconciler,
	metrics MetricsPort,
	logger *zap.Logger,
) IngestService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ingestService{
		targetGroup: cfg.TargetGroup,
		parser:      Parser{RequireTeam: cfg.RequireTeamFields},
		rc:          rc,
		metrics:     metrics,
		logger:      logger,
	}
}

// HandleBatch は送信時刻順に HandleMessage を呼び出します
func (s *ingestService) HandleBatch(ctx context.Context, events []MessageEvent) error {
	sorted := make([]MessageEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for i := range sorted {
		if _, err := s.HandleMessage(ctx, &sorted[i]); err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				return fmt.Errorf("HandleBatch: message=%s: %w", sorted[i].ID, err)
			}
			s.logger.Error("message_handling_failed",
				zap.String("message_id", sorted[i].ID),
				zap.Error(err))
		}
	}
	return nil
}

// HandleMessage は種別ごとに処理を振り分けます
func (s *ingestService) HandleMessage(ctx context.Context, ev *MessageEvent) (string, error) {
	outcome, err := s.dispatch(ctx, ev)
	if err != nil {
		s.metrics.ObserveMessage(ev.Type, OutcomeFailed)
		return OutcomeFailed, err
	}
	s.metrics.ObserveMessage(ev.Type, outcome)
	return outcome, nil
}

func (s *ingestService) dispatch(ctx context.Context, ev *MessageEvent) (string, error) {
	// 対象グループ以外は無視
	if s.targetGroup != "" && ev.ChatName != s.targetGroup {
		s.logger.Debug("message_from_other_group",
			zap.String("chat_name", ev.ChatName),
			zap.String("message_id", ev.ID))
		return OutcomeIgnored, nil
	}

	switch ev.Type {
	case MessageTypeText:
		return s.handleText(ctx, ev)
	case MessageTypeReaction:
		return s.handleReaction(ctx, ev, ev.ReactionTarget)
	case MessageTypeAction:
		if ev.ActionType == MessageTypeReaction {
			return s.handleReaction(ctx, ev, ev.ActionTarget)
		}
		if ev.ActionType == "delete" {
			s.logger.Info("message_deleted_by_action", zap.String("target", ev.ActionTarget))
		}
		return OutcomeIgnored, nil
	case MessageTypeSystem:
		if ev.Subtype == "revoke" {
			s.logger.Info("message_revoked", zap.String("message_id", ev.ID))
		}
		return OutcomeIgnored, nil
	default:
		s.logger.Debug("unhandled_message_type", zap.String("type", ev.Type), zap.String("message_id", ev.ID))
		return OutcomeIgnored, nil
	}
}

// handleText は作品投稿または作品への返信として処理します
func (s *ingestService) handleText(ctx context.Context, ev *MessageEvent) (string, error) {
	if strings.TrimSpace(ev.Text) == "" {
		return OutcomeIgnored, nil
	}

	if IsProjectSubmission(ev.Text) {
		fields, ok := s.parser.Parse(ev.Text)
		if ok {
			return s.upsertProject(ctx, ev, fields)
		}
		if ev.QuotedMessageID == "" {
			s.logger.Info("project_parse_failed",
				zap.String("message_id", ev.ID),
				zap.String("preview", preview(ev.Text, 50)))
			return OutcomeParseFailed, nil
		}
	}

	if ev.QuotedMessageID != "" {
		return s.handleReply(ctx, ev)
	}
	return OutcomeIgnored, nil
}

func (s *ingestService) upsertProject(ctx context.Context, ev *MessageEvent, fields *ProjectFields) (string, error) {
	record := &domain.ProjectRecord{
		Name:             fields.Name,
		Description:      fields.Description,
		URL:              fields.URL,
		Sender:           ev.Sender,
		GroupName:        ev.ChatName,
		PrimaryMessageID: ev.ID,
		Timestamp:        ev.Timestamp,
	}
	if fields.TeamName != "" {
		record.TeamNames = []string{fields.TeamName}
	}
	if fields.TeamMembers != "" {
		record.TeamMembers = []string{fields.TeamMembers}
	}

	if _, err := s.rc.Upsert(ctx, record); err != nil {
		return "", fmt.Errorf("handleText: %w", err)
	}
	return OutcomeProjectUpserted, nil
}

func (s *ingestService) handleReply(ctx context.Context, ev *MessageEvent) (string, error) {
	reply := &domain.Reply{
		MessageID:       ev.ID,
		QuotedMessageID: ev.QuotedMessageID,
		Text:            ev.Text,
		Sender:          ev.Sender,
		Timestamp:       ev.Timestamp,
		ChatID:          ev.ChatID,
	}

	attached, err := s.rc.AttachReply(ctx, reply)
	if err != nil {
		return "", fmt.Errorf("handleReply: %w", err)
	}
	if attached == nil {
		return OutcomeOrphaned, nil
	}
	return OutcomeReplyAttached, nil
}

func (s *ingestService) handleReaction(ctx context.Context, ev *MessageEvent, target string) (string, error) {
	// 空の絵文字はリアクション取り消し
	if ev.ReactionEmoji == "" || target == "" {
		s.logger.Debug("reaction_skipped",
			zap.String("message_id", ev.ID),
			zap.String("target", target))
		return OutcomeIgnored, nil
	}

	reaction := &domain.Reaction{
		MessageID: target,
		Emoji:     ev.ReactionEmoji,
		Sender:    ev.Sender,
		Timestamp: ev.Timestamp,
		ChatID:    ev.ChatID,
	}

	attached, err := s.rc.AttachReaction(ctx, reaction)
	if err != nil {
		return "", fmt.Errorf("handleReaction: %w", err)
	}
	if attached == nil {
		return OutcomeOrphaned, nil
	}
	return OutcomeReactionAdded, nil
}

func preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
