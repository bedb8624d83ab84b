package service

import (
	"time"

	"hackathon-gallery/project/dto"
)

// メッセージ種別
const (
	MessageTypeText     = "text"
	MessageTypeReaction = "reaction"
	MessageTypeSystem   = "system"
	MessageTypeAction   = "action"
)

// 取り込み結果（メトリクスのラベルにも使用）
const (
	OutcomeProjectUpserted = "project_upserted"
	OutcomeParseFailed     = "parse_failed"
	OutcomeReplyAttached   = "reply_attached"
	OutcomeReactionAdded   = "reaction_attached"
	OutcomeOrphaned        = "orphaned"
	OutcomeIgnored         = "ignored"
	OutcomeFailed          = "failed"
)

// UnknownSender は送信者名が取れない場合の表示名です
const UnknownSender = "Unknown"

// MessageEvent はメッセージソースから届いた1件のメッセージを表します
type MessageEvent struct {
	// ID はメッセージ自身のID
	ID string

	// Type は "text", "reaction", "system", "action" のいずれか
	Type string

	// Subtype は system メッセージの詳細種別（"revoke" など）
	Subtype string

	// Text はメッセージ本文
	Text string

	// Sender は送信者の表示名
	Sender string

	// ChatID はチャットのID
	ChatID string

	// ChatName はチャット（グループ）名。取り込み対象の判定に使用
	ChatName string

	// Timestamp は送信時刻
	Timestamp time.Time

	// QuotedMessageID は返信の引用元メッセージID
	QuotedMessageID string

	// ReactionTarget はリアクション対象のメッセージID
	ReactionTarget string

	// ReactionEmoji はリアクションの絵文字
	ReactionEmoji string

	// ActionType は action メッセージの種別（"delete", "reaction" など）
	ActionType string

	// ActionTarget は action メッセージの対象メッセージID
	ActionTarget string
}

// EventFromWhapi は Whapi のメッセージエンベロープを MessageEvent に変換します
func EventFromWhapi(m dto.WhapiMessage) MessageEvent {
	ev := MessageEvent{
		ID:              m.ID,
		Type:            m.Type,
		Subtype:         m.Subtype,
		Text:            m.Body(),
		Sender:          m.FromName,
		ChatID:          m.ChatID,
		ChatName:        m.ChatName,
		Timestamp:       time.Unix(m.Timestamp, 0).UTC(),
		QuotedMessageID: m.QuotedMessageID(),
	}
	if ev.Sender == "" {
		ev.Sender = m.From
	}
	if ev.Sender == "" {
		ev.Sender = UnknownSender
	}

	if m.Reaction != nil {
		ev.ReactionEmoji = m.Reaction.Emoji
		ev.ReactionTarget = m.Reaction.ID
	}
	if ev.ReactionTarget == "" && m.Type == MessageTypeReaction {
		// 旧形式では message_id、最終的には自身の id を対象とみなす
		ev.ReactionTarget = m.MessageID
		if ev.ReactionTarget == "" {
			ev.ReactionTarget = m.ID
		}
	}

	if m.Action != nil {
		ev.ActionType = m.Action.Type
		ev.ActionTarget = m.Action.Target
		if m.Action.Type == MessageTypeReaction {
			ev.ReactionTarget = m.Action.Target
			ev.ReactionEmoji = m.Action.Emoji
			if m.Action.Reaction != nil && m.Action.Reaction.Emoji != "" {
				ev.ReactionEmoji = m.Action.Reaction.Emoji
			}
		}
	}

	return ev
}
