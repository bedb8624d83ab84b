package domain

import (
	"fmt"
	"strings"
	"time"
)

// ハッカソン作品の登録レコード
type ProjectRecord struct {
	// Name は作品名
	Name string

	// Description は作品の説明
	Description string

	// URL は作品のURL（スキーム補完済み）
	URL string

	// TeamNames はチーム名の履歴（重複なし、出現順）
	TeamNames []string

	// TeamMembers はチームメンバー表記の履歴（重複なし、出現順）
	TeamMembers []string

	// Sender は最新メッセージの送信者名
	Sender string

	// GroupName は投稿元グループ名
	GroupName string

	// PrimaryMessageID は最初に登録されたメッセージのID
	PrimaryMessageID string

	// RelatedMessageIDs はこの作品にマージされた全メッセージID。
	// PrimaryMessageID を必ず含みます
	RelatedMessageIDs []string

	// Timestamp は最新メッセージの送信時刻
	Timestamp time.Time

	// Reactions は作品に付いたリアクション（到着順）
	Reactions []Reaction

	// Replies は作品への返信（到着順）
	Replies []Reply
}

// 作品メッセージへの絵文字リアクション
type Reaction struct {
	// MessageID はリアクション対象（作品）のメッセージID
	MessageID string

	Emoji     string
	Sender    string
	Timestamp time.Time
	ChatID    string
}

// 作品メッセージへの返信
type Reply struct {
	// MessageID は返信メッセージ自身のID
	MessageID string

	// QuotedMessageID は返信対象（作品）のメッセージID
	QuotedMessageID string

	Text      string
	Sender    string
	Timestamp time.Time
	ChatID    string
}

// NameURLKey は作品名とURLによる二次重複判定キーを生成します
// 作品名は大文字小文字を区別しません
func NameURLKey(name, url string) string {
	return fmt.Sprintf("%s|%s", strings.ToLower(strings.TrimSpace(name)), strings.TrimSpace(url))
}

// TeamName はチーム名の表示用文字列を返します
func (p *ProjectRecord) TeamName() string {
	return strings.Join(p.TeamNames, ", ")
}

// TeamMembersText はチームメンバーの表示用文字列を返します
func (p *ProjectRecord) TeamMembersText() string {
	return strings.Join(p.TeamMembers, ", ")
}

// HasMessageID は指定IDがこの作品に紐づくかを判定します
func (p *ProjectRecord) HasMessageID(id string) bool {
	if id == "" {
		return false
	}
	if p.PrimaryMessageID == id {
		return true
	}
	for _, related := range p.RelatedMessageIDs {
		if related == id {
			return true
		}
	}
	return false
}

// AddRelatedMessageID は未登録のメッセージIDを RelatedMessageIDs に追加します。
// 追加した場合は true を返します
func (p *ProjectRecord) AddRelatedMessageID(id string) bool {
	if id == "" || containsString(p.RelatedMessageIDs, id) {
		return false
	}
	p.RelatedMessageIDs = append(p.RelatedMessageIDs, id)
	return true
}

// HasReaction は同一内容のリアクションが付与済みかを判定します
func (p *ProjectRecord) HasReaction(r Reaction) bool {
	for _, existing := range p.Reactions {
		if existing.MessageID == r.MessageID &&
			existing.Emoji == r.Emoji &&
			existing.Sender == r.Sender &&
			existing.Timestamp.Equal(r.Timestamp) {
			return true
		}
	}
	return false
}

// HasReply は同一メッセージIDの返信が付与済みかを判定します
func (p *ProjectRecord) HasReply(r Reply) bool {
	if r.MessageID == "" {
		return false
	}
	for _, existing := range p.Replies {
		if existing.MessageID == r.MessageID {
			return true
		}
	}
	return false
}

// Clone はスライスを含めた複製を返します
func (p *ProjectRecord) Clone() *ProjectRecord {
	if p == nil {
		return nil
	}
	c := *p
	c.TeamNames = append([]string(nil), p.TeamNames...)
	c.TeamMembers = append([]string(nil), p.TeamMembers...)
	c.RelatedMessageIDs = append([]string(nil), p.RelatedMessageIDs...)
	c.Reactions = append([]Reaction(nil), p.Reactions...)
	c.Replies = append([]Reply(nil), p.Replies...)
	return &c
}

// Validate はProjectRecordの必須項目を検証します
func (p *ProjectRecord) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: Nameは必須項目です", ErrInvalid)
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("%w: URLは必須項目です", ErrInvalid)
	}
	if strings.TrimSpace(p.PrimaryMessageID) == "" {
		return fmt.Errorf("%w: PrimaryMessageIDは必須項目です", ErrInvalid)
	}
	if len(p.RelatedMessageIDs) > 0 && !containsString(p.RelatedMessageIDs, p.PrimaryMessageID) {
		return fmt.Errorf("%w: RelatedMessageIDsにPrimaryMessageIDが含まれていません", ErrInvalid)
	}
	return nil
}

// Validate はReactionの必須項目を検証します
func (r Reaction) Validate() error {
	if strings.TrimSpace(r.MessageID) == "" {
		return fmt.Errorf("%w: MessageIDは必須項目です", ErrInvalid)
	}
	if strings.TrimSpace(r.Emoji) == "" {
		return fmt.Errorf("%w: Emojiは必須項目です", ErrInvalid)
	}
	return nil
}

// Validate はReplyの必須項目を検証します
func (r Reply) Validate() error {
	if strings.TrimSpace(r.MessageID) == "" {
		return fmt.Errorf("%w: MessageIDは必須項目です", ErrInvalid)
	}
	if strings.TrimSpace(r.QuotedMessageID) == "" {
		return fmt.Errorf("%w: QuotedMessageIDは必須項目です", ErrInvalid)
	}
	return nil
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
