package dto

// WhapiWebhookRequest は Whapi.Cloud Webhook のリクエスト全体を表します
type WhapiWebhookRequest struct {
	Messages  []WhapiMessage `json:"messages"`
	Event     *WhapiEvent    `json:"event,omitempty"`
	ChannelID string         `json:"channel_id,omitempty"`
}

// WhapiEvent は Webhook イベント種別です
type WhapiEvent struct {
	Type  string `json:"type"`  // "messages" など
	Event string `json:"event"` // "post", "patch" など
}

// WhapiMessage は Whapi.Cloud のメッセージエンベロープです
// Webhook とメッセージ一覧 API の両方で同じ形をしています
type WhapiMessage struct {
	ID        string `json:"id"`
	Type      string `json:"type"`              // "text", "reaction", "system", "action"
	Subtype   string `json:"subtype,omitempty"` // "revoke" など
	ChatID    string `json:"chat_id"`
	ChatName  string `json:"chat_name,omitempty"`
	From      string `json:"from,omitempty"`
	FromName  string `json:"from_name,omitempty"`
	FromMe    bool   `json:"from_me,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix秒

	// MessageID はリアクションメッセージで対象IDが入ることがある旧形式フィールド
	MessageID string `json:"message_id,omitempty"`

	Text     *WhapiText     `json:"text,omitempty"`
	Context  *WhapiContext  `json:"context,omitempty"`
	Reaction *WhapiReaction `json:"reaction,omitempty"`
	Action   *WhapiAction   `json:"action,omitempty"`
}

// WhapiText はテキスト本文です
type WhapiText struct {
	Body string `json:"body"`
}

// WhapiContext は引用（返信）情報です
type WhapiContext struct {
	QuotedMessage *WhapiQuotedMessage `json:"quoted_message,omitempty"`
	QuotedID      string              `json:"quoted_id,omitempty"`
}

// WhapiQuotedMessage は引用元メッセージです
type WhapiQuotedMessage struct {
	ID string `json:"id"`
}

// WhapiReaction はリアクション情報です
type WhapiReaction struct {
	ID    string `json:"id,omitempty"` // 対象メッセージID
	Emoji string `json:"emoji"`
}

// WhapiAction はアクションメッセージ（削除・リアクションなど）です
type WhapiAction struct {
	Type     string         `json:"type"` // "delete", "reaction", "edit"
	Target   string         `json:"target,omitempty"`
	Emoji    string         `json:"emoji,omitempty"`
	Reaction *WhapiReaction `json:"reaction,omitempty"`
}

// WhapiMessageList は GET /messages/list/{ChatID} のレスポンスです
type WhapiMessageList struct {
	Messages []WhapiMessage `json:"messages"`
	Count    int            `json:"count"`
	Total    int            `json:"total"`
}

// WhapiGroup はグループ情報です
type WhapiGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WhapiGroupList は GET /groups のレスポンスです
type WhapiGroupList struct {
	Groups []WhapiGroup `json:"groups"`
	Count  int          `json:"count"`
	Total  int          `json:"total"`
}

// QuotedMessageID は引用元メッセージIDを返します（引用なしの場合は空文字）
func (m WhapiMessage) QuotedMessageID() string {
	if m.Context == nil {
		return ""
	}
	if m.Context.QuotedMessage != nil && m.Context.QuotedMessage.ID != "" {
		return m.Context.QuotedMessage.ID
	}
	return m.Context.QuotedID
}

// Body はテキスト本文を返します
func (m WhapiMessage) Body() string {
	if m.Text == nil {
		return ""
	}
	return m.Text.Body
}
