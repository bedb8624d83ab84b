package dto

// ProjectListResponse は GET /api/projects のレスポンスです
type ProjectListResponse struct {
	Projects    []ProjectResponse `json:"projects"`
	TotalCount  int               `json:"totalCount"`
	LastUpdated *string           `json:"lastUpdated"` // RFC3339、作品がない場合は null
}

// ProjectResponse はギャラリー表示用の作品情報です
type ProjectResponse struct {
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	URL               string             `json:"url"`
	TeamName          string             `json:"teamName"`
	TeamMembers       string             `json:"teamMembers"`
	Sender            string             `json:"sender"`
	GroupName         string             `json:"groupName"`
	MessageID         string             `json:"messageId"`
	RelatedMessageIDs []string           `json:"relatedMessageIds"`
	Timestamp         string             `json:"timestamp"`
	Reactions         []ReactionResponse `json:"reactions"`
	Replies           []ReplyResponse    `json:"replies"`
	ReactionCounts    map[string]int     `json:"reactionCounts"`
	TotalReactions    int                `json:"totalReactions"`
	TotalReplies      int                `json:"totalReplies"`
}

// ReactionResponse はリアクションの表示形式です
type ReactionResponse struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	ChatID    string `json:"chatId"`
}

// ReplyResponse は返信の表示形式です
type ReplyResponse struct {
	MessageID       string `json:"messageId"`
	QuotedMessageID string `json:"quotedMessageId"`
	Text            string `json:"text"`
	Sender          string `json:"sender"`
	Timestamp       string `json:"timestamp"`
	ChatID          string `json:"chatId"`
}

// HealthResponse は GET /api/health のレスポンスです
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Uptime    float64         `json:"uptime"` // 秒
	Projects  *HealthProjects `json:"projects,omitempty"`
	Version   string          `json:"version"`
	Store     string          `json:"store"`
	Error     string          `json:"error,omitempty"`
}

// HealthProjects は作品件数の概要です
type HealthProjects struct {
	Count       int     `json:"count"`
	LastUpdated *string `json:"lastUpdated"`
}

// ErrorResponse は共通のエラーレスポンスです
type ErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}
