package domain

import (
	"context"
)

// ProjectRepository は作品レコードとリアクション・返信ログの永続化を担当します
// 実装は同時書き込みを直列化する責任を持ちます（Reconciler はロックを取りません）
// 接続不可の場合は domain.ErrStoreUnavailable をラップしたエラーを返します
type ProjectRepository interface {
	// FindByMessageID は PrimaryMessageID の完全一致、次に RelatedMessageIDs への
	// 所属で作品を検索します。
	// 存在しない場合は domain.ErrNotFound を返します
	FindByMessageID(ctx context.Context, messageID string) (*ProjectRecord, error)

	// FindByNameURL は (小文字化した作品名, URL) の組で作品を検索します
	// 存在しない場合は domain.ErrNotFound を返します
	FindByNameURL(ctx context.Context, name, url string) (*ProjectRecord, error)

	// UpsertProject は PrimaryMessageID をキーに作品を保存します
	// 同一キーの既存レコードがある場合は上書きします
	// バリデーションエラー時は domain.ErrInvalid を返します
	UpsertProject(ctx context.Context, p *ProjectRecord) error

	// DeleteProject は PrimaryMessageID をキーに作品を削除します（重複整理専用）
	// 存在しない場合は domain.ErrNotFound を返します
	DeleteProject(ctx context.Context, primaryMessageID string) error

	// AppendReaction はリアクションを全体ログに追記します
	AppendReaction(ctx context.Context, r *Reaction) error

	// AppendReply は返信を全体ログに追記します
	AppendReply(ctx context.Context, r *Reply) error

	// AllProjects は全作品を Timestamp の降順で返します
	AllProjects(ctx context.Context) ([]*ProjectRecord, error)

	// Reactions は全体ログのリアクションを到着順で返します
	Reactions(ctx context.Context) ([]*Reaction, error)

	// Replies は全体ログの返信を到着順で返します
	Replies(ctx context.Context) ([]*Reply, error)
}
