package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hackathon-gallery/project/domain"
	"hackathon-gallery/project/infrastructure/config"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// isNotFound は Firestore の NotFound エラーを判定するヘルパー関数です
func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.NotFound
}

// isUnavailable は接続断・タイムアウト系のエラーを判定します
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Unauthenticated:
		return true
	}
	return false
}

// wrapFirestoreError は接続系エラーを domain.ErrStoreUnavailable として包みます
func wrapFirestoreError(msg string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("firestore: %s: %w: %w", msg, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("firestore: %s: %w", msg, err)
}

// FirestoreRepo は domain.ProjectRepository の Firestore 実装です
type FirestoreRepo struct {
	cli          *firestore.Client
	projectsCol  string
	reactionsCol string
	repliesCol   string
}

// NewFirestoreRepo は Firestore リポジトリを初期化します
func NewFirestoreRepo(ctx context.Context, cfg *config.Config) (*FirestoreRepo, error) {
	client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
	if err != nil {
		return nil, fmt.Errorf("firestore: クライアント初期化失敗: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return &FirestoreRepo{
		cli:          client,
		projectsCol:  cfg.CollectionProjects,
		reactionsCol: cfg.CollectionReactions,
		repliesCol:   cfg.CollectionReplies,
	}, nil
}

// FindByMessageID は主ID（ドキュメントID）、次に related_message_ids で作品を検索します
func (repo *FirestoreRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.ProjectRecord, error) {
	docRef := repo.cli.Collection(repo.projectsCol).Doc(projectDocID(messageID))

	snapshot, err := docRef.Get(ctx)
	if err == nil {
		return decodeProject(snapshot)
	}
	if !isNotFound(err) {
		return nil, wrapFirestoreError(fmt.Sprintf("作品取得失敗 (docID=%s)", messageID), err)
	}

	q := repo.cli.Collection(repo.projectsCol).
		Where("related_message_ids", "array-contains", messageID).
		Limit(1)
	return repo.first(ctx, q, "関連ID検索失敗")
}

// FindByNameURL は name_key（小文字化した作品名|URL）で作品を検索します
func (repo *FirestoreRepo) FindByNameURL(ctx context.Context, name, url string) (*domain.ProjectRecord, error) {
	q := repo.cli.Collection(repo.projectsCol).
		Where("name_key", "==", domain.NameURLKey(name, url)).
		Limit(1)
	return repo.first(ctx, q, "作品名・URL検索失敗")
}

// UpsertProject は作品を保存します（新規作成または上書き）
func (repo *FirestoreRepo) UpsertProject(ctx context.Context, p *domain.ProjectRecord) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("firestore: UpsertProject検証失敗: %w", err)
	}

	docID := projectDocID(p.PrimaryMessageID)
	docRef := repo.cli.Collection(repo.projectsCol).Doc(docID)

	if _, err := docRef.Set(ctx, toProjectDoc(p)); err != nil {
		return wrapFirestoreError(fmt.Sprintf("作品保存失敗 (docID=%s)", docID), err)
	}
	return nil
}

// DeleteProject は作品を削除します
func (repo *FirestoreRepo) DeleteProject(ctx context.Context, primaryMessageID string) error {
	docID := projectDocID(primaryMessageID)
	docRef := repo.cli.Collection(repo.projectsCol).Doc(docID)

	// 存在しないドキュメントの Delete は成功扱いになるため先に確認する
	if _, err := docRef.Get(ctx); err != nil {
		if isNotFound(err) {
			return domain.ErrNotFound
		}
		return wrapFirestoreError(fmt.Sprintf("作品確認失敗 (docID=%s)", docID), err)
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return wrapFirestoreError(fmt.Sprintf("作品削除失敗 (docID=%s)", docID), err)
	}
	return nil
}

// AppendReaction はリアクションログに1件追加します
func (repo *FirestoreRepo) AppendReaction(ctx context.Context, r *domain.Reaction) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("firestore: AppendReaction検証失敗: %w", err)
	}
	d := toReactionDoc(r)
	data := map[string]interface{}{
		"message_id":  d.MessageID,
		"emoji":       d.Emoji,
		"sender":      d.Sender,
		"timestamp":   d.Timestamp,
		"chat_id":     d.ChatID,
		"received_at": time.Now().UTC(),
	}
	if _, _, err := repo.cli.Collection(repo.reactionsCol).Add(ctx, data); err != nil {
		return wrapFirestoreError("リアクション保存失敗", err)
	}
	return nil
}

// AppendReply は返信ログに1件追加します
func (repo *FirestoreRepo) AppendReply(ctx context.Context, r *domain.Reply) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("firestore: AppendReply検証失敗: %w", err)
	}
	d := toReplyDoc(r)
	data := map[string]interface{}{
		"message_id":        d.MessageID,
		"quoted_message_id": d.QuotedMessageID,
		"text":              d.Text,
		"sender":            d.Sender,
		"timestamp":         d.Timestamp,
		"chat_id":           d.ChatID,
		"received_at":       time.Now().UTC(),
	}
	if _, _, err := repo.cli.Collection(repo.repliesCol).Add(ctx, data); err != nil {
		return wrapFirestoreError("返信保存失敗", err)
	}
	return nil
}

// AllProjects は全作品を新しい順に返します
func (repo *FirestoreRepo) AllProjects(ctx context.Context) ([]*domain.ProjectRecord, error) {
	docs, err := repo.cli.Collection(repo.projectsCol).
		OrderBy("timestamp", firestore.Desc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapFirestoreError("作品一覧取得失敗", err)
	}

	out := make([]*domain.ProjectRecord, 0, len(docs))
	for _, snapshot := range docs {
		p, err := decodeProject(snapshot)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sortByTimestampDesc(out)
	return out, nil
}

// Reactions はリアクションログを到着順に返します
func (repo *FirestoreRepo) Reactions(ctx context.Context) ([]*domain.Reaction, error) {
	docs, err := repo.cli.Collection(repo.reactionsCol).
		OrderBy("received_at", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapFirestoreError("リアクション一覧取得失敗", err)
	}

	out := make([]*domain.Reaction, 0, len(docs))
	for _, snapshot := range docs {
		var d reactionDoc
		if err := snapshot.DataTo(&d); err != nil {
			return nil, fmt.Errorf("firestore: リアクション構造体変換失敗: %w", err)
		}
		out = append(out, d.toDomain())
	}
	return out, nil
}

// Replies は返信ログを到着順に返します
func (repo *FirestoreRepo) Replies(ctx context.Context) ([]*domain.Reply, error) {
	docs, err := repo.cli.Collection(repo.repliesCol).
		OrderBy("received_at", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapFirestoreError("返信一覧取得失敗", err)
	}

	out := make([]*domain.Reply, 0, len(docs))
	for _, snapshot := range docs {
		var d replyDoc
		if err := snapshot.DataTo(&d); err != nil {
			return nil, fmt.Errorf("firestore: 返信構造体変換失敗: %w", err)
		}
		out = append(out, d.toDomain())
	}
	return out, nil
}

// Close は Firestore クライアントを閉じます
func (repo *FirestoreRepo) Close() error {
	if repo.cli != nil {
		return repo.cli.Close()
	}
	return nil
}

// ===== ヘルパー関数 =====

func (repo *FirestoreRepo) first(ctx context.Context, q firestore.Query, msg string) (*domain.ProjectRecord, error) {
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapFirestoreError(msg, err)
	}
	if len(docs) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeProject(docs[0])
}

func decodeProject(snapshot *firestore.DocumentSnapshot) (*domain.ProjectRecord, error) {
	var d projectDoc
	if err := snapshot.DataTo(&d); err != nil {
		return nil, fmt.Errorf("firestore: 作品構造体変換失敗 (docID=%s): %w", snapshot.Ref.ID, err)
	}
	return d.toDomain(), nil
}

// projectDocID は作品のドキュメントIDを生成します
// 形式: PrimaryMessageID（"/" はドキュメントパスと衝突するため置換）
func projectDocID(messageID string) string {
	return strings.ReplaceAll(messageID, "/", "_")
}
