package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hackathon-gallery/project/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// 接続リトライ設定（コンテナ起動直後は Postgres が未準備のことがある）
const (
	pgConnectAttempts = 5
	pgConnectBackoff  = 2 * time.Second
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS gallery_projects (
	primary_message_id  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	name_key            TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	url                 TEXT NOT NULL,
	team_names          JSONB NOT NULL DEFAULT '[]',
	team_members        JSONB NOT NULL DEFAULT '[]',
	sender              TEXT NOT NULL DEFAULT '',
	group_name          TEXT NOT NULL DEFAULT '',
	related_message_ids TEXT[] NOT NULL DEFAULT '{}',
	sent_at             TIMESTAMPTZ NOT NULL,
	reactions           JSONB NOT NULL DEFAULT '[]',
	replies             JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS gallery_projects_name_key_idx ON gallery_projects (name_key);
CREATE INDEX IF NOT EXISTS gallery_projects_related_idx ON gallery_projects USING GIN (related_message_ids);

CREATE TABLE IF NOT EXISTS gallery_reactions (
	id         BIGSERIAL PRIMARY KEY,
	message_id TEXT NOT NULL,
	emoji      TEXT NOT NULL,
	sender     TEXT NOT NULL DEFAULT '',
	sent_at    TIMESTAMPTZ NOT NULL,
	chat_id    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS gallery_replies (
	id                BIGSERIAL PRIMARY KEY,
	message_id        TEXT NOT NULL,
	quoted_message_id TEXT NOT NULL,
	text              TEXT NOT NULL DEFAULT '',
	sender            TEXT NOT NULL DEFAULT '',
	sent_at           TIMESTAMPTZ NOT NULL,
	chat_id           TEXT NOT NULL DEFAULT ''
);
`

const pgProjectColumns = `primary_message_id, name, description, url, team_names, team_members,
	sender, group_name, related_message_ids, sent_at, reactions, replies`

// PostgresRepo は domain.ProjectRepository の PostgreSQL 実装です
type PostgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepo は接続プールを作成し、テーブルがなければ作成します
func NewPostgresRepo(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresRepo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := newPool(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: スキーマ作成失敗: %w", err)
	}
	return &PostgresRepo{pool: pool, logger: logger}, nil
}

func newPool(ctx context.Context, databaseURL string, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: DATABASE_URL 解析失敗: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	for attempt := 1; attempt <= pgConnectAttempts; attempt++ {
		var pool *pgxpool.Pool
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("postgres_connected", zap.Int("attempt", attempt))
				return pool, nil
			}
			pool.Close()
		}
		logger.Warn("postgres_connect_retry",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", pgConnectAttempts),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres: 接続中断: %w: %w", domain.ErrStoreUnavailable, ctx.Err())
		case <-time.After(pgConnectBackoff):
		}
	}
	return nil, fmt.Errorf("postgres: %d回の接続に失敗: %w: %w", pgConnectAttempts, domain.ErrStoreUnavailable, err)
}

// Close は接続プールを閉じます
func (repo *PostgresRepo) Close() error {
	repo.pool.Close()
	return nil
}

// FindByMessageID は主ID、次に related_message_ids への所属で作品を検索します
func (repo *PostgresRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.ProjectRecord, error) {
	row := repo.pool.QueryRow(ctx, `SELECT `+pgProjectColumns+` FROM gallery_projects
		WHERE primary_message_id = $1 OR $1 = ANY(related_message_ids)
		ORDER BY (primary_message_id = $1) DESC
		LIMIT 1`, messageID)
	return scanProject(row, "FindByMessageID")
}

// FindByNameURL は name_key（小文字化した作品名|URL）で作品を検索します
func (repo *PostgresRepo) FindByNameURL(ctx context.Context, name, url string) (*domain.ProjectRecord, error) {
	row := repo.pool.QueryRow(ctx, `SELECT `+pgProjectColumns+` FROM gallery_projects
		WHERE name_key = $1
		ORDER BY sent_at ASC
		LIMIT 1`, domain.NameURLKey(name, url))
	return scanProject(row, "FindByNameURL")
}

// UpsertProject は primary_message_id をキーに作品を保存します
func (repo *PostgresRepo) UpsertProject(ctx context.Context, p *domain.ProjectRecord) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("postgres: UpsertProject検証失敗: %w", err)
	}
	d := toProjectDoc(p)

	teamNames, err := json.Marshal(d.TeamNames)
	if err != nil {
		return fmt.Errorf("postgres: チーム名シリアライズ失敗: %w", err)
	}
	teamMembers, err := json.Marshal(d.TeamMembers)
	if err != nil {
		return fmt.Errorf("postgres: チームメンバーシリアライズ失敗: %w", err)
	}
	reactions, err := json.Marshal(d.Reactions)
	if err != nil {
		return fmt.Errorf("postgres: リアクションシリアライズ失敗: %w", err)
	}
	replies, err := json.Marshal(d.Replies)
	if err != nil {
		return fmt.Errorf("postgres: 返信シリアライズ失敗: %w", err)
	}

	_, err = repo.pool.Exec(ctx, `
		INSERT INTO gallery_projects (primary_message_id, name, name_key, description, url,
			team_names, team_members, sender, group_name, related_message_ids, sent_at, reactions, replies)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (primary_message_id) DO UPDATE SET
			name = EXCLUDED.name,
			name_key = EXCLUDED.name_key,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			team_names = EXCLUDED.team_names,
			team_members = EXCLUDED.team_members,
			sender = EXCLUDED.sender,
			group_name = EXCLUDED.group_name,
			related_message_ids = EXCLUDED.related_message_ids,
			sent_at = EXCLUDED.sent_at,
			reactions = EXCLUDED.reactions,
			replies = EXCLUDED.replies
	`, d.PrimaryMessageID, d.Name, d.NameKey, d.Description, d.URL,
		teamNames, teamMembers, d.Sender, d.GroupName, d.RelatedMessageIDs, d.Timestamp, reactions, replies)
	if err != nil {
		return wrapPgError("UpsertProject", err)
	}
	return nil
}

// DeleteProject は作品を削除します
func (repo *PostgresRepo) DeleteProject(ctx context.Context, primaryMessageID string) error {
	tag, err := repo.pool.Exec(ctx, `DELETE FROM gallery_projects WHERE primary_message_id = $1`, primaryMessageID)
	if err != nil {
		return wrapPgError("DeleteProject", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendReaction はリアクションログに1行追加します
func (repo *PostgresRepo) AppendReaction(ctx context.Context, r *domain.Reaction) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("postgres: AppendReaction検証失敗: %w", err)
	}
	_, err := repo.pool.Exec(ctx, `
		INSERT INTO gallery_reactions (message_id, emoji, sender, sent_at, chat_id)
		VALUES ($1, $2, $3, $4, $5)
	`, r.MessageID, r.Emoji, r.Sender, r.Timestamp.UTC(), r.ChatID)
	if err != nil {
		return wrapPgError("AppendReaction", err)
	}
	return nil
}

// AppendReply は返信ログに1行追加します
func (repo *PostgresRepo) AppendReply(ctx context.Context, r *domain.Reply) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("postgres: AppendReply検証失敗: %w", err)
	}
	_, err := repo.pool.Exec(ctx, `
		INSERT INTO gallery_replies (message_id, quoted_message_id, text, sender, sent_at, chat_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.MessageID, r.QuotedMessageID, r.Text, r.Sender, r.Timestamp.UTC(), r.ChatID)
	if err != nil {
		return wrapPgError("AppendReply", err)
	}
	return nil
}

// AllProjects は全作品を新しい順に返します
func (repo *PostgresRepo) AllProjects(ctx context.Context) ([]*domain.ProjectRecord, error) {
	rows, err := repo.pool.Query(ctx, `SELECT `+pgProjectColumns+` FROM gallery_projects
		ORDER BY sent_at DESC, primary_message_id ASC`)
	if err != nil {
		return nil, wrapPgError("AllProjects", err)
	}
	defer rows.Close()

	var out []*domain.ProjectRecord
	for rows.Next() {
		p, err := scanProject(rows, "AllProjects")
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError("AllProjects", err)
	}
	return out, nil
}

// Reactions はリアクションログを到着順に返します
func (repo *PostgresRepo) Reactions(ctx context.Context) ([]*domain.Reaction, error) {
	rows, err := repo.pool.Query(ctx, `SELECT message_id, emoji, sender, sent_at, chat_id
		FROM gallery_reactions ORDER BY id ASC`)
	if err != nil {
		return nil, wrapPgError("Reactions", err)
	}
	defer rows.Close()

	var out []*domain.Reaction
	for rows.Next() {
		var r domain.Reaction
		if err := rows.Scan(&r.MessageID, &r.Emoji, &r.Sender, &r.Timestamp, &r.ChatID); err != nil {
			return nil, fmt.Errorf("postgres: リアクション読み取り失敗: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError("Reactions", err)
	}
	return out, nil
}

// Replies は返信ログを到着順に返します
func (repo *PostgresRepo) Replies(ctx context.Context) ([]*domain.Reply, error) {
	rows, err := repo.pool.Query(ctx, `SELECT message_id, quoted_message_id, text, sender, sent_at, chat_id
		FROM gallery_replies ORDER BY id ASC`)
	if err != nil {
		return nil, wrapPgError("Replies", err)
	}
	defer rows.Close()

	var out []*domain.Reply
	for rows.Next() {
		var r domain.Reply
		if err := rows.Scan(&r.MessageID, &r.QuotedMessageID, &r.Text, &r.Sender, &r.Timestamp, &r.ChatID); err != nil {
			return nil, fmt.Errorf("postgres: 返信読み取り失敗: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError("Replies", err)
	}
	return out, nil
}

func scanProject(row pgx.Row, op string) (*domain.ProjectRecord, error) {
	var (
		d                                       projectDoc
		teamNames, teamMembers, reactions, reps []byte
	)
	err := row.Scan(&d.PrimaryMessageID, &d.Name, &d.Description, &d.URL, &teamNames, &teamMembers,
		&d.Sender, &d.GroupName, &d.RelatedMessageIDs, &d.Timestamp, &reactions, &reps)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, wrapPgError(op, err)
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{teamNames, &d.TeamNames},
		{teamMembers, &d.TeamMembers},
		{reactions, &d.Reactions},
		{reps, &d.Replies},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("postgres: %s: JSON列の解析失敗: %w", op, err)
		}
	}
	return d.toDomain(), nil
}

// wrapPgError は SQL としてのエラー以外（接続断など）を domain.ErrStoreUnavailable として扱います
func wrapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres: %s失敗 (code=%s): %w", op, pgErr.Code, err)
	}
	return fmt.Errorf("postgres: %s失敗: %w: %w", op, domain.ErrStoreUnavailable, err)
}
