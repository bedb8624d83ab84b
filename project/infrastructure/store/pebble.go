package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hackathon-gallery/project/domain"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// キー空間
//
//	project:<primaryID>  作品本体（JSON）
//	msgidx:<messageID>   関連メッセージID → primaryID
//	nameurl:<key>        作品名|URL → primaryID
//	reaction:<ts>-<seq>-<uuid> リアクションログ
//	reply:<ts>-<seq>     返信ログ
const (
	prefixProject  = "project:"
	prefixMsgIndex = "msgidx:"
	prefixNameURL  = "nameurl:"
	prefixReaction = "reaction:"
	prefixReply    = "reply:"
)

// PebbleRepo は domain.ProjectRepository の Pebble（組み込みKVS）実装です
type PebbleRepo struct {
	db     *pebble.DB
	mu     sync.Mutex // 索引更新を含む書き込みを直列化する
	seq    atomic.Uint64
	logger *zap.Logger
}

// NewPebbleRepo は path に Pebble データベースを開きます（なければ作成）
func NewPebbleRepo(path string, logger *zap.Logger) (*PebbleRepo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("pebble: オープン失敗 (path=%s): %w: %w", path, domain.ErrStoreUnavailable, err)
	}
	logger.Info("pebble_opened", zap.String("path", path))
	return &PebbleRepo{db: db, logger: logger}, nil
}

// Close はデータベースを閉じます
func (repo *PebbleRepo) Close() error {
	if repo.db == nil {
		return nil
	}
	err := repo.db.Close()
	repo.db = nil
	return err
}

// FindByMessageID は主ID、次に関連ID索引で作品を検索します
func (repo *PebbleRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.ProjectRecord, error) {
	p, err := repo.loadProject(messageID)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return p, err
	}

	primary, err := repo.get(prefixMsgIndex + messageID)
	if err != nil {
		return nil, err
	}
	return repo.loadProject(string(primary))
}

// FindByNameURL は作品名|URL 索引で作品を検索します
func (repo *PebbleRepo) FindByNameURL(ctx context.Context, name, url string) (*domain.ProjectRecord, error) {
	primary, err := repo.get(prefixNameURL + domain.NameURLKey(name, url))
	if err != nil {
		return nil, err
	}
	return repo.loadProject(string(primary))
}

// UpsertProject は作品本体と索引を1バッチで保存します
func (repo *PebbleRepo) UpsertProject(ctx context.Context, p *domain.ProjectRecord) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("pebble: UpsertProject検証失敗: %w", err)
	}
	data, err := json.Marshal(toProjectDoc(p))
	if err != nil {
		return fmt.Errorf("pebble: 作品シリアライズ失敗: %w", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	primary := []byte(p.PrimaryMessageID)
	b := repo.db.NewBatch()
	defer b.Close()

	// 以前の索引のうち不要になったものを消す
	old, err := repo.loadProject(p.PrimaryMessageID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if old != nil {
		for _, id := range old.RelatedMessageIDs {
			if !p.HasMessageID(id) {
				_ = b.Delete([]byte(prefixMsgIndex+id), nil)
			}
		}
		if oldKey := domain.NameURLKey(old.Name, old.URL); oldKey != domain.NameURLKey(p.Name, p.URL) {
			_ = b.Delete([]byte(prefixNameURL+oldKey), nil)
		}
	}

	_ = b.Set([]byte(prefixProject+p.PrimaryMessageID), data, nil)
	for _, id := range p.RelatedMessageIDs {
		if id != p.PrimaryMessageID {
			_ = b.Set([]byte(prefixMsgIndex+id), primary, nil)
		}
	}
	_ = b.Set([]byte(prefixNameURL+domain.NameURLKey(p.Name, p.URL)), primary, nil)

	if err := b.Commit(pebble.Sync); err != nil {
		repo.logger.Error("pebble_upsert_failed", zap.String("primary_message_id", p.PrimaryMessageID), zap.Error(err))
		return fmt.Errorf("pebble: 作品保存失敗 (id=%s): %w: %w", p.PrimaryMessageID, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteProject は作品本体と、その作品を指す索引を削除します
func (repo *PebbleRepo) DeleteProject(ctx context.Context, primaryMessageID string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	p, err := repo.loadProject(primaryMessageID)
	if err != nil {
		return err
	}

	b := repo.db.NewBatch()
	defer b.Close()

	_ = b.Delete([]byte(prefixProject+primaryMessageID), nil)
	// 他の作品に付け替え済みの索引は残す
	for _, id := range p.RelatedMessageIDs {
		key := prefixMsgIndex + id
		if v, err := repo.get(key); err == nil && string(v) == primaryMessageID {
			_ = b.Delete([]byte(key), nil)
		}
	}
	nameKey := prefixNameURL + domain.NameURLKey(p.Name, p.URL)
	if v, err := repo.get(nameKey); err == nil && string(v) == primaryMessageID {
		_ = b.Delete([]byte(nameKey), nil)
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble: 作品削除失敗 (id=%s): %w: %w", primaryMessageID, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// AppendReaction はリアクションを時刻順キーで追記します
func (repo *PebbleRepo) AppendReaction(ctx context.Context, r *domain.Reaction) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("pebble: AppendReaction検証失敗: %w", err)
	}
	data, err := json.Marshal(toReactionDoc(r))
	if err != nil {
		return fmt.Errorf("pebble: リアクションシリアライズ失敗: %w", err)
	}
	key := fmt.Sprintf("%s%020d-%06d-%s", prefixReaction, time.Now().UTC().UnixNano(), repo.seq.Add(1), uuid.NewString())
	return repo.set(key, data)
}

// AppendReply は返信を時刻順キーで追記します
func (repo *PebbleRepo) AppendReply(ctx context.Context, r *domain.Reply) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("pebble: AppendReply検証失敗: %w", err)
	}
	data, err := json.Marshal(toReplyDoc(r))
	if err != nil {
		return fmt.Errorf("pebble: 返信シリアライズ失敗: %w", err)
	}
	key := fmt.Sprintf("%s%020d-%06d", prefixReply, time.Now().UTC().UnixNano(), repo.seq.Add(1))
	return repo.set(key, data)
}

// AllProjects は全作品を新しい順に返します
func (repo *PebbleRepo) AllProjects(ctx context.Context) ([]*domain.ProjectRecord, error) {
	var out []*domain.ProjectRecord
	err := repo.scan(prefixProject, func(v []byte) error {
		var d projectDoc
		if err := json.Unmarshal(v, &d); err != nil {
			return fmt.Errorf("pebble: 作品デシリアライズ失敗: %w", err)
		}
		out = append(out, d.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByTimestampDesc(out)
	return out, nil
}

// Reactions はリアクションログを到着順に返します
func (repo *PebbleRepo) Reactions(ctx context.Context) ([]*domain.Reaction, error) {
	var out []*domain.Reaction
	err := repo.scan(prefixReaction, func(v []byte) error {
		var d reactionDoc
		if err := json.Unmarshal(v, &d); err != nil {
			return fmt.Errorf("pebble: リアクションデシリアライズ失敗: %w", err)
		}
		out = append(out, d.toDomain())
		return nil
	})
	return out, err
}

// Replies は返信ログを到着順に返します
func (repo *PebbleRepo) Replies(ctx context.Context) ([]*domain.Reply, error) {
	var out []*domain.Reply
	err := repo.scan(prefixReply, func(v []byte) error {
		var d replyDoc
		if err := json.Unmarshal(v, &d); err != nil {
			return fmt.Errorf("pebble: 返信デシリアライズ失敗: %w", err)
		}
		out = append(out, d.toDomain())
		return nil
	})
	return out, err
}

func (repo *PebbleRepo) loadProject(primaryID string) (*domain.ProjectRecord, error) {
	v, err := repo.get(prefixProject + primaryID)
	if err != nil {
		return nil, err
	}
	var d projectDoc
	if err := json.Unmarshal(v, &d); err != nil {
		return nil, fmt.Errorf("pebble: 作品デシリアライズ失敗 (id=%s): %w", primaryID, err)
	}
	return d.toDomain(), nil
}

// get は値のコピーを返します。キーがなければ domain.ErrNotFound です
func (repo *PebbleRepo) get(key string) ([]byte, error) {
	v, closer, err := repo.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("pebble: 取得失敗 (key=%s): %w: %w", key, domain.ErrStoreUnavailable, err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (repo *PebbleRepo) set(key string, data []byte) error {
	if err := repo.db.Set([]byte(key), data, pebble.Sync); err != nil {
		repo.logger.Error("pebble_set_failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("pebble: 保存失敗 (key=%s): %w: %w", key, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// scan は prefix で始まるキーの値を昇順に fn へ渡します
func (repo *PebbleRepo) scan(prefix string, fn func(v []byte) error) error {
	p := []byte(prefix)
	iter, err := repo.db.NewIter(&pebble.IterOptions{LowerBound: p})
	if err != nil {
		return fmt.Errorf("pebble: イテレータ作成失敗: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer iter.Close()

	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		if err := fn(append([]byte(nil), iter.Value()...)); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("pebble: 走査失敗: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}
