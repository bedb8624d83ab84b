package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hackathon-gallery/project/infrastructure/config"
	"hackathon-gallery/project/service"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

// 処理済みメッセージIDの保持上限（古いものから忘れる）
const maxRememberedIDs = 5000

// PollerStatus はポーラーの稼働状況です
type PollerStatus struct {
	Enabled        bool       `json:"enabled"`
	Running        bool       `json:"running"`
	Cron           string     `json:"cron"`
	GroupName      string     `json:"groupName"`
	GroupID        string     `json:"groupId,omitempty"`
	LastMessageID  string     `json:"lastMessageId,omitempty"`
	LastRun        *time.Time `json:"lastRun,omitempty"`
	NextRun        *time.Time `json:"nextRun,omitempty"`
	LastFetched    int        `json:"lastFetched"`
	LastProcessed  int        `json:"lastProcessed"`
	TotalProcessed int        `json:"totalProcessed"`
	LastError      string     `json:"lastError,omitempty"`
}

// Poller は cron 式に従ってメッセージ一覧 API を取得し、未処理のメッセージを取り込みます
// Webhook が届かない環境向けの補助経路です
type Poller struct {
	source    service.MessageSourcePort
	ingest    service.IngestService
	groupName string
	cron      string
	limit     int
	logger    *zap.Logger

	mu        sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
	status    PollerStatus
}

// NewPoller はポーラーを作成します
func NewPoller(cfg *config.Config, source service.MessageSourcePort, ingest service.IngestService, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:    source,
		ingest:    ingest,
		groupName: cfg.TargetGroup,
		cron:      cfg.PollCron,
		limit:     cfg.PollLimit,
		logger:    logger,
		seen:      make(map[string]struct{}),
		status: PollerStatus{
			Enabled:   cfg.PollEnabled,
			Cron:      cfg.PollCron,
			GroupName: cfg.TargetGroup,
		},
	}
}

// Start はスケジューラを起動します。ctx のキャンセルで停止します
func (p *Poller) Start(ctx context.Context) error {
	if !gronx.IsValid(p.cron) {
		return fmt.Errorf("poller: 不正な cron 式です: %s", p.cron)
	}

	p.mu.Lock()
	p.status.Running = true
	p.mu.Unlock()

	p.logger.Info("poller_started",
		zap.String("cron", p.cron),
		zap.String("group", p.groupName),
		zap.Int("limit", p.limit))

	go p.run(ctx)
	return nil
}

func (p *Poller) run(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.status.Running = false
		p.status.NextRun = nil
		p.mu.Unlock()
		p.logger.Info("poller_stopped")
	}()

	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(p.cron, now, false)
		if err != nil {
			p.logger.Error("poller_nexttick_failed", zap.String("cron", p.cron), zap.Error(err))
			next = now.Add(time.Minute)
		}

		p.mu.Lock()
		p.status.NextRun = &next
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if _, err := p.PollOnce(ctx); err != nil {
			p.logger.Error("poll_failed", zap.Error(err))
		}
	}
}

// PollOnce は1回分の取得と取り込みを行い、取り込んだ（未処理だった）件数を返します
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	started := time.Now().UTC()
	processed, fetched, groupID, lastID, err := p.poll(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.LastRun = &started
	p.status.LastFetched = fetched
	p.status.LastProcessed = processed
	p.status.TotalProcessed += processed
	if groupID != "" {
		p.status.GroupID = groupID
	}
	if lastID != "" {
		p.status.LastMessageID = lastID
	}
	if err != nil {
		p.status.LastError = err.Error()
		return processed, err
	}
	p.status.LastError = ""
	return processed, nil
}

func (p *Poller) poll(ctx context.Context) (processed, fetched int, groupID, lastID string, err error) {
	groupID, err = p.source.FindGroupID(ctx, p.groupName)
	if err != nil {
		return 0, 0, "", "", fmt.Errorf("poller: グループID取得失敗: %w", err)
	}

	msgs, err := p.source.ListMessages(ctx, groupID, p.limit)
	if err != nil {
		return 0, 0, groupID, "", fmt.Errorf("poller: メッセージ取得失敗: %w", err)
	}

	var events []service.MessageEvent
	var ids []string
	var newest int64
	for _, m := range msgs {
		if m.ID == "" || p.isSeen(m.ID) {
			continue
		}
		// 解決済みのチャットから取得したメッセージなので、部分一致で見つけた
		// グループでも取り込み対象として扱う
		m.ChatName = p.groupName
		events = append(events, service.EventFromWhapi(m))
		ids = append(ids, m.ID)
		if m.Timestamp >= newest {
			newest = m.Timestamp
			lastID = m.ID
		}
	}

	if len(events) == 0 {
		p.logger.Debug("poll_no_new_messages", zap.Int("fetched", len(msgs)))
		return 0, len(msgs), groupID, "", nil
	}

	if err := p.ingest.HandleBatch(ctx, events); err != nil {
		// 次回に再取得させるため処理済みにしない
		return 0, len(msgs), groupID, "", fmt.Errorf("poller: 取り込み失敗: %w", err)
	}
	p.remember(ids)

	p.logger.Info("poll_completed",
		zap.Int("fetched", len(msgs)),
		zap.Int("processed", len(events)))
	return len(events), len(msgs), groupID, lastID, nil
}

// Status は現在の稼働状況を返します
func (p *Poller) Status() PollerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) isSeen(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[id]
	return ok
}

func (p *Poller) remember(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		if _, ok := p.seen[id]; ok {
			continue
		}
		p.seen[id] = struct{}{}
		p.seenOrder = append(p.seenOrder, id)
	}
	for len(p.seenOrder) > maxRememberedIDs {
		delete(p.seen, p.seenOrder[0])
		p.seenOrder = p.seenOrder[1:]
	}
}
