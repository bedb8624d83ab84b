package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"hackathon-gallery/project/domain"
	"hackathon-gallery/project/dto"
	"hackathon-gallery/project/infrastructure/config"
	"hackathon-gallery/project/infrastructure/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const targetGroup = "HackTillDawn Final Participants"

const fullSubmission = `Project Name: DawnBot
Description: Wakes your team up
URL: dawnbot.dev
Team Name: Night Owls
Team Members: Ana, Ben`

type countingMetrics struct {
	counts map[string]int
}

func (m *countingMetrics) ObserveMessage(messageType, outcome string) {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[messageType+"/"+outcome]++
}

func newTestIngest(t *testing.T) (IngestService, *store.MemoryRepo, *countingMetrics) {
	t.Helper()
	repo := store.NewMemoryRepo()
	m := &countingMetrics{}
	return NewIngestService(config.Defaults(), NewReconciler(repo, nil), m, nil), repo, m
}

func textEvent(id, text string, ts time.Time) MessageEvent {
	return MessageEvent{
		ID: id, Type: MessageTypeText, Text: text, Sender: "Ana",
		ChatID: "333@g.us", ChatName: targetGroup, Timestamp: ts,
	}
}

func reactionEvent(id, target, emoji string, ts time.Time) MessageEvent {
	return MessageEvent{
		ID: id, Type: MessageTypeReaction, Sender: "Ben", ChatID: "333@g.us", ChatName: targetGroup,
		Timestamp: ts, ReactionTarget: target, ReactionEmoji: emoji,
	}
}

func TestIngest_Dispatch(t *testing.T) {
	ctx := context.Background()
	svc, repo, m := newTestIngest(t)

	outcome, err := svc.HandleMessage(ctx, ptr(textEvent("m1", fullSubmission, t0)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProjectUpserted, outcome)

	outcome, err = svc.HandleMessage(ctx, ptr(reactionEvent("x1", "m1", "🔥", t0.Add(time.Second))))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReactionAdded, outcome)

	reply := textEvent("p1", "congrats!", t0.Add(2*time.Second))
	reply.QuotedMessageID = "m1"
	outcome, err = svc.HandleMessage(ctx, &reply)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplyAttached, outcome)

	outcome, err = svc.HandleMessage(ctx, ptr(textEvent("c1", "see you at breakfast", t0)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	outcome, err = svc.HandleMessage(ctx, ptr(textEvent("c2", "Name: half a project", t0)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeParseFailed, outcome)

	p, err := repo.FindByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, p.Reactions, 1)
	assert.Len(t, p.Replies, 1)
	assert.Equal(t, 1, m.counts["text/project_upserted"])
	assert.Equal(t, 1, m.counts["reaction/reaction_attached"])
	assert.Equal(t, 1, m.counts["text/parse_failed"])
}

func TestIngest_OtherGroupIgnored(t *testing.T) {
	svc, repo, _ := newTestIngest(t)
	ev := textEvent("m1", fullSubmission, t0)
	ev.ChatName = "Random"

	outcome, err := svc.HandleMessage(context.Background(), &ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	all, _ := repo.AllProjects(context.Background())
	assert.Empty(t, all)
}

func TestIngest_ReactionVariants(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestIngest(t)
	_, err := svc.HandleMessage(ctx, ptr(textEvent("m1", fullSubmission, t0)))
	require.NoError(t, err)

	// 空の絵文字は取り消し扱い
	outcome, err := svc.HandleMessage(ctx, ptr(reactionEvent("x1", "m1", "", t0)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	action := EventFromWhapi(dto.WhapiMessage{
		ID: "a1", Type: "action", ChatName: targetGroup, FromName: "Cy", Timestamp: t0.Unix() + 5,
		Action: &dto.WhapiAction{Type: "reaction", Target: "m1", Emoji: "👏"},
	})
	outcome, err = svc.HandleMessage(ctx, &action)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReactionAdded, outcome)

	outcome, err = svc.HandleMessage(ctx, ptr(reactionEvent("x2", "ghost", "👍", t0)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrphaned, outcome)

	revoke := MessageEvent{ID: "s1", Type: MessageTypeSystem, Subtype: "revoke", ChatName: targetGroup}
	outcome, err = svc.HandleMessage(ctx, &revoke)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	p, err := repo.FindByMessageID(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, p.Reactions, 1)
	assert.Equal(t, "👏", p.Reactions[0].Emoji)
	assert.Equal(t, "Cy", p.Reactions[0].Sender)
}

func TestIngest_BatchSortsByTimestamp(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestIngest(t)

	// リアクションが先に届いても作品投稿の後に処理される
	err := svc.HandleBatch(ctx, []MessageEvent{
		reactionEvent("x1", "m1", "🔥", t0.Add(time.Minute)),
		textEvent("m1", fullSubmission, t0),
	})
	require.NoError(t, err)

	p, err := repo.FindByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, p.Reactions, 1)
}

type unavailableRepo struct {
	*store.MemoryRepo
}

func (unavailableRepo) FindByMessageID(ctx context.Context, id string) (*domain.ProjectRecord, error) {
	return nil, fmt.Errorf("down: %w", domain.ErrStoreUnavailable)
}

func TestIngest_BatchStopsOnStoreUnavailable(t *testing.T) {
	m := &countingMetrics{}
	svc := NewIngestService(config.Defaults(), NewReconciler(unavailableRepo{store.NewMemoryRepo()}, nil), m, nil)

	err := svc.HandleBatch(context.Background(), []MessageEvent{
		textEvent("m1", fullSubmission, t0),
		textEvent("m2", fullSubmission, t0.Add(time.Second)),
	})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 1, m.counts["text/failed"])
}

func TestIngest_RelaxedTeamFields(t *testing.T) {
	cfg := config.Defaults()
	cfg.RequireTeamFields = false
	repo := store.NewMemoryRepo()
	svc := NewIngestService(cfg, NewReconciler(repo, nil), nil, nil)

	outcome, err := svc.HandleMessage(context.Background(), ptr(textEvent("m1", "Name: Foo\nDescription: Bar\nURL: example.com", t0)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProjectUpserted, outcome)

	p, err := repo.FindByMessageID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", p.URL)
	assert.Empty(t, p.TeamNames)
}

func TestEventFromWhapi(t *testing.T) {
	ev := EventFromWhapi(dto.WhapiMessage{
		ID: "m9", Type: "text", ChatID: "333@g.us", ChatName: targetGroup, Timestamp: 1700000000,
		Text:    &dto.WhapiText{Body: "hello"},
		Context: &dto.WhapiContext{QuotedMessage: &dto.WhapiQuotedMessage{ID: "m1"}},
	})
	assert.Equal(t, UnknownSender, ev.Sender)
	assert.Equal(t, "hello", ev.Text)
	assert.Equal(t, "m1", ev.QuotedMessageID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Timestamp)

	ev = EventFromWhapi(dto.WhapiMessage{ID: "r1", Type: "reaction", MessageID: "m1", From: "4477", Reaction: &dto.WhapiReaction{Emoji: "🎉"}})
	assert.Equal(t, "m1", ev.ReactionTarget)
	assert.Equal(t, "🎉", ev.ReactionEmoji)
	assert.Equal(t, "4477", ev.Sender)

	ev = EventFromWhapi(dto.WhapiMessage{ID: "r2", Type: "reaction", Reaction: &dto.WhapiReaction{ID: "m5", Emoji: "👍"}})
	assert.Equal(t, "m5", ev.ReactionTarget)
}

func ptr(ev MessageEvent) *MessageEvent { return &ev }
