package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hackathon-gallery/project/domain"
	"hackathon-gallery/project/dto"
	"hackathon-gallery/project/infrastructure/config"
	"hackathon-gallery/project/infrastructure/store"
	"hackathon-gallery/project/infrastructure/tasks"
	"hackathon-gallery/project/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const submission = `Project Name: DawnBot
Description: Wakes your team up
URL: dawnbot.dev
Team Name: Night Owls
Team Members: Ana, Ben`

type testApp struct {
	repo     *store.MemoryRepo
	webhook  http.Handler
	projects http.Handler
	health   http.Handler
}

type staticStoreName string

func (s staticStoreName) Name() string { return string(s) }

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := config.Defaults()
	repo := store.NewMemoryRepo()
	rc := service.NewReconciler(repo, nil)
	ingest := service.NewIngestService(cfg, rc, nil, nil)
	gallery := service.NewGalleryService(repo)
	return &testApp{
		repo:     repo,
		webhook:  NewWebhookHandler(ingest, nil),
		projects: NewProjectsHandler(gallery, nil),
		health:   NewHealthHandler(gallery, staticStoreName("memory"), "1.2.3", nil),
	}
}

func textMessage(id, body string, ts int64) map[string]any {
	return map[string]any{
		"id":        id,
		"type":      "text",
		"chat_id":   "333@g.us",
		"chat_name": "HackTillDawn Final Participants",
		"from_name": "Ana",
		"timestamp": ts,
		"text":      map[string]any{"body": body},
	}
}

func postJSON(t *testing.T, h http.Handler, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(string(b)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getProjects(t *testing.T, h http.Handler) dto.ProjectListResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.ProjectListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWebhook_BatchSubmissionReactionAndReply(t *testing.T) {
	app := newTestApp(t)

	// 到着順は逆でも送信時刻順に処理される
	reaction := map[string]any{
		"id": "r1", "type": "reaction", "chat_id": "333@g.us",
		"chat_name": "HackTillDawn Final Participants", "from_name": "Ben", "timestamp": 1700000100,
		"reaction": map[string]any{"id": "m1", "emoji": "🔥"},
	}
	reply := textMessage("p1", "love it", 1700000200)
	reply["context"] = map[string]any{"quoted_id": "m1"}

	rec := postJSON(t, app.webhook, map[string]any{
		"messages": []any{reply, reaction, textMessage("m1", submission, 1700000000)},
		"event":    map[string]any{"type": "messages", "event": "post"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := getProjects(t, app.projects)
	require.Equal(t, 1, resp.TotalCount)
	require.NotNil(t, resp.LastUpdated)

	p := resp.Projects[0]
	assert.Equal(t, "DawnBot", p.Name)
	assert.Equal(t, "https://dawnbot.dev", p.URL)
	assert.Equal(t, "Night Owls", p.TeamName)
	assert.Equal(t, "Ana, Ben", p.TeamMembers)
	assert.Equal(t, "m1", p.MessageID)
	assert.Equal(t, []string{"m1"}, p.RelatedMessageIDs)
	assert.Equal(t, map[string]int{"🔥": 1}, p.ReactionCounts)
	assert.Equal(t, 1, p.TotalReactions)
	assert.Equal(t, 1, p.TotalReplies)
	assert.Equal(t, "love it", p.Replies[0].Text)
	assert.Equal(t, "2023-11-14T22:13:20Z", p.Timestamp)
}

func TestWebhook_SingleMessageBody(t *testing.T) {
	app := newTestApp(t)

	rec := postJSON(t, app.webhook, textMessage("m1", submission, 1700000000))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, getProjects(t, app.projects).TotalCount)
}

func TestWebhook_NonMessageEventIgnored(t *testing.T) {
	app := newTestApp(t)

	rec := postJSON(t, app.webhook, map[string]any{
		"messages": []any{textMessage("m1", submission, 1700000000)},
		"event":    map[string]any{"type": "chats", "event": "patch"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, getProjects(t, app.projects).TotalCount)
}

func TestWebhook_BadRequests(t *testing.T) {
	app := newTestApp(t)

	rec := httptest.NewRecorder()
	app.webhook.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	app.webhook.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type unavailableIngest struct{}

func (unavailableIngest) HandleMessage(ctx context.Context, ev *service.MessageEvent) (string, error) {
	return service.OutcomeFailed, domain.ErrStoreUnavailable
}

func (unavailableIngest) HandleBatch(ctx context.Context, events []service.MessageEvent) error {
	return fmt.Errorf("HandleBatch: %w", domain.ErrStoreUnavailable)
}

func TestWebhook_StoreUnavailableReturns503(t *testing.T) {
	h := NewWebhookHandler(unavailableIngest{}, nil)
	rec := postJSON(t, h, textMessage("m1", submission, 1700000000))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProjects_EmptyGallery(t *testing.T) {
	app := newTestApp(t)

	rec := httptest.NewRecorder()
	app.projects.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"projects":[],"totalCount":0,"lastUpdated":null}`, rec.Body.String())
}

type failingRepo struct {
	*store.MemoryRepo
}

func (failingRepo) AllProjects(ctx context.Context) ([]*domain.ProjectRecord, error) {
	return nil, fmt.Errorf("down: %w", domain.ErrStoreUnavailable)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	postJSON(t, app.webhook, textMessage("m1", submission, 1700000000))

	rec := httptest.NewRecorder()
	app.health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "memory", resp.Store)
	require.NotNil(t, resp.Projects)
	assert.Equal(t, 1, resp.Projects.Count)

	h := NewHealthHandler(service.NewGalleryService(failingRepo{store.NewMemoryRepo()}), nil, "1.2.3", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unhealthy"`)
}

type fixedStatus tasks.PollerStatus

func (f fixedStatus) Status() tasks.PollerStatus { return tasks.PollerStatus(f) }

func TestFetcherStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	NewFetcherStatusHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fetcher/status", nil))
	assert.Contains(t, rec.Body.String(), `"enabled":false`)

	rec = httptest.NewRecorder()
	h := NewFetcherStatusHandler(fixedStatus{Enabled: true, Running: true, GroupID: "333@g.us", TotalProcessed: 4})
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fetcher/status", nil))

	var got tasks.PollerStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Running)
	assert.Equal(t, "333@g.us", got.GroupID)
	assert.Equal(t, 4, got.TotalProcessed)
}
