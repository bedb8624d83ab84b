package handler

import (
	"net/http"

	"hackathon-gallery/project/infrastructure/tasks"
)

// PollerStatusProvider はポーラーの稼働状況を返します
type PollerStatusProvider interface {
	Status() tasks.PollerStatus
}

// FetcherStatusHandler は GET /api/fetcher/status です
// ポーラーが無効な場合は enabled=false だけを返します
type FetcherStatusHandler struct {
	poller PollerStatusProvider
}

// NewFetcherStatusHandler はポーラー状況ハンドラーを作成します（poller は nil 可）
func NewFetcherStatusHandler(poller PollerStatusProvider) *FetcherStatusHandler {
	return &FetcherStatusHandler{poller: poller}
}

// ServeHTTP はポーラーの状況を JSON で返します
func (h *FetcherStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		writeJSON(w, http.StatusOK, tasks.PollerStatus{})
		return
	}
	writeJSON(w, http.StatusOK, h.poller.Status())
}
