package handler

import (
	"context"
	"net/http"
	"time"

	"hackathon-gallery/project/dto"
	"hackathon-gallery/project/service"

	"go.uber.org/zap"
)

// StoreInfo は使用中のストア名を返します
type StoreInfo interface {
	Name() string
}

// HealthHandler は稼働状況を返します
type HealthHandler struct {
	gallery service.GalleryService
	store   StoreInfo
	version string
	started time.Time
	logger  *zap.Logger
}

// NewHealthHandler はヘルスチェックハンドラーを作成します
func NewHealthHandler(gallery service.GalleryService, store StoreInfo, version string, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		gallery: gallery,
		store:   store,
		version: version,
		started: time.Now(),
		logger:  logger,
	}
}

// ServeHTTP は GET /api/health です。ストアに到達できない場合は 503 を返します
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := dto.HealthResponse{
		Status:    "healthy",
		Timestamp: formatTime(time.Now()),
		Uptime:    time.Since(h.started).Seconds(),
		Version:   h.version,
	}
	if h.store != nil {
		resp.Store = h.store.Name()
	}

	_, summary, err := h.gallery.ListProjects(ctx)
	if err != nil {
		h.logger.Warn("health_check_failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		writeJSON(w, statusFor(err), resp)
		return
	}

	resp.Projects = &dto.HealthProjects{Count: summary.TotalCount}
	if summary.LastUpdated != nil {
		s := formatTime(*summary.LastUpdated)
		resp.Projects.LastUpdated = &s
	}
	writeJSON(w, http.StatusOK, resp)
}
