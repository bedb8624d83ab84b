package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"hackathon-gallery/project/domain"
	"hackathon-gallery/project/dto"

	"go.uber.org/zap"
)

// 1リクエストあたりの処理時間上限
const requestTimeout = 30 * time.Second

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor はドメインエラーを HTTP ステータスに対応付けます
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err), zap.Int("status", status))
	} else {
		logger.Warn(msg, zap.Error(err), zap.Int("status", status))
	}
	writeJSON(w, status, dto.ErrorResponse{Error: http.StatusText(status)})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
