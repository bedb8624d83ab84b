package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"hackathon-gallery/project/dto"
	"hackathon-gallery/project/service"

	"go.uber.org/zap"
)

// WebhookHandler は Whapi.Cloud から届くメッセージ Webhook を処理します
// 署名検証は前段の httpsec.RequireSignature で済んでいる前提です
type WebhookHandler struct {
	ingest service.IngestService
	logger *zap.Logger
}

// NewWebhookHandler は Webhook ハンドラーを作成します
func NewWebhookHandler(ingest service.IngestService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{ingest: ingest, logger: logger}
}

type webhookResponse struct {
	Status   string `json:"status"`
	Received int    `json:"received"`
}

// ServeHTTP は Webhook 受信エンドポイントです
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, dto.ErrorResponse{Error: "Method not allowed"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "リクエスト本体の読み込み失敗"})
		return
	}
	defer r.Body.Close()

	messages, ok := decodeWebhook(body)
	if !ok {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "JSON パース失敗"})
		return
	}

	events := make([]service.MessageEvent, 0, len(messages))
	for _, m := range messages {
		events = append(events, service.EventFromWhapi(m))
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.ingest.HandleBatch(ctx, events); err != nil {
		// 503 を返して Whapi 側に再送させる
		writeError(w, h.logger, "webhook_ingest_failed", err)
		return
	}

	h.logger.Debug("webhook_processed", zap.Int("messages", len(events)))
	writeJSON(w, http.StatusOK, webhookResponse{Status: "ok", Received: len(events)})
}

// decodeWebhook は {"messages":[...]} 形式と、単一メッセージの本文の両方を受け付けます
// messages 以外のイベント（チャット更新など）は空として扱います
func decodeWebhook(body []byte) ([]dto.WhapiMessage, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, false
	}

	if _, isBatch := probe["messages"]; isBatch {
		var req dto.WhapiWebhookRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, false
		}
		if req.Event != nil && req.Event.Type != "" && req.Event.Type != "messages" {
			return nil, true
		}
		return req.Messages, true
	}

	if _, isMessage := probe["id"]; isMessage {
		var m dto.WhapiMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, false
		}
		return []dto.WhapiMessage{m}, true
	}
	return nil, true
}
