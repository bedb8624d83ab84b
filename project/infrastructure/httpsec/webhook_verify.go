package httpsec

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// 署名ヘッダ名（Whapi 形式と GitHub 互換形式の両方を受け付ける）
const (
	HeaderWhapiSignature = "X-Whapi-Signature"
	HeaderHubSignature   = "X-Hub-Signature-256"
)

// 1リクエストあたりの本文上限
const maxBodyBytes = 1 << 20

var (
	// ErrMissingSignature は署名ヘッダがない場合のエラー
	ErrMissingSignature = errors.New("signature missing")

	// ErrSignatureMismatch は署名が一致しない場合のエラー
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// VerifyWebhookSignature は Webhook 本文の HMAC-SHA256 署名を検証します
// 署名は16進文字列で、"sha256=" プレフィックスは省略可能です
func VerifyWebhookSignature(secret, signature string, body []byte) error {
	if secret == "" {
		return errors.New("webhook secret not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	given, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("invalid signature format: %w", err)
	}

	// 定時間比較（タイミング攻撃対策）
	if !hmac.Equal(given, computeSignature(secret, body)) {
		return ErrSignatureMismatch
	}
	return nil
}

// ComputeSignature は "sha256=<hex>" 形式の署名を計算します
func ComputeSignature(secret string, body []byte) string {
	return "sha256=" + hex.EncodeToString(computeSignature(secret, body))
}

func computeSignature(secret string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}

// SignatureFromRequest は署名ヘッダの値を取り出します
func SignatureFromRequest(r *http.Request) string {
	if v := r.Header.Get(HeaderWhapiSignature); v != "" {
		return v
	}
	return r.Header.Get(HeaderHubSignature)
}

// RequireSignature は署名検証に通ったリクエストだけを next に渡すミドルウェアです
// 検証後の本文は next で再度読めるように差し戻します
func RequireSignature(secret string, logger *zap.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "リクエスト本体の読み込み失敗", http.StatusBadRequest)
			return
		}
		r.Body.Close()

		if err := VerifyWebhookSignature(secret, SignatureFromRequest(r), body); err != nil {
			logger.Warn("webhook_signature_rejected",
				zap.String("remote", r.RemoteAddr),
				zap.Error(err))
			writeJSONError(w, http.StatusUnauthorized, "署名検証失敗")
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}
