package secret

import (
	"context"
	"fmt"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Manager は Secret Manager から Webhook 署名鍵や Whapi トークンを取得するクライアントです
// 取得済みの値はプロセス内でキャッシュします
type Manager struct {
	client    *secretmanager.Client
	projectID string

	mu    sync.Mutex
	cache map[string]string
}

// NewManager は Secret Manager のマネージャーを初期化します
func NewManager(ctx context.Context, projectID string) (*Manager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secret manager: クライアント初期化失敗: %w", err)
	}

	return &Manager{
		client:    client,
		projectID: projectID,
		cache:     make(map[string]string),
	}, nil
}

// GetSecret は指定されたシークレットの最新版の値を取得します
// secretName には短い名前と "projects/..." 形式のリソース名のどちらも指定できます
func (m *Manager) GetSecret(ctx context.Context, secretName string) (string, error) {
	name := versionName(m.projectID, secretName)

	m.mu.Lock()
	if v, ok := m.cache[name]; ok {
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	result, err := m.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("secret manager: シークレット取得失敗 (name=%s): %w", secretName, err)
	}

	value, err := payloadValue(secretName, result.GetPayload().GetData())
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.cache[name] = value
	m.mu.Unlock()
	return value, nil
}

// Close は Secret Manager クライアントを閉じます
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// versionName はシークレットの最新版リソース名を返します
func versionName(projectID, secretName string) string {
	if strings.HasPrefix(secretName, "projects/") {
		if strings.Contains(secretName, "/versions/") {
			return secretName
		}
		return secretName + "/versions/latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretName)
}

// payloadValue は `echo` で登録された値の末尾改行などを取り除きます
func payloadValue(secretName string, data []byte) (string, error) {
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", fmt.Errorf("secret manager: シークレット値が空です (name=%s)", secretName)
	}
	return v, nil
}
