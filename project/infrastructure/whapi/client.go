package whapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"hackathon-gallery/project/domain"
	"hackathon-gallery/project/dto"

	"github.com/go-resty/resty/v2"
)

// Client は service.MessageSourcePort の Whapi.Cloud REST 実装です
type Client struct {
	http *resty.Client

	mu         sync.Mutex
	groupCache map[string]string // グループ名 -> チャットID
}

// NewClient は Whapi クライアントを初期化します
func NewClient(baseURL, token string) *Client {
	cli := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(token).
		SetHeader("Accept", "application/json").
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				// 解析エラーは再試行しても直らない
				return r == nil || r.RawResponse == nil
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &Client{
		http:       cli,
		groupCache: make(map[string]string),
	}
}

// FindGroupID はグループ名からチャットIDを取得します
// 完全一致を優先し、なければ部分一致した最初のグループを返します
func (c *Client) FindGroupID(ctx context.Context, groupName string) (string, error) {
	c.mu.Lock()
	if id, ok := c.groupCache[groupName]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var list dto.WhapiGroupList
	resp, err := c.http.R().
		// Content-Type が付いていないレスポンスも JSON として解析し、空の一覧と取り違えない
		ForceContentType("application/json").
		SetContext(ctx).
		SetQueryParam("count", "500").
		SetResult(&list).
		Get("/groups")
	if err != nil {
		return "", fmt.Errorf("whapi: グループ一覧取得失敗: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("whapi: グループ一覧 API エラー (status=%d): %s", resp.StatusCode(), resp.String())
	}

	id := matchGroup(list.Groups, groupName)
	if id == "" {
		return "", fmt.Errorf("whapi: グループが見つかりません (name=%s): %w", groupName, domain.ErrNotFound)
	}

	c.mu.Lock()
	c.groupCache[groupName] = id
	c.mu.Unlock()
	return id, nil
}

func matchGroup(groups []dto.WhapiGroup, name string) string {
	for _, g := range groups {
		if g.Name == name {
			return g.ID
		}
	}
	for _, g := range groups {
		if g.Name != "" && strings.Contains(g.Name, name) {
			return g.ID
		}
	}
	return ""
}

// ListMessages は指定チャットの最新メッセージを新しい順に最大 limit 件取得します
func (c *Client) ListMessages(ctx context.Context, chatID string, limit int) ([]dto.WhapiMessage, error) {
	var list dto.WhapiMessageList
	resp, err := c.http.R().
		// Content-Type が付いていないレスポンスも JSON として解析し、空の一覧と取り違えない
		ForceContentType("application/json").
		SetContext(ctx).
		SetPathParam("chatID", chatID).
		SetQueryParams(map[string]string{
			"count": strconv.Itoa(limit),
			"sort":  "desc",
		}).
		SetResult(&list).
		Get("/messages/list/{chatID}")
	if err != nil {
		return nil, fmt.Errorf("whapi: メッセージ取得失敗 (chat=%s): %w", chatID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("whapi: メッセージ一覧 API エラー (status=%d): %s", resp.StatusCode(), resp.String())
	}

	for i := range list.Messages {
		if list.Messages[i].ChatID == "" {
			list.Messages[i].ChatID = chatID
		}
	}
	return list.Messages, nil
}
