package service

import (
	"context"

	"hackathon-gallery/project/dto"
)

// MessageSourcePort はメッセージ取得元（Whapi など）のポートです
type MessageSourcePort interface {
	// FindGroupID はグループ名（部分一致）からチャットIDを取得します
	// 見つからない場合は domain.ErrNotFound を返します
	FindGroupID(ctx context.Context, groupName string) (string, error)

	// ListMessages は指定チャットの最新メッセージを新しい順に最大 limit 件取得します
	ListMessages(ctx context.Context, chatID string, limit int) ([]dto.WhapiMessage, error)
}

// MetricsPort は取り込み結果を記録するポートです
type MetricsPort interface {
	// ObserveMessage はメッセージ種別ごとの取り込み結果を記録します
	ObserveMessage(messageType, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveMessage(string, string) {}
