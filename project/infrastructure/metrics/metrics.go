package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Ingest は取り込み結果を Prometheus に記録します（service.MetricsPort の実装）
type Ingest struct {
	messages *prometheus.CounterVec
}

// NewIngest はカウンタを作成して reg に登録します
func NewIngest(reg prometheus.Registerer) *Ingest {
	m := &Ingest{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "messages_total",
			Help:      "Processed chat messages by type and outcome.",
		}, []string{"type", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.messages)
	}
	return m
}

// ObserveMessage はメッセージ種別ごとの取り込み結果を1件加算します
func (m *Ingest) ObserveMessage(messageType, outcome string) {
	if messageType == "" {
		messageType = "unknown"
	}
	m.messages.WithLabelValues(messageType, outcome).Inc()
}
