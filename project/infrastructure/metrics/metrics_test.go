package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIngest_ObserveMessage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngest(reg)

	m.ObserveMessage("text", "project_upserted")
	m.ObserveMessage("text", "project_upserted")
	m.ObserveMessage("", "ignored")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues("text", "project_upserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("unknown", "ignored")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.messages))
}
