package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorefrontMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStorefrontMetrics(reg)
	m.ObserveCartOp("add", "ok")
	m.ObserveCartOp("add", "ok")
	m.ObserveCheckout("empty")
	m.ObserveFormSubmission("query", "invalid")
	m.ObserveNotification("sendgrid", "failed")
	m.ObserveRender("chats", "ok")
	m.ObserveChatReply("cancelled")

	totals := Summarize(reg)
	require.NotEmpty(t, totals)

	var addTotal float64
	for _, total := range totals {
		if total.Name == "healsmart_cart_operations_total" && total.Labels["op"] == "add" {
			addTotal = total.Value
		}
	}
	assert.Equal(t, 2.0, addTotal)
}

func TestDocstoreMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDocstoreMetrics(reg)
	m.ObserveOp("memory", "set", time.Now(), nil)
	m.ObserveOp("memory", "set", time.Now(), errors.New("boom"))
	m.ObserveDelivery("memory", "ok")

	totals := Summarize(reg)
	statuses := map[string]float64{}
	for _, total := range totals {
		if total.Name == "healsmart_docstore_operations_total" {
			statuses[total.Labels["status"]] = total.Value
		}
	}
	assert.Equal(t, map[string]float64{"ok": 1, "error": 1}, statuses)
}

func TestSummarizeSkipsForeignCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "other_total", Help: "x"})
	reg.MustRegister(other)
	other.Inc()

	assert.Empty(t, Summarize(reg))
}

func TestSummarizeSortsByNameThenLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStorefrontMetrics(reg)
	m.ObserveFormSubmission("query", "ok")
	m.ObserveFormSubmission("contact", "ok")
	m.ObserveCheckout("ok")

	totals := Summarize(reg)
	require.Len(t, totals, 3)
	assert.Equal(t, "healsmart_cart_checkouts_total", totals[0].Name)
	assert.Equal(t, "contact", totals[1].Labels["kind"])
	assert.Equal(t, "query", totals[2].Labels["kind"])
}

func TestMetricsNilSafe(t *testing.T) {
	var m *StorefrontMetrics
	m.ObserveCartOp("add", "ok")
	m.ObserveCheckout("ok")
	m.ObserveFormSubmission("query", "ok")
	m.ObserveNotification("stub", "sent")
	m.ObserveRender("chats", "ok")
	m.ObserveChatReply("sent")

	var d *DocstoreMetrics
	d.ObserveOp("memory", "get", time.Now(), nil)
	d.ObserveDelivery("memory", "ok")
}
