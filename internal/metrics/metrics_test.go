package metrics

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePage("servers", "refresh")
		m.ObserveLoadError("servers", "offline")
		m.SetPending(3)
		m.ObserveDelivery("confirmed")
		m.ObserveAdFetch("banner1", "ok")
		m.ObserveAdGet("banner1", "hit")
	})
}

func TestInstrumentsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObservePage("servers", "append")
	m.ObservePage("servers", "append")
	m.SetPending(4)
	m.ObserveAdGet("banner1", "miss")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pages.WithLabelValues("servers", "append")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.adGets.WithLabelValues("banner1", "miss")))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveDelivery("confirmed")
	m.SetPending(2)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `wipewatch_outbox_deliveries_total{result="confirmed"} 1`)
	assert.Contains(t, string(body), "wipewatch_outbox_pending_operations 2")
}

func TestWriteSummary(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveAdGet("banner1", "hit")
	m.ObserveAdGet("banner1", "hit")
	m.SetPending(1)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, reg))
	assert.Equal(t,
		"wipewatch_adcache_gets_total{result=\"hit\",slot=\"banner1\"} 2\n"+
			"wipewatch_outbox_pending_operations 1\n",
		buf.String())
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", prometheus.NewRegistry(), nil) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
