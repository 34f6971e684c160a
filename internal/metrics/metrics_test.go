package metrics

import (
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

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.WebhookUpdate("payment_success")
	c.WebhookUpdate("payment_success")
	c.Settlement("duplicate")
	c.Redemption("ok")
	c.ResolveRejected("stamp_revoked")
	c.UpstreamCall("sendMessage", "timeout", 150*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.webhookUpdates.WithLabelValues("payment_success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.settlements.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.redemptions.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resolveRejected.WithLabelValues("stamp_revoked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.upstreamCalls.WithLabelValues("sendMessage", "timeout")))
}

func TestHandler_Exposes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.Settlement("ok")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `botgate_settlements_total{outcome="ok"} 1`)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NotPanics(t, func() {
		r.WebhookUpdate("x")
		r.UpstreamCall("m", "ok", time.Second)
	})
}
