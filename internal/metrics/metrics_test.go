package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/lipa/internal/metrics"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveGateway("push", time.Now(), nil)
	m.ObserveGateway("push", time.Now(), errors.New("timeout"))
	m.Callback("succeeded")
	m.Callback("succeeded")

	count, err := testutil.GatherAndCount(reg, "lipa_gateway_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "lipa_callbacks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveGateway("auth", time.Now(), nil)
		m.Callback("unknown_reference")
		m.Transition("FAILED")
		m.Receipt(nil)
		m.Reconciled("still_pending")
	})
}
