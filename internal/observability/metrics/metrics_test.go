package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCreation("book", "created")
	m.ObserveCreation("book", "created")
	m.ObserveCreation("book", "vetoed")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CreationsTotal.WithLabelValues("book", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CreationsTotal.WithLabelValues("book", "vetoed")))

	m.ObserveLoad(nil)
	m.ObserveLoad(errors.New("bad"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues(ResultError)))

	m.ObserveSave(10*time.Millisecond, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SavesTotal.WithLabelValues(ResultSuccess)))

	m.SetCounts(4, 3)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Shopkeepers))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveObjects))

	m.AddRespawns(0)
	m.AddRespawns(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Respawns))

	m.FeedClientDelta(1)
	m.FeedClientDelta(1)
	m.FeedClientDelta(-1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedClients))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCreation("book", "created")
		m.ObserveLoad(nil)
		m.ObserveSave(time.Second, nil)
		m.SetCounts(1, 1)
		m.AddRespawns(1)
		m.FeedClientDelta(1)
	})
}
