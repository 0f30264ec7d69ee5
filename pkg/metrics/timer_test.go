package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/cuemby/beacon/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first)
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_flush_duration_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"group"},
	)

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "regular")
	timer.ObserveDuration(vec.WithLabelValues("push_viewed"))

	assert.Equal(t, 2, testutil.CollectAndCount(vec))
}

type depthSource map[types.EventGroup]int

func (d depthSource) Count(group types.EventGroup) (int, error) {
	return d[group], nil
}

type failingSource struct{}

func (failingSource) Count(types.EventGroup) (int, error) {
	return 0, errors.New("database not open")
}

func TestCollectorSamplesQueueDepth(t *testing.T) {
	components = newRegistry()

	c := NewCollector(depthSource{types.GroupRegular: 7, types.GroupPushViewed: 2}, time.Minute)
	c.Collect()

	assert.Equal(t, 7.0, testutil.ToFloat64(QueueDepth.WithLabelValues("regular")))
	assert.Equal(t, 2.0, testutil.ToFloat64(QueueDepth.WithLabelValues("push_viewed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(QueueDepth.WithLabelValues("variables")))
	assert.True(t, components.states[ComponentStore].healthy)

	NewCollector(failingSource{}, time.Minute).Collect()
	assert.False(t, components.states[ComponentStore].healthy)
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(depthSource{types.GroupVariables: 1}, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	assert.Equal(t, 1.0, testutil.ToFloat64(QueueDepth.WithLabelValues("variables")))
}
