package metrics

import (
	"time"

	"github.com/cuemby/beacon/pkg/types"
)

// DepthSource reports how many events wait in each group
type DepthSource interface {
	Count(group types.EventGroup) (int, error)
}

// Collector samples queue depth and store health
type Collector struct {
	source   DepthSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source DepthSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples every group once
func (c *Collector) Collect() {
	for _, group := range types.AllGroups {
		n, err := c.source.Count(group)
		if err != nil {
			UpdateComponent(ComponentStore, false, err.Error())
			return
		}
		QueueDepth.WithLabelValues(string(group)).Set(float64(n))
	}
	UpdateComponent(ComponentStore, true, "")
}
