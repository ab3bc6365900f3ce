package metrics

import (
	"time"

	"github.com/solidb/solidb/pkg/cluster"
	"github.com/solidb/solidb/pkg/types"
)

// Collector periodically samples cluster state into the gauge metrics,
// the ticker-loop shape ported from the teacher's metrics collector
// (which polled the manager on the same cadence).
type Collector struct {
	state  *cluster.State
	oplog  interface{ LastSeq() uint64 }
	stopCh chan struct{}
}

// NewCollector builds a Collector over a cluster membership table and
// the local operation log.
func NewCollector(state *cluster.State, oplog interface{ LastSeq() uint64 }) *Collector {
	return &Collector{state: state, oplog: oplog, stopCh: make(chan struct{})}
}

// Start begins the sampling loop.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodeMetrics()
	if c.oplog != nil {
		OplogSeq.Set(float64(c.oplog.LastSeq()))
	}
}

func (c *Collector) collectNodeMetrics() {
	counts := make(map[types.NodeStatus]int)
	for _, m := range c.state.Members() {
		counts[m.Status]++
	}
	for status, n := range counts {
		NodesTotal.WithLabelValues(string(status)).Set(float64(n))
	}
}
