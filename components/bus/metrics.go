package bus

import (
	"github.com/prometheus/client_golang/prometheus"

	"go.viam.com/tinywire/twi"
)

var (
	transfersDesc = prometheus.NewDesc(
		"tinywire_transfers_total",
		"Transactions handed to the transport.",
		[]string{"bus"}, nil,
	)
	failuresDesc = prometheus.NewDesc(
		"tinywire_transfer_failures_total",
		"Transactions the transport reported as failed.",
		[]string{"bus"}, nil,
	)
	droppedDesc = prometheus.NewDesc(
		"tinywire_dropped_bytes_total",
		"Bytes discarded because the transfer buffer was full.",
		[]string{"bus"}, nil,
	)
)

// Collector exports the running totals of a Master as Prometheus counters.
type Collector struct {
	name   string
	master *twi.Master
}

// NewCollector returns a collector for master, labelled with the bus name.
func NewCollector(name string, master *twi.Master) *Collector {
	return &Collector{name: name, master: master}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- transfersDesc
	ch <- failuresDesc
	ch <- droppedDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.master.Stats()
	ch <- prometheus.MustNewConstMetric(transfersDesc, prometheus.CounterValue, float64(stats.Transfers), c.name)
	ch <- prometheus.MustNewConstMetric(failuresDesc, prometheus.CounterValue, float64(stats.Failures), c.name)
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(stats.Dropped), c.name)
}
