package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/redolog-go/internal/storage/wal"
)

// StatusFunc reports the current log writer status.
type StatusFunc func() wal.Status

// WALCollector reads the writer status at scrape time.
type WALCollector struct {
	status StatusFunc

	segment *prometheus.Desc
	size    *prometheus.Desc
	records *prometheus.Desc
	age     *prometheus.Desc
	healthy *prometheus.Desc
}

// NewWALCollector creates a collector for the writer behind status.
func NewWALCollector(status StatusFunc) *WALCollector {
	return &WALCollector{
		status: status,
		segment: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "wal", "active_segment"),
			"Sequence number of the active segment", nil, nil),
		size: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "wal", "active_segment_bytes"),
			"Size of the active segment", nil, nil),
		records: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "wal", "active_segment_records"),
			"Records in the active segment", nil, nil),
		age: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "wal", "active_segment_created_timestamp_seconds"),
			"Creation time of the active segment", nil, nil),
		healthy: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "wal", "healthy"),
			"1 unless the writer has failed", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *WALCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.segment
	ch <- c.size
	ch <- c.records
	ch <- c.age
	ch <- c.healthy
}

// Collect implements prometheus.Collector.
func (c *WALCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.status()
	healthy := 1.0
	if st.Err != nil {
		healthy = 0
	}
	ch <- prometheus.MustNewConstMetric(c.segment, prometheus.GaugeValue, float64(st.Segment))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.SegmentSize))
	ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(st.SegmentRecords))
	ch <- prometheus.MustNewConstMetric(c.age, prometheus.GaugeValue, float64(st.SegmentCreated.Unix()))
	ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, healthy)
}
