package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Head          uint64
	AppendedBytes uint64
	CacheHits     uint64
	CacheMisses   uint64
}

func (s *Store[T, D]) Stats() Stats {
	s.lock.Lock()
	head := s.head
	s.lock.Unlock()
	return Stats{
		Head:          head,
		AppendedBytes: s.appendedBytes.Load(),
		CacheHits:     s.cacheHits.Load(),
		CacheMisses:   s.cacheMisses.Load(),
	}
}

func (s *Store[T, D]) DBMetrics() *pebble.Metrics {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	return s.db.Metrics()
}

// MetricSource decouples the collector from the store's type parameters.
type MetricSource interface {
	Stats() Stats
	DBMetrics() *pebble.Metrics
}

// Collector exports store and pebble metrics to prometheus.
type Collector struct {
	src MetricSource

	snapshots     *prometheus.Desc
	appendedBytes *prometheus.Desc
	cacheHits     *prometheus.Desc
	cacheMisses   *prometheus.Desc

	compactionCount *prometheus.Desc
	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
}

func NewCollector(src MetricSource) *Collector {
	return &Collector{
		src: src,

		snapshots: prometheus.NewDesc(
			"deltoid_store_snapshots",
			"Number of snapshots in the store",
			nil, nil,
		),
		appendedBytes: prometheus.NewDesc(
			"deltoid_store_appended_bytes_total",
			"Total envelope bytes appended",
			nil, nil,
		),
		cacheHits: prometheus.NewDesc(
			"deltoid_store_cache_hits_total",
			"Snapshot cache hits",
			nil, nil,
		),
		cacheMisses: prometheus.NewDesc(
			"deltoid_store_cache_misses_total",
			"Snapshot cache misses",
			nil, nil,
		),

		compactionCount: prometheus.NewDesc(
			"deltoid_pebble_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"deltoid_pebble_memtable_size_bytes",
			"Current memtable size",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"deltoid_pebble_memtable_count",
			"Number of memtables",
			nil, nil,
		),
		walFiles: prometheus.NewDesc(
			"deltoid_pebble_wal_files",
			"Number of live WAL files",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"deltoid_pebble_wal_size_bytes",
			"Current WAL size",
			nil, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"deltoid_pebble_wal_bytes_written_total",
			"Total bytes written to the WAL",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.snapshots
	ch <- c.appendedBytes
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.compactionCount
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walFiles
	ch <- c.walSize
	ch <- c.walBytesWritten
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.snapshots, prometheus.GaugeValue, float64(stats.Head))
	ch <- prometheus.MustNewConstMetric(c.appendedBytes, prometheus.CounterValue, float64(stats.AppendedBytes))
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(stats.CacheHits))
	ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(stats.CacheMisses))

	m := c.src.DBMetrics()
	if m == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.compactionCount, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(c.walFiles, prometheus.GaugeValue, float64(m.WAL.Files))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.walBytesWritten, prometheus.CounterValue, float64(m.WAL.BytesWritten))
}
