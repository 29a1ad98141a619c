package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// LiveStats provides the collector access to in-process state.
type LiveStats interface {
	ActiveWatchers() int
	CatalogSize() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool  *pgxpool.Pool
	stats LiveStats

	activeWatchers  *prometheus.Desc
	catalogPackages *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// pool and stats may be nil (metrics will report 0).
func NewCollector(pool *pgxpool.Pool, stats LiveStats) *Collector {
	return &Collector{
		pool:  pool,
		stats: stats,
		activeWatchers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "transcript_watchers_active"),
			"Current number of open transcript WebSocket streams.",
			nil, nil,
		),
		catalogPackages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "catalog_packages"),
			"Number of minute packages currently on sale.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeWatchers
	ch <- c.catalogPackages
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var watchers, packages float64
	if c.stats != nil {
		watchers = float64(c.stats.ActiveWatchers())
		packages = float64(c.stats.CatalogSize())
	}
	ch <- prometheus.MustNewConstMetric(c.activeWatchers, prometheus.GaugeValue, watchers)
	ch <- prometheus.MustNewConstMetric(c.catalogPackages, prometheus.GaugeValue, packages)

	var total, acquired, idle float64
	if c.pool != nil {
		stat := c.pool.Stat()
		total = float64(stat.TotalConns())
		acquired = float64(stat.AcquiredConns())
		idle = float64(stat.IdleConns())
	}
	ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, total)
	ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, acquired)
	ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, idle)
}
