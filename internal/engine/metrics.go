package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meshsync/syncd/internal/session"
)

// metricsSet mirrors get_stats as process metrics (spec 6.2), labeled by
// sync_id so a single process running several SyncGroups still exposes
// one series per group rather than a single mashed-together total.
type metricsSet struct {
	groupsTotal    prometheus.Gauge
	fileCount      *prometheus.GaugeVec
	byteCount      *prometheus.GaugeVec
	sessionsTotal  *prometheus.CounterVec
	pathsTotal     *prometheus.CounterVec
	conflictsTotal *prometheus.CounterVec
}

func newMetricsSet() *metricsSet {
	return &metricsSet{
		groupsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "syncd",
			Subsystem: "engine",
			Name:      "groups_total",
		}),
		fileCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "syncd",
			Subsystem: "engine",
			Name:      "file_count",
		}, []string{"sync_id"}),
		byteCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "syncd",
			Subsystem: "engine",
			Name:      "byte_count",
		}, []string{"sync_id"}),
		sessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncd",
			Subsystem: "engine",
			Name:      "sessions_total",
		}, []string{"sync_id", "result"}),
		pathsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncd",
			Subsystem: "engine",
			Name:      "paths_synced_total",
		}, []string{"sync_id", "direction"}),
		conflictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncd",
			Subsystem: "engine",
			Name:      "conflicts_created_total",
		}, []string{"sync_id"}),
	}
}

func (m *metricsSet) groupAdded(syncID string) {
	m.groupsTotal.Inc()
	m.fileCount.WithLabelValues(syncID)
	m.byteCount.WithLabelValues(syncID)
}

func (m *metricsSet) setStats(syncID string, stats Stats) {
	m.fileCount.WithLabelValues(syncID).Set(float64(stats.FileCount))
	m.byteCount.WithLabelValues(syncID).Set(float64(stats.ByteCount))
}

func (m *metricsSet) observe(syncID string, ev session.Event) {
	switch ev.Kind {
	case session.PathSynced:
		m.pathsTotal.WithLabelValues(syncID, ev.Direction).Inc()
	case session.ConflictCreated:
		m.conflictsTotal.WithLabelValues(syncID).Inc()
	case session.SyncCompleted:
		m.sessionsTotal.WithLabelValues(syncID, "ok").Inc()
	case session.SyncFailed:
		m.sessionsTotal.WithLabelValues(syncID, "failed").Inc()
	}
}
