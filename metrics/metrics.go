// Package metrics exposes pacsnet's Prometheus instrumentation: DIMSE
// operation counters the service handlers report into directly, plus
// gauges a background collector refreshes from the server/archive/index.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector pacsnet registers.
type Metrics struct {
	DIMSEOperationsTotal *prometheus.CounterVec
	DIMSEOperationErrors *prometheus.CounterVec
	ActiveAssociations   prometheus.Gauge
	TotalAssociations    prometheus.Gauge
	RejectedAssociations prometheus.Gauge
	ArchivedInstances    prometheus.Gauge
}

// New registers and returns pacsnet's metric collectors against registry.
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		DIMSEOperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pacsnet",
			Name:      "dimse_operations_total",
			Help:      "Total DIMSE operations handled, by command.",
		}, []string{"command"}),
		DIMSEOperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pacsnet",
			Name:      "dimse_operation_errors_total",
			Help:      "Total DIMSE operations that ended in a failure status, by command.",
		}, []string{"command"}),
		ActiveAssociations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pacsnet",
			Name:      "active_associations",
			Help:      "Currently open DICOM associations.",
		}),
		TotalAssociations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pacsnet",
			Name:      "associations_total",
			Help:      "Associations accepted since startup.",
		}),
		RejectedAssociations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pacsnet",
			Name:      "associations_rejected_total",
			Help:      "Associations rejected since startup.",
		}),
		ArchivedInstances: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pacsnet",
			Name:      "archived_instances",
			Help:      "Instances currently known to the metadata index.",
		}),
	}
}

// Handler serves the registry in the Prometheus text exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ServerStats is the subset of server.Statistics the collector reads.
type ServerStats struct {
	ActiveAssociations   int64
	TotalAssociations    int64
	RejectedAssociations int64
}

// CollectLoop periodically refreshes the association gauges from
// statsFn and the archive gauge from instanceCountFn, until ctx is done.
func (m *Metrics) CollectLoop(ctx context.Context, interval time.Duration, statsFn func() ServerStats, instanceCountFn func() int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	collect := func() {
		stats := statsFn()
		m.ActiveAssociations.Set(float64(stats.ActiveAssociations))
		m.TotalAssociations.Set(float64(stats.TotalAssociations))
		m.RejectedAssociations.Set(float64(stats.RejectedAssociations))
		m.ArchivedInstances.Set(float64(instanceCountFn()))
	}

	collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collect()
		}
	}
}
