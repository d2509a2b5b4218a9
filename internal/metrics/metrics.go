// Package metrics provides Prometheus metrics for the mount daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rmkmount_remote_calls_total",
			Help: "Total remote transport calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	remoteBytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rmkmount_remote_bytes_read_total",
			Help: "Total content bytes read from the device",
		},
	)

	listingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rmkmount_listing_duration_seconds",
			Help:    "Time to synchronize one directory with the device",
			Buckets: prometheus.DefBuckets,
		},
	)

	nodeTableSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rmkmount_node_table_size",
			Help: "Number of nodes in the inode table",
		},
	)

	openHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rmkmount_open_handles",
			Help: "Currently open file handles",
		},
	)
)

// RemoteCall records one transport call.
func RemoteCall(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	remoteCallsTotal.WithLabelValues(op, outcome).Inc()
}

// BytesRead records content bytes fetched from the device.
func BytesRead(n int) {
	remoteBytesRead.Add(float64(n))
}

// ObserveListing records the duration of a directory resync.
func ObserveListing(seconds float64) {
	listingDuration.Observe(seconds)
}

// SetNodeCount updates the inode table size gauge.
func SetNodeCount(n int) {
	nodeTableSize.Set(float64(n))
}

// HandleOpened increments the open-handle gauge.
func HandleOpened() {
	openHandles.Inc()
}

// HandleReleased decrements the open-handle gauge.
func HandleReleased() {
	openHandles.Dec()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
