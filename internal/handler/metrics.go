package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/chirp/chirp/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "chirp_permalink_cache_hits_total %d\n", snap.PermalinkCacheHits)
	writeMetric(w, "chirp_permalink_cache_misses_total %d\n", snap.PermalinkCacheMisses)
	writeMetric(w, "chirp_permalink_duration_seconds_count %d\n", snap.PermalinkDurationCount)
	writeMetric(w, "chirp_permalink_duration_seconds_sum %.6f\n", float64(snap.PermalinkDurationTotalNs)/1e9)

	writeMetric(w, "chirp_tweets_created_total %d\n", snap.TweetsCreated)
	writeMetric(w, "chirp_tweets_updated_total %d\n", snap.TweetsUpdated)
	writeMetric(w, "chirp_tweets_deleted_total %d\n", snap.TweetsDeleted)

	writeLabeledCounters(w, "chirp_policy_denials_total", "action", snap.PolicyDenials)
	writeLabeledCounters(w, "chirp_analytics_events_published_total", "status", snap.AnalyticsPublished)
	writeLabeledCounters(w, "chirp_analytics_events_processed_total", "status", snap.AnalyticsProcessed)
	writeMetric(w, "chirp_analytics_queue_depth %d\n", snap.AnalyticsQueueDepth)

	writeLabeledCounters(w, "chirp_webhook_deliveries_total", "status", snap.WebhookDeliveries)
	writeMetric(w, "chirp_webhook_queue_depth %d\n", snap.WebhookQueueDepth)
}

// writeLabeledCounters emits one series per label value, in stable order.
func writeLabeledCounters(w http.ResponseWriter, name, label string, values map[string]uint64) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
