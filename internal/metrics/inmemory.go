package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	PermalinkCacheHits       uint64
	PermalinkCacheMisses     uint64
	PermalinkDurationCount   uint64
	PermalinkDurationTotalNs int64
	TweetsCreated            uint64
	TweetsUpdated            uint64
	TweetsDeleted            uint64
	PolicyDenials            map[string]uint64
	AnalyticsPublished       map[string]uint64
	AnalyticsProcessed       map[string]uint64
	AnalyticsQueueDepth      int64
	WebhookDeliveries        map[string]uint64
	WebhookQueueDepth        int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	permalinkCacheHits       uint64
	permalinkCacheMisses     uint64
	permalinkDurationCount   uint64
	permalinkDurationTotalNs int64
	tweetsCreated            uint64
	tweetsUpdated            uint64
	tweetsDeleted            uint64
	analyticsQueueDepth      int64
	webhookQueueDepth        int64

	mu                 sync.Mutex
	policyDenials      map[string]uint64
	analyticsPublished map[string]uint64
	analyticsProcessed map[string]uint64
	webhookDeliveries  map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		policyDenials:      make(map[string]uint64),
		analyticsPublished: make(map[string]uint64),
		analyticsProcessed: make(map[string]uint64),
		webhookDeliveries:  make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		PermalinkCacheHits:       atomic.LoadUint64(&m.permalinkCacheHits),
		PermalinkCacheMisses:     atomic.LoadUint64(&m.permalinkCacheMisses),
		PermalinkDurationCount:   atomic.LoadUint64(&m.permalinkDurationCount),
		PermalinkDurationTotalNs: atomic.LoadInt64(&m.permalinkDurationTotalNs),
		TweetsCreated:            atomic.LoadUint64(&m.tweetsCreated),
		TweetsUpdated:            atomic.LoadUint64(&m.tweetsUpdated),
		TweetsDeleted:            atomic.LoadUint64(&m.tweetsDeleted),
		AnalyticsQueueDepth:      atomic.LoadInt64(&m.analyticsQueueDepth),
		WebhookQueueDepth:        atomic.LoadInt64(&m.webhookQueueDepth),
		PolicyDenials:            copyCounters(m.policyDenials),
		AnalyticsPublished:       copyCounters(m.analyticsPublished),
		AnalyticsProcessed:       copyCounters(m.analyticsProcessed),
		WebhookDeliveries:        copyCounters(m.webhookDeliveries),
	}
}

// IncPermalinkCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncPermalinkCacheHit() {
	atomic.AddUint64(&m.permalinkCacheHits, 1)
}

// IncPermalinkCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncPermalinkCacheMiss() {
	atomic.AddUint64(&m.permalinkCacheMisses, 1)
}

// ObservePermalinkDuration records permalink resolution duration.
func (m *InMemoryRecorder) ObservePermalinkDuration(duration time.Duration) {
	atomic.AddUint64(&m.permalinkDurationCount, 1)
	atomic.AddInt64(&m.permalinkDurationTotalNs, duration.Nanoseconds())
}

// IncTweetCreated increments tweet created counter.
func (m *InMemoryRecorder) IncTweetCreated() {
	atomic.AddUint64(&m.tweetsCreated, 1)
}

// IncTweetUpdated increments tweet updated counter.
func (m *InMemoryRecorder) IncTweetUpdated() {
	atomic.AddUint64(&m.tweetsUpdated, 1)
}

// IncTweetDeleted increments tweet deleted counter.
func (m *InMemoryRecorder) IncTweetDeleted() {
	atomic.AddUint64(&m.tweetsDeleted, 1)
}

// IncPolicyDenied increments the denial counter for an action.
func (m *InMemoryRecorder) IncPolicyDenied(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policyDenials[action]++
}

// IncAnalyticsEventPublished increments the publish counter by status.
func (m *InMemoryRecorder) IncAnalyticsEventPublished(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyticsPublished[status]++
}

// IncAnalyticsEventProcessed increments the processed counter by status.
func (m *InMemoryRecorder) IncAnalyticsEventProcessed(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyticsProcessed[status]++
}

// ObserveAnalyticsBatchSize is recorded only in aggregate form.
func (m *InMemoryRecorder) ObserveAnalyticsBatchSize(size int) {}

// ObserveAnalyticsBatchDuration is recorded only in aggregate form.
func (m *InMemoryRecorder) ObserveAnalyticsBatchDuration(duration time.Duration) {}

// SetAnalyticsQueueDepth records the current stream depth.
func (m *InMemoryRecorder) SetAnalyticsQueueDepth(depth int64) {
	atomic.StoreInt64(&m.analyticsQueueDepth, depth)
}

// ObserveAnalyticsIngestLag is recorded only in aggregate form.
func (m *InMemoryRecorder) ObserveAnalyticsIngestLag(lag time.Duration) {}

// IncWebhookDelivery increments the delivery counter by status.
func (m *InMemoryRecorder) IncWebhookDelivery(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhookDeliveries[status]++
}

// ObserveWebhookDeliveryDuration is recorded only in aggregate form.
func (m *InMemoryRecorder) ObserveWebhookDeliveryDuration(duration time.Duration) {}

// SetWebhookQueueDepth records the current delivery backlog.
func (m *InMemoryRecorder) SetWebhookQueueDepth(depth int64) {
	atomic.StoreInt64(&m.webhookQueueDepth, depth)
}

func copyCounters(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
