package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncPermalinkCacheHit()                                 {}
func (n *NoopRecorder) IncPermalinkCacheMiss()                                {}
func (n *NoopRecorder) ObservePermalinkDuration(duration time.Duration)       {}
func (n *NoopRecorder) IncTweetCreated()                                      {}
func (n *NoopRecorder) IncTweetUpdated()                                      {}
func (n *NoopRecorder) IncTweetDeleted()                                      {}
func (n *NoopRecorder) IncPolicyDenied(action string)                         {}
func (n *NoopRecorder) IncAnalyticsEventPublished(status string)              {}
func (n *NoopRecorder) IncAnalyticsEventProcessed(status string)              {}
func (n *NoopRecorder) ObserveAnalyticsBatchSize(size int)                    {}
func (n *NoopRecorder) ObserveAnalyticsBatchDuration(duration time.Duration)  {}
func (n *NoopRecorder) SetAnalyticsQueueDepth(depth int64)                    {}
func (n *NoopRecorder) ObserveAnalyticsIngestLag(lag time.Duration)           {}
func (n *NoopRecorder) IncWebhookDelivery(status string)                      {}
func (n *NoopRecorder) ObserveWebhookDeliveryDuration(duration time.Duration) {}
func (n *NoopRecorder) SetWebhookQueueDepth(depth int64)                      {}
