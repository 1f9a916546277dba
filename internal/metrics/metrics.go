package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	SyncRuns              prometheus.Counter
	MessagesIngested      prometheus.Counter
	Classified            prometheus.Counter
	ClassificationFailure prometheus.Counter
	RepliesGenerated      prometheus.Counter
	ReplyFailures         prometheus.Counter
	NoReplyNeeded         prometheus.Counter
	SendSuccesses         prometheus.Counter
	SendFailures          prometheus.Counter
	ProviderFallbacks     *prometheus.CounterVec
	ProcessingTime        prometheus.Histogram
}

// NewMetrics registers the pipeline metrics with reg. A nil reg uses the
// default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SyncRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "inbox_triage_sync_runs_total",
			Help: "Total number of bulk ingest-and-triage runs",
		}),
		MessagesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "inbox_triage_messages_ingested_total",
			Help: "Total number of messages fetched and upserted",
		}),
		Classified: factory.NewCounter(prometheus.CounterOpts{
			Name: "inbox_triage_messages_classified_total",
			Help: "Total number of successful classifications",
		}),
		ClassificationFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "inbox_triage_classification_failures_total",
			Help: "Total number of failed classifications",
		}),
		RepliesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "inbox_triage_replies_generated_total",
			Help: "Total number of reply drafts generated",
		}),
		ReplyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "inbox_triage_reply_failures_total",
			Help: "Total number of failed reply drafts",
		}),
		NoReplyNeeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "inbox_triage_no_reply_needed_total",
			Help: "Total number of messages that did not need a reply",
		}),
		SendSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "inbox_triage_send_successes_total",
			Help: "Total number of replies sent",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "inbox_triage_send_failures_total",
			Help: "Total number of replies that could not be sent",
		}),
		ProviderFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_triage_provider_fallbacks_total",
			Help: "Total number of times mock data replaced the live mailbox",
		}, []string{"operation"}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inbox_triage_run_duration_seconds",
			Help:    "Time spent in a bulk ingest-and-triage run",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
