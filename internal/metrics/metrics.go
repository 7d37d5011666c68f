package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memebot_poll_cycles_total",
		Help: "Total mention polling cycles",
	})
	PollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memebot_poll_errors_total",
		Help: "Total polling-loop errors",
	})
	MentionsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memebot_mentions_processed_total",
		Help: "Total mentions processed",
	})
	Replies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "memebot_replies_total",
		Help: "Total reply attempts by status",
	}, []string{"status"})
	QuotaDenials = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memebot_quota_denials_total",
		Help: "Total mentions skipped by the per-user daily quota",
	})
	ProviderFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "memebot_provider_failures_total",
		Help: "Total generation backend failures",
	}, []string{"provider"})
	TextFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memebot_text_fallbacks_total",
		Help: "Total replies served from the static fallback pool",
	})
	ImageFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memebot_image_fallbacks_total",
		Help: "Total replies degraded to text-only",
	})
	ReplyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "memebot_reply_duration_seconds",
		Help:    "End-to-end duration of one mention's processing",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(PollCycles, PollErrors, MentionsProcessed, Replies,
		QuotaDenials, ProviderFailures, TextFallbacks, ImageFallbacks, ReplyDuration)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveReplyDuration records one mention's processing duration.
func ObserveReplyDuration(start time.Time) {
	ReplyDuration.Observe(time.Since(start).Seconds())
}

// IncReply increments the reply counter for a status.
func IncReply(status string) { Replies.WithLabelValues(status).Inc() }

// IncProviderFailure increments the failure counter for a backend.
func IncProviderFailure(provider string) { ProviderFailures.WithLabelValues(provider).Inc() }
