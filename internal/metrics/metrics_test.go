package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsExposure(t *testing.T) {
	PollCycles.Inc()
	MentionsProcessed.Inc()
	QuotaDenials.Inc()
	TextFallbacks.Inc()
	ImageFallbacks.Inc()
	IncReply("success")
	IncProviderFailure("gpt-4o")
	ObserveReplyDuration(time.Now().Add(-750 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"memebot_poll_cycles_total",
		"memebot_mentions_processed_total",
		"memebot_replies_total",
		"memebot_quota_denials_total",
		"memebot_provider_failures_total",
		"memebot_text_fallbacks_total",
		"memebot_image_fallbacks_total",
		"memebot_reply_duration_seconds",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
