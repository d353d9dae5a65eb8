package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("webhook", "POST", "200"))
	ObserveHTTPRequest("webhook", "POST", 200, 15*time.Millisecond)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("webhook", "POST", "200"))
	if after-before != 1 {
		t.Fatalf("counter delta = %v", after-before)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveIntent("swap", "command")
	ObserveInboxMessage("replied")
	ObserveUpstream("aggregator", errors.New("boom"), time.Second)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`chatwallet_intents_total{kind="swap",source="command"}`,
		`chatwallet_inbox_messages_total{outcome="replied"}`,
		`chatwallet_upstream_duration_seconds_count{outcome="error",target="aggregator"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}
