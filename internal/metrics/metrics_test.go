package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncContactSubmission(t *testing.T) {
	before := testutil.ToFloat64(ContactSubmissions.WithLabelValues("rate_limited"))
	IncContactSubmission("rate_limited")
	after := testutil.ToFloat64(ContactSubmissions.WithLabelValues("rate_limited"))

	if after-before != 1 {
		t.Errorf("counter delta: got %v, want 1", after-before)
	}
}

func TestHandler_ExposesInstruments(t *testing.T) {
	ObserveMailSend("stdout", "success", 20*time.Millisecond)
	ObserveHTTPRequest(http.MethodPost, "/api/contact", "200", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"mail_send_duration_seconds", "http_request_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
