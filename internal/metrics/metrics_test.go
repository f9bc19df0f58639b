package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservers(t *testing.T) {
	m := New()

	m.ObserveRetrieval(nfce.MethodHybrid, true, "")
	m.ObserveRetrieval(nfce.MethodHybrid, true, "")
	m.ObserveRetrieval("", false, nfce.ErrCodeSoapTransport)
	m.ObserveSession(nfce.SourceKeyList, nfce.SessionCompleted)
	m.ObserveUpstream("sefaz", "ok", 150*time.Millisecond)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"hybrid successes", testutil.ToFloat64(m.retrievals.WithLabelValues("hybrid", "success")), 2},
		{"soap transport failures", testutil.ToFloat64(m.retrievals.WithLabelValues("none", "soap_transport")), 1},
		{"completed sessions", testutil.ToFloat64(m.sessions.WithLabelValues("key_list", "completed")), 1},
		{"upstream series", float64(testutil.CollectAndCount(m.upstreamDuration)), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveSession(nfce.SourcePeriodSearch, nfce.SessionFailed)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		`nfce_sessions_total{source="period_search",status="failed"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output does not contain %q", want)
		}
	}
}

func TestNewUsesIndependentRegistries(t *testing.T) {
	// creating a second instance must not panic with duplicate registrations
	a, b := New(), New()
	a.ObserveSession(nfce.SourceKeyList, nfce.SessionCompleted)
	if got := testutil.ToFloat64(b.sessions.WithLabelValues("key_list", "completed")); got != 0 {
		t.Errorf("registries are shared: got %v", got)
	}
}
