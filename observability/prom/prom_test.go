package prom

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/filebeam/relay/observability"
)

func TestRelayObserverExportsMetrics(t *testing.T) {
	reg := NewRegistry()
	o := NewRelayObserver(reg)

	o.ConnCount(3)
	o.SessionCount(2)
	o.Attach(observability.AttachResultOK, observability.AttachReasonOK)
	o.Attach(observability.AttachResultFail, observability.AttachReasonTooManyConnections)
	o.Close(observability.CloseReasonSenderClosed)
	o.RendezvousLatency(120 * time.Millisecond)
	o.BytesRelayed(1024)
	o.BytesRelayed(512)
	o.ChatRelayed()

	if got := testutil.ToFloat64(o.connGauge); got != 3 {
		t.Fatalf("connections gauge = %f, want 3", got)
	}
	if got := testutil.ToFloat64(o.sessionGauge); got != 2 {
		t.Fatalf("sessions gauge = %f, want 2", got)
	}
	if got := testutil.ToFloat64(o.attachTotal.WithLabelValues("ok", "ok")); got != 1 {
		t.Fatalf("attach ok counter = %f, want 1", got)
	}
	if got := testutil.ToFloat64(o.attachTotal.WithLabelValues("fail", "too_many_connections")); got != 1 {
		t.Fatalf("attach fail counter = %f, want 1", got)
	}
	if got := testutil.ToFloat64(o.closeTotal.WithLabelValues("sender_closed")); got != 1 {
		t.Fatalf("close counter = %f, want 1", got)
	}
	if got := testutil.ToFloat64(o.bytesRelayed); got != 1536 {
		t.Fatalf("bytes counter = %f, want 1536", got)
	}
	if got := testutil.ToFloat64(o.chatRelayed); got != 1 {
		t.Fatalf("chat counter = %f, want 1", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := NewRegistry()
	o := NewRelayObserver(reg)
	o.ConnCount(1)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "filebeam_relay_connections 1") {
		t.Fatalf("expected connections metric in output, got:\n%s", rr.Body.String())
	}
}
