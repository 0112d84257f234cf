package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200)
	RecordAcceptError()
	RecordConnectionRejected()
}

func TestConnectionRecorders(t *testing.T) {
	opened := testutil.ToFloat64(connectionsTotal)
	active := testutil.ToFloat64(connectionsActive)
	clean := testutil.ToFloat64(connectionOutcomes.WithLabelValues("clean_disconnect"))
	in := testutil.ToFloat64(payloadBytes.WithLabelValues("in"))
	out := testutil.ToFloat64(payloadBytes.WithLabelValues("out"))

	RecordConnectionOpened()
	if got := testutil.ToFloat64(connectionsActive); got != active+1 {
		t.Fatalf("active after open: got=%v want=%v", got, active+1)
	}
	RecordFrameReceived(14)
	RecordFrameSent(20)
	RecordConnectionClosed("clean_disconnect", 5*time.Millisecond)

	if got := testutil.ToFloat64(connectionsTotal); got != opened+1 {
		t.Fatalf("connections_total: got=%v want=%v", got, opened+1)
	}
	if got := testutil.ToFloat64(connectionsActive); got != active {
		t.Fatalf("active after close: got=%v want=%v", got, active)
	}
	if got := testutil.ToFloat64(connectionOutcomes.WithLabelValues("clean_disconnect")); got != clean+1 {
		t.Fatalf("outcome: got=%v want=%v", got, clean+1)
	}
	if got := testutil.ToFloat64(payloadBytes.WithLabelValues("in")); got != in+14 {
		t.Fatalf("bytes in: got=%v want=%v", got, in+14)
	}
	if got := testutil.ToFloat64(payloadBytes.WithLabelValues("out")); got != out+20 {
		t.Fatalf("bytes out: got=%v want=%v", got, out+20)
	}
}
