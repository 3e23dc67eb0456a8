package live

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestMetricsRecordSessionLifecycle(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()))

	m.sessionOpened()
	m.sessionOpened()
	m.sessionClosed()

	if got := counterValue(t, m.sessionsTotal); got != 2 {
		t.Errorf("sessions_total = %v, want 2", got)
	}
	if got := gaugeValue(t, m.sessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
}

func TestMetricsRecordActionsAndFrames(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()))

	m.actionProcessed("ok")
	m.actionProcessed("ok")
	m.actionProcessed("panic")
	m.frameSent(100)
	m.frameSent(250)
	m.wsError("read")

	if got := counterValue(t, m.actionsTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("actions_total(ok) = %v, want 2", got)
	}
	if got := counterValue(t, m.actionsTotal.WithLabelValues("panic")); got != 1 {
		t.Errorf("actions_total(panic) = %v, want 1", got)
	}
	if got := counterValue(t, m.framesTotal); got != 2 {
		t.Errorf("frames_sent_total = %v, want 2", got)
	}
	if got := counterValue(t, m.frameBytes); got != 350 {
		t.Errorf("frame_bytes_total = %v, want 350", got)
	}
	if got := counterValue(t, m.wsErrors.WithLabelValues("read")); got != 1 {
		t.Errorf("websocket_errors_total(read) = %v, want 1", got)
	}
}

func TestMetricsNamespaceAndSubsystem(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("app"), WithSubsystem("live"))

	m.sessionOpened()
	m.renderObserved(0.02)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"app_live_sessions_active",
		"app_live_sessions_total",
		"app_live_render_duration_seconds",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.sessionOpened()
	m.sessionClosed()
	m.actionProcessed("ok")
	m.renderObserved(0.01)
	m.frameSent(1)
	m.wsError("write")
}
