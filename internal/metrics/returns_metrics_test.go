package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewReturnsMetrics(t *testing.T) {
	metrics := newReturnsMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("newReturnsMetricsWithRegisterer should not return nil")
	}

	if metrics.returnsSubmitted == nil {
		t.Error("returnsSubmitted counter should not be nil")
	}

	if metrics.returnsRejected == nil {
		t.Error("returnsRejected counter should not be nil")
	}

	if metrics.giftCardsApplied == nil {
		t.Error("giftCardsApplied counter should not be nil")
	}

	if metrics.giftCardsRemoved == nil {
		t.Error("giftCardsRemoved counter should not be nil")
	}

	if metrics.giftCardConflicts == nil {
		t.Error("giftCardConflicts counter should not be nil")
	}

	if metrics.handlerDuration == nil {
		t.Error("handlerDuration histogram vec should not be nil")
	}

	if metrics.timelineEvents == nil {
		t.Error("timelineEvents counter should not be nil")
	}

	if metrics.outboxEvents == nil {
		t.Error("outboxEvents counter should not be nil")
	}
}

func TestRecordReturnSubmitted(t *testing.T) {
	reg := prometheus.NewRegistry()

	returnsSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_returns_submitted_total",
		Help: "Test counter",
	})
	reg.MustRegister(returnsSubmitted)

	metrics := &ReturnsMetrics{
		returnsSubmitted: returnsSubmitted,
	}

	metrics.RecordReturnSubmitted()
	metrics.RecordReturnSubmitted()

	metric := &dto.Metric{}
	if err := returnsSubmitted.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordReturnRejected(t *testing.T) {
	reg := prometheus.NewRegistry()

	returnsRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_returns_rejected_total",
		Help: "Test counter",
	})
	reg.MustRegister(returnsRejected)

	metrics := &ReturnsMetrics{
		returnsRejected: returnsRejected,
	}

	metrics.RecordReturnRejected()

	metric := &dto.Metric{}
	if err := returnsRejected.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordGiftCardLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()

	applied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_giftcards_applied_total",
		Help: "Test counter",
	})
	removed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_giftcards_removed_total",
		Help: "Test counter",
	})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_giftcard_version_conflicts_total",
		Help: "Test counter",
	})
	reg.MustRegister(applied, removed, conflicts)

	metrics := &ReturnsMetrics{
		giftCardsApplied:  applied,
		giftCardsRemoved:  removed,
		giftCardConflicts: conflicts,
	}

	metrics.RecordGiftCardApplied()
	metrics.RecordGiftCardApplied()
	metrics.RecordGiftCardRemoved()
	metrics.RecordGiftCardConflict()

	appliedMetric := &dto.Metric{}
	if err := applied.Write(appliedMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if appliedMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 applied, got %f", appliedMetric.Counter.GetValue())
	}

	removedMetric := &dto.Metric{}
	if err := removed.Write(removedMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if removedMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 removed, got %f", removedMetric.Counter.GetValue())
	}

	conflictsMetric := &dto.Metric{}
	if err := conflicts.Write(conflictsMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if conflictsMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 conflict, got %f", conflictsMetric.Counter.GetValue())
	}
}

func TestRecordHandlerDuration(t *testing.T) {
	reg := prometheus.NewRegistry()

	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_handler_duration_seconds",
		Help:    "Test histogram vec",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"operation"})
	reg.MustRegister(handlerDuration)

	metrics := &ReturnsMetrics{
		handlerDuration: handlerDuration,
	}

	metrics.RecordHandlerDuration("submit_return_request", 50*time.Millisecond)
	metrics.RecordHandlerDuration("apply_gift_card", 10*time.Millisecond)

	submitMetric := &dto.Metric{}
	observer := handlerDuration.WithLabelValues("submit_return_request")
	if err := observer.(prometheus.Histogram).Write(submitMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if submitMetric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 sample, got %d", submitMetric.Histogram.GetSampleCount())
	}
}

func TestRecordTimelineAndOutboxEvents(t *testing.T) {
	reg := prometheus.NewRegistry()

	timelineEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_timeline_events_total",
		Help: "Test counter",
	})
	outboxEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_outbox_events_total",
		Help: "Test counter",
	})
	reg.MustRegister(timelineEvents, outboxEvents)

	metrics := &ReturnsMetrics{
		timelineEvents: timelineEvents,
		outboxEvents:   outboxEvents,
	}

	metrics.RecordTimelineEvent()
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()

	timelineMetric := &dto.Metric{}
	if err := timelineEvents.Write(timelineMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if timelineMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 timeline events, got %f", timelineMetric.Counter.GetValue())
	}

	outboxMetric := &dto.Metric{}
	if err := outboxEvents.Write(outboxMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if outboxMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 outbox event, got %f", outboxMetric.Counter.GetValue())
	}
}
