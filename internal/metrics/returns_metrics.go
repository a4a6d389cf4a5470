package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReturnsMetrics содержит метрики процесса возвратов и подарочных карт.
type ReturnsMetrics struct {
	// Счётчики операций
	returnsSubmitted  prometheus.Counter
	returnsRejected   prometheus.Counter
	giftCardsApplied  prometheus.Counter
	giftCardsRemoved  prometheus.Counter
	giftCardConflicts prometheus.Counter

	// Гистограмма времени обработки по операциям
	handlerDuration *prometheus.HistogramVec

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewReturnsMetrics создаёт новый экземпляр метрик возвратов.
func NewReturnsMetrics() *ReturnsMetrics {
	return newReturnsMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newReturnsMetricsWithRegisterer(registerer prometheus.Registerer) *ReturnsMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReturnsMetrics{
		returnsSubmitted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grandnode_returns_submitted_total",
			Help: "Total number of return requests submitted successfully",
		}),
		returnsRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grandnode_returns_rejected_total",
			Help: "Total number of return request submissions rejected",
		}),
		giftCardsApplied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grandnode_giftcards_applied_total",
			Help: "Total number of gift cards applied to customers",
		}),
		giftCardsRemoved: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grandnode_giftcards_removed_total",
			Help: "Total number of gift cards removed from customers",
		}),
		giftCardConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grandnode_giftcard_version_conflicts_total",
			Help: "Total number of optimistic locking conflicts on gift card operations",
		}),
		handlerDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "grandnode_handler_duration_seconds",
			Help:    "Duration of command and query handlers in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grandnode_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "grandnode_outbox_events_total",
			Help: "Total number of outbox events published",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordReturnSubmitted увеличивает счётчик поданных заявок.
func (m *ReturnsMetrics) RecordReturnSubmitted() {
	m.returnsSubmitted.Inc()
}

// RecordReturnRejected увеличивает счётчик отклонённых подач.
func (m *ReturnsMetrics) RecordReturnRejected() {
	m.returnsRejected.Inc()
}

// RecordGiftCardApplied увеличивает счётчик применённых карт.
func (m *ReturnsMetrics) RecordGiftCardApplied() {
	m.giftCardsApplied.Inc()
}

// RecordGiftCardRemoved увеличивает счётчик снятых карт.
func (m *ReturnsMetrics) RecordGiftCardRemoved() {
	m.giftCardsRemoved.Inc()
}

// RecordGiftCardConflict увеличивает счётчик конфликтов optimistic locking.
func (m *ReturnsMetrics) RecordGiftCardConflict() {
	m.giftCardConflicts.Inc()
}

// RecordHandlerDuration записывает время выполнения обработчика.
func (m *ReturnsMetrics) RecordHandlerDuration(operation string, duration time.Duration) {
	m.handlerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *ReturnsMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *ReturnsMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
