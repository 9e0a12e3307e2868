package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики операций покупки и отмены.
type CheckoutMetrics struct {
	// Счётчики операций
	purchaseStarted   prometheus.Counter
	purchaseCompleted prometheus.Counter
	purchaseRejected  *prometheus.CounterVec
	cancelCompleted   prometheus.Counter
	cancelRejected    *prometheus.CounterVec
	internalFailures  prometheus.Counter

	// Гистограммы времени выполнения
	purchaseDuration prometheus.Histogram
	cancelDuration   prometheus.Histogram

	// Счётчики побочных записей
	auditEntries prometheus.Counter
	outboxEvents prometheus.Counter

	// Gauge для операций в полёте
	inFlight prometheus.Gauge
}

// NewCheckoutMetrics создаёт новый экземпляр метрик checkout.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		purchaseStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_purchase_started_total",
			Help: "Total number of purchase operations started",
		}),
		purchaseCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_purchase_completed_total",
			Help: "Total number of purchase operations committed",
		}),
		purchaseRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_purchase_rejected_total",
			Help: "Total number of purchase operations rejected grouped by reason",
		}, []string{"reason"}),
		cancelCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_cancel_completed_total",
			Help: "Total number of cancellation operations committed",
		}),
		cancelRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_cancel_rejected_total",
			Help: "Total number of cancellation operations rejected grouped by reason",
		}, []string{"reason"}),
		internalFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_internal_failures_total",
			Help: "Total number of checkout operations failed on storage errors",
		}),
		purchaseDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_purchase_duration_seconds",
			Help:    "Duration of purchase operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		cancelDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_cancel_duration_seconds",
			Help:    "Duration of cancellation operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		auditEntries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_audit_entries_total",
			Help: "Total number of audit entries recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_checkout_in_flight",
			Help: "Number of currently running checkout operations",
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

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordPurchaseStarted увеличивает счётчик начатых покупок.
func (m *CheckoutMetrics) RecordPurchaseStarted() {
	m.purchaseStarted.Inc()
	m.inFlight.Inc()
}

// RecordPurchaseCompleted увеличивает счётчик успешных покупок.
func (m *CheckoutMetrics) RecordPurchaseCompleted() {
	m.purchaseCompleted.Inc()
}

// RecordPurchaseRejected фиксирует отклонённую покупку с причиной.
func (m *CheckoutMetrics) RecordPurchaseRejected(reason string) {
	m.purchaseRejected.WithLabelValues(reason).Inc()
}

// RecordCancelCompleted увеличивает счётчик успешных отмен.
func (m *CheckoutMetrics) RecordCancelCompleted() {
	m.cancelCompleted.Inc()
}

// RecordCancelRejected фиксирует отклонённую отмену с причиной.
func (m *CheckoutMetrics) RecordCancelRejected(reason string) {
	m.cancelRejected.WithLabelValues(reason).Inc()
}

// RecordInternalFailure увеличивает счётчик ошибок хранилища.
func (m *CheckoutMetrics) RecordInternalFailure() {
	m.internalFailures.Inc()
}

// RecordOperationFinished уменьшает количество операций в полёте.
func (m *CheckoutMetrics) RecordOperationFinished() {
	m.inFlight.Dec()
}

// RecordPurchaseDuration записывает время выполнения покупки.
func (m *CheckoutMetrics) RecordPurchaseDuration(duration time.Duration) {
	m.purchaseDuration.Observe(duration.Seconds())
}

// RecordCancelDuration записывает время выполнения отмены.
func (m *CheckoutMetrics) RecordCancelDuration(duration time.Duration) {
	m.cancelDuration.Observe(duration.Seconds())
}

// RecordAuditEntry увеличивает счётчик записей аудита.
func (m *CheckoutMetrics) RecordAuditEntry() {
	m.auditEntries.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
