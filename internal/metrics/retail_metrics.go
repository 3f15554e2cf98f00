package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RetailMetrics содержит метрики кассы, заказов и уведомлений.
type RetailMetrics struct {
	// Касса
	salesCompleted   prometheus.Counter
	salesRevenue     prometheus.Counter
	unitsSold        prometheus.Counter
	checkoutFailed   *prometheus.CounterVec
	checkoutDuration prometheus.Histogram

	// Заказы
	ordersPlaced        prometheus.Counter
	orderTransitions    *prometheus.CounterVec
	orderConflicts      prometheus.Counter
	reservationsChanged *prometheus.CounterVec

	// Остатки
	lowStockEvents prometheus.Counter
	stockAdjusted  prometheus.Counter

	// Уведомления
	notifications *prometheus.CounterVec

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Доставка outbox
	outboxPublish   *prometheus.CounterVec
	outboxPending   prometheus.Gauge
	outboxOldestAge prometheus.Gauge

	// Очистка ключей идемпотентности
	idempotencyCleanupRuns    *prometheus.CounterVec
	idempotencyCleanupDeleted prometheus.Counter
}

// NewRetailMetrics создаёт метрики в реестре по умолчанию.
func NewRetailMetrics() *RetailMetrics {
	return NewRetailMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewRetailMetricsWithRegisterer создаёт метрики в переданном реестре.
func NewRetailMetricsWithRegisterer(registerer prometheus.Registerer) *RetailMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &RetailMetrics{
		salesCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retail_sales_completed_total",
			Help: "Total number of completed sales",
		}),
		salesRevenue: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retail_sales_revenue_minor_total",
			Help: "Total revenue of completed sales in minor currency units",
		}),
		unitsSold: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retail_units_sold_total",
			Help: "Total number of units sold",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retail_checkout_failed_total",
			Help: "Total number of rejected checkouts grouped by reason",
		}, []string{"reason"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "retail_checkout_duration_seconds",
			Help:    "Duration of checkout operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retail_orders_placed_total",
			Help: "Total number of online orders placed",
		}),
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retail_order_transitions_total",
			Help: "Total number of order status transitions",
		}, []string{"from", "to"}),
		orderConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retail_order_version_conflicts_total",
			Help: "Total number of optimistic lock conflicts on order updates",
		}),
		reservationsChanged: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retail_reservations_total",
			Help: "Total number of reservation status changes grouped by resulting status",
		}, []string{"status"}),
		lowStockEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retail_low_stock_events_total",
			Help: "Total number of low stock events raised",
		}),
		stockAdjusted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retail_stock_adjustments_total",
			Help: "Total number of manual stock adjustments",
		}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retail_notifications_total",
			Help: "Total number of customer notifications grouped by channel and result",
		}, []string{"channel", "result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retail_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retail_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		outboxPublish: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retail_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "retail_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "retail_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
		idempotencyCleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retail_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result",
		}, []string{"result"}),
		idempotencyCleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retail_idempotency_cleanup_deleted_total",
			Help: "Total number of expired idempotency keys removed",
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

// RecordSale учитывает проведённую продажу.
func (m *RetailMetrics) RecordSale(totalMinor, units int64, duration time.Duration) {
	m.salesCompleted.Inc()
	if totalMinor > 0 {
		m.salesRevenue.Add(float64(totalMinor))
	}
	if units > 0 {
		m.unitsSold.Add(float64(units))
	}
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordCheckoutFailed учитывает отклонённый checkout.
func (m *RetailMetrics) RecordCheckoutFailed(reason string) {
	m.checkoutFailed.WithLabelValues(reason).Inc()
}

// RecordOrderPlaced учитывает созданный онлайн-заказ.
func (m *RetailMetrics) RecordOrderPlaced() {
	m.ordersPlaced.Inc()
}

// RecordOrderTransition учитывает смену статуса заказа.
func (m *RetailMetrics) RecordOrderTransition(from, to string) {
	m.orderTransitions.WithLabelValues(from, to).Inc()
}

// RecordOrderConflict учитывает конфликт версий при сохранении заказа.
func (m *RetailMetrics) RecordOrderConflict() {
	m.orderConflicts.Inc()
}

// RecordReservation учитывает переход резерва в статус.
func (m *RetailMetrics) RecordReservation(status string) {
	m.reservationsChanged.WithLabelValues(status).Inc()
}

// RecordLowStock увеличивает счётчик событий низкого остатка.
func (m *RetailMetrics) RecordLowStock() {
	m.lowStockEvents.Inc()
}

// RecordStockAdjusted увеличивает счётчик ручных корректировок.
func (m *RetailMetrics) RecordStockAdjusted() {
	m.stockAdjusted.Inc()
}

// RecordNotification учитывает попытку уведомления клиента.
func (m *RetailMetrics) RecordNotification(channel, result string) {
	m.notifications.WithLabelValues(channel, result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *RetailMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *RetailMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordIdempotencyCleanup учитывает проход очистки ключей идемпотентности.
func (m *RetailMetrics) RecordIdempotencyCleanup(result string, deleted int) {
	m.idempotencyCleanupRuns.WithLabelValues(result).Inc()
	if deleted > 0 {
		m.idempotencyCleanupDeleted.Add(float64(deleted))
	}
}

// RecordOutboxPublish учитывает попытку доставки outbox-сообщения.
func (m *RetailMetrics) RecordOutboxPublish(result string) {
	m.outboxPublish.WithLabelValues(result).Inc()
}

// SetOutboxBacklog выставляет размер backlog и возраст самого старого сообщения.
func (m *RetailMetrics) SetOutboxBacklog(pending int, oldest time.Duration) {
	m.outboxPending.Set(float64(pending))
	if oldest < 0 {
		oldest = 0
	}
	m.outboxOldestAge.Set(oldest.Seconds())
}
