// Package orders ведёт жизненный цикл онлайн-заказов: создание, смену статуса по таблице
// переходов, историю и уведомления клиента.
package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/retailpos/internal/metrics"
	"github.com/vladislavdragonenkov/retailpos/internal/service/stock"
)

// EventPublisher публикует события жизненного цикла во внешнюю шину.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

// Dispatcher отправляет клиенту уведомление о статусе заказа.
type Dispatcher interface {
	Dispatch(ctx context.Context, order domain.Order)
}

// PlaceOrderRequest — данные нового онлайн-заказа.
type PlaceOrderRequest struct {
	CustomerName    string               `json:"customer_name"`
	CustomerEmail   string               `json:"customer_email,omitempty"`
	CustomerPhone   string               `json:"customer_phone,omitempty"`
	ShippingAddress string               `json:"shipping_address,omitempty"`
	DeliveryMethod  string               `json:"delivery_method,omitempty"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
	PaymentProofURL string               `json:"payment_proof_url,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	LocationID      string               `json:"location_id,omitempty"`
	Items           []domain.CartLine    `json:"items"`
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики заказов.
func WithMetrics(m *metrics.RetailMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTimeline подключает хранилище истории заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) {
		s.timeline = timeline
	}
}

// WithPublisher подключает публикацию событий в Kafka.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithDispatcher подключает уведомления клиента.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = dispatcher
	}
}

// WithRetryConfig задаёт политику повторов при конфликте версий.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service управляет онлайн-заказами.
type Service struct {
	tx         domain.TxManager
	orders     domain.OrderRepository
	timeline   domain.TimelineRepository
	publisher  EventPublisher
	dispatcher Dispatcher
	logger     *log.Entry
	metrics    *metrics.RetailMetrics
	retry      RetryConfig
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewService создаёт сервис заказов. orders используется для чтения вне транзакций.
func NewService(tx domain.TxManager, orders domain.OrderRepository, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		orders: orders,
		logger: log.WithField("component", "orders"),
		retry:  DefaultRetryConfig(),
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder создаёт онлайн-заказ. При оплате переводом товар сразу удерживается
// в той же транзакции, и заказ получает статус reserved.
func (s *Service) PlaceOrder(ctx context.Context, actor *domain.Actor, req PlaceOrderRequest) (domain.Order, error) {
	if err := actor.Authorize(domain.PermissionPlaceOrder); err != nil {
		return domain.Order{}, err
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return domain.Order{}, domain.ErrCustomerRequired
	}
	if len(req.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}
	cart := domain.Cart{Lines: req.Items}
	if err := cart.Validate(); err != nil {
		return domain.Order{}, err
	}
	if !req.PaymentMethod.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrPaymentMethodInvalid, req.PaymentMethod)
	}

	locationID := req.LocationID
	if locationID == "" {
		locationID = actor.LocationID
	}
	hold := req.PaymentMethod == domain.PaymentMethodTransfer

	var (
		order    domain.Order
		reserved []domain.InventoryReservation
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		lines, err := stock.PriceCart(ctx, tx.Products(), actor.OrgID, cart)
		if err != nil {
			return err
		}
		amount, err := domain.LinesSubtotal(lines)
		if err != nil {
			return err
		}
		order = s.buildOrder(actor, req, locationID, lines, amount)
		if hold {
			order.Status = domain.OrderStatusReserved
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if hold {
			reserved, err = s.reserve(ctx, tx, actor.OrgID, order, locationID, lines)
			if err != nil {
				return err
			}
		}

		msg, err := domain.NewOutboxMessage(domain.AggregateOrder, order.ID, domain.EventOrderPlaced, domain.OrderPlacedPayload{
			OrderID:     order.ID,
			Status:      order.Status,
			AmountMinor: order.AmountMinor,
			Reserved:    len(reserved),
		})
		if err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue order placed: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("items", len(req.Items)).Warn("place order rejected")
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderPlaced()
		s.metrics.RecordOutboxEvent()
		for range reserved {
			s.metrics.RecordReservation(string(domain.ReservationStatusReserved))
		}
	}
	s.appendTimeline(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		To:       order.Status,
		ActorID:  actor.UserID,
		Occurred: order.CreatedAt,
	})
	s.publish(ctx, order, "", "")

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"status":       order.Status,
		"amount_minor": order.AmountMinor,
		"reserved":     len(reserved),
	}).Info("order placed")
	return order, nil
}

func (s *Service) buildOrder(
	actor *domain.Actor,
	req PlaceOrderRequest,
	locationID string,
	lines []domain.PricedLine,
	amount int64,
) domain.Order {
	now := s.now()
	orderID := uuid.NewString()

	items := make([]domain.OrderItem, len(lines))
	for i, line := range lines {
		items[i] = domain.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    orderID,
			ProductID:  line.ProductID,
			SKU:        line.SKU,
			Size:       line.Size,
			Color:      line.Color,
			Qty:        line.Qty,
			PriceMinor: line.UnitPriceMinor,
			CreatedAt:  now,
		}
	}

	return domain.Order{
		ID:              orderID,
		OrgID:           actor.OrgID,
		LocationID:      locationID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		DeliveryMethod:  req.DeliveryMethod,
		PaymentMethod:   req.PaymentMethod,
		PaymentProofURL: req.PaymentProofURL,
		Status:          domain.OrderStatusPending,
		Notes:           req.Notes,
		AmountMinor:     amount,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// reserve удерживает остаток под каждую позицию заказа.
func (s *Service) reserve(
	ctx context.Context,
	tx domain.Tx,
	orgID string,
	order domain.Order,
	locationID string,
	lines []domain.PricedLine,
) ([]domain.InventoryReservation, error) {
	demands := stock.DemandsFor(lines, locationID)
	alloc := stock.NewAllocator(tx.Inventory(), orgID)
	if err := alloc.Lock(ctx, demands); err != nil {
		return nil, err
	}
	out := make([]domain.InventoryReservation, 0, len(lines))

	for i, line := range lines {
		rec, err := alloc.Take(ctx, demands[i])
		if err != nil {
			return nil, err
		}

		reservation := domain.InventoryReservation{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			ProductID:  line.ProductID,
			LocationID: rec.LocationID,
			Size:       line.Size,
			Color:      line.Color,
			Qty:        line.Qty,
			Status:     domain.ReservationStatusReserved,
			CreatedAt:  order.CreatedAt,
			UpdatedAt:  order.CreatedAt,
		}
		if err := tx.Reservations().Create(ctx, reservation); err != nil {
			return nil, fmt.Errorf("create reservation: %w", err)
		}
		out = append(out, reservation)
	}

	if err := alloc.Apply(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus переводит заказ в статус target. Допустимость перехода проверяется по
// таблице переходов на только что прочитанном заказе; при конфликте версий попытка повторяется.
func (s *Service) UpdateStatus(
	ctx context.Context,
	actor *domain.Actor,
	orderID string,
	target domain.OrderStatus,
	reason string,
) (domain.Order, error) {
	if err := actor.Authorize(domain.PermissionManageOrders); err != nil {
		return domain.Order{}, err
	}
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if !target.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrInvalidOrderStatus, target)
	}

	var (
		previous  domain.OrderStatus
		changedAt time.Time
		written   domain.Order
	)
	err := s.retryOnConflict(ctx, orderID, func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			order, err := tx.Orders().Get(ctx, orderID)
			if err != nil {
				return err
			}
			if order.OrgID != actor.OrgID {
				return domain.ErrOrderNotFound
			}

			previous = order.Status
			changedAt = s.now()
			if err := order.ApplyTransition(target, actor.UserID, reason, changedAt); err != nil {
				return err
			}
			if err := tx.Orders().Save(ctx, order); err != nil {
				return err
			}
			written = order

			msg, err := domain.NewOutboxMessage(domain.AggregateOrder, order.ID, domain.EventOrderStatusChanged, domain.OrderStatusChangedPayload{
				OrderID:   order.ID,
				From:      previous,
				To:        target,
				ActorID:   actor.UserID,
				Reason:    reason,
				ChangedAt: changedAt,
			})
			if err != nil {
				return err
			}
			if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
				return fmt.Errorf("enqueue status change: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"target":   target,
		}).Warn("status update rejected")
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderTransition(string(previous), string(target))
		s.metrics.RecordOutboxEvent()
	}
	s.appendTimeline(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		From:     previous,
		To:       target,
		Reason:   reason,
		ActorID:  actor.UserID,
		Occurred: changedAt,
	})

	// Статус уже зафиксирован: без перечитывания отвечаем записанной версией.
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("reload order after status change failed")
		order = written
	}
	s.publish(ctx, order, previous, reason)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, order)
	}

	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"from":     previous,
		"to":       target,
		"actor_id": actor.UserID,
	}).Info("order status changed")
	return order, nil
}

// GetOrder возвращает заказ организации actor вместе с позициями.
func (s *Service) GetOrder(ctx context.Context, actor *domain.Actor, orderID string) (domain.Order, error) {
	if err := actor.Authorize(domain.PermissionViewOrders); err != nil {
		return domain.Order{}, err
	}
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.OrgID != actor.OrgID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders возвращает заказы организации, новые первыми. Пустой статус не фильтрует.
func (s *Service) ListOrders(ctx context.Context, actor *domain.Actor, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if err := actor.Authorize(domain.PermissionViewOrders); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidOrderStatus, status)
	}
	return s.orders.List(ctx, domain.OrderFilter{
		OrgID:  actor.OrgID,
		Status: status,
		Limit:  limit,
	})
}

// Timeline возвращает историю заказа в хронологическом порядке.
func (s *Service) Timeline(ctx context.Context, actor *domain.Actor, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(ctx, orderID)
}

func (s *Service) appendTimeline(ctx context.Context, event domain.TimelineEvent) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": event.OrderID,
			"to":       event.To,
		}).Warn("append timeline event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

// publish отправляет событие жизненного цикла; ошибка публикации не отменяет смену статуса.
func (s *Service) publish(ctx context.Context, order domain.Order, previous domain.OrderStatus, reason string) {
	if s.publisher == nil {
		return
	}
	event := kafka.NewOrderEvent(order, previous, reason)
	if err := s.publisher.PublishEvent(ctx, kafka.TopicLifecycleEvents, order.ID, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":   order.ID,
			"event_type": event.EventType,
		}).Warn("failed to publish lifecycle event")
	}
}
