// Package checkout проводит продажу на кассе: списывает остатки, создаёт продажу и её строки
// одной транзакцией.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/metrics"
	"github.com/vladislavdragonenkov/retailpos/internal/service/stock"
)

// Request — входные данные checkout. Корзина передаётся целиком.
type Request struct {
	Cart            domain.Cart          `json:"cart"`
	LocationID      string               `json:"location_id,omitempty"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
	CustomerName    string               `json:"customer_name,omitempty"`
	DiscountPercent decimal.Decimal      `json:"discount_percent"`
	OrderID         string               `json:"order_id,omitempty"`
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

// WithMetrics подключает метрики продаж.
func WithMetrics(m *metrics.RetailMetrics) Option {
	return func(s *Service) {
		s.metrics = m
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

// Service проводит продажи.
type Service struct {
	tx      domain.TxManager
	logger  *log.Entry
	metrics *metrics.RetailMetrics
	now     func() time.Time
}

// NewService создаёт сервис кассы.
func NewService(tx domain.TxManager, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		logger: log.WithField("component", "checkout"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout проверяет корзину, списывает остатки и сохраняет продажу.
// При любой ошибке ни продажа, ни списания не сохраняются.
func (s *Service) Checkout(ctx context.Context, actor *domain.Actor, req Request) (domain.Sale, error) {
	started := time.Now()

	sale, err := s.checkout(ctx, actor, req)
	if err != nil {
		s.recordFailure(err)
		s.logger.WithError(err).WithFields(log.Fields{
			"lines":       len(req.Cart.Lines),
			"location_id": req.LocationID,
		}).Warn("checkout rejected")
		return domain.Sale{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordSale(sale.TotalMinor, sale.UnitsSold(), time.Since(started))
	}
	s.logger.WithFields(log.Fields{
		"sale_id":     sale.ID,
		"location_id": sale.LocationID,
		"total_minor": sale.TotalMinor,
		"channel":     sale.Channel,
	}).Info("sale completed")

	return sale, nil
}

func (s *Service) checkout(ctx context.Context, actor *domain.Actor, req Request) (domain.Sale, error) {
	if err := actor.Authorize(domain.PermissionCheckout); err != nil {
		return domain.Sale{}, err
	}
	if err := req.Cart.Validate(); err != nil {
		return domain.Sale{}, err
	}
	if !req.PaymentMethod.Valid() {
		return domain.Sale{}, fmt.Errorf("%w: %q", domain.ErrPaymentMethodInvalid, req.PaymentMethod)
	}
	if err := domain.ValidateDiscount(req.DiscountPercent); err != nil {
		return domain.Sale{}, err
	}

	locationID := req.LocationID
	if locationID == "" {
		locationID = actor.LocationID
	}

	var sale domain.Sale
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		lines, err := stock.PriceCart(ctx, tx.Products(), actor.OrgID, req.Cart)
		if err != nil {
			return err
		}
		totals, err := domain.ComputeTotals(lines, req.DiscountPercent)
		if err != nil {
			return err
		}

		channel := domain.ChannelInStore
		if req.OrderID != "" {
			order, err := tx.Orders().Get(ctx, req.OrderID)
			if err != nil {
				return err
			}
			if order.OrgID != actor.OrgID {
				return domain.ErrOrderNotFound
			}
			channel = domain.ChannelOnline
		}

		demands := stock.DemandsFor(lines, locationID)
		alloc := stock.NewAllocator(tx.Inventory(), actor.OrgID)
		if err := alloc.Lock(ctx, demands); err != nil {
			return err
		}
		fulfilled := make([]domain.InventoryRecord, len(lines))
		for i, demand := range demands {
			rec, err := alloc.Take(ctx, demand)
			if err != nil {
				return err
			}
			fulfilled[i] = rec
		}

		sale = s.buildSale(actor, req, channel, locationID, lines, fulfilled, totals)
		if err := tx.Sales().Create(ctx, sale); err != nil {
			return err
		}
		if err := alloc.Apply(ctx); err != nil {
			return err
		}
		return s.enqueueEvents(ctx, tx.Outbox(), sale, alloc.Touched())
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

func (s *Service) buildSale(
	actor *domain.Actor,
	req Request,
	channel domain.Channel,
	locationID string,
	lines []domain.PricedLine,
	fulfilled []domain.InventoryRecord,
	totals domain.Totals,
) domain.Sale {
	now := s.now()
	saleID := uuid.NewString()

	if locationID == "" && len(fulfilled) > 0 {
		locationID = fulfilled[0].LocationID
	}

	items := make([]domain.SaleLineItem, len(lines))
	for i, line := range lines {
		items[i] = domain.SaleLineItem{
			ID:             uuid.NewString(),
			SaleID:         saleID,
			ProductID:      line.ProductID,
			SKU:            line.SKU,
			Size:           line.Size,
			Color:          line.Color,
			LocationID:     fulfilled[i].LocationID,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			UnitCostMinor:  line.UnitCostMinor,
			SubtotalMinor:  line.SubtotalMinor(),
		}
	}

	return domain.Sale{
		ID:              saleID,
		OrgID:           actor.OrgID,
		LocationID:      locationID,
		SellerID:        actor.UserID,
		CustomerName:    req.CustomerName,
		Channel:         channel,
		PaymentMethod:   req.PaymentMethod,
		OrderID:         req.OrderID,
		SubtotalMinor:   totals.SubtotalMinor,
		DiscountPercent: totals.DiscountPercent,
		DiscountMinor:   totals.DiscountMinor,
		TotalMinor:      totals.TotalMinor,
		Items:           items,
		CreatedAt:       now,
	}
}

func (s *Service) enqueueEvents(ctx context.Context, outbox domain.OutboxRepository, sale domain.Sale, touched []domain.InventoryRecord) error {
	msg, err := domain.NewOutboxMessage(domain.AggregateSale, sale.ID, domain.EventSaleCompleted, domain.SaleCompletedPayload{
		SaleID:        sale.ID,
		OrgID:         sale.OrgID,
		LocationID:    sale.LocationID,
		SellerID:      sale.SellerID,
		Channel:       sale.Channel,
		PaymentMethod: string(sale.PaymentMethod),
		OrderID:       sale.OrderID,
		TotalMinor:    sale.TotalMinor,
		Units:         sale.UnitsSold(),
		CreatedAt:     sale.CreatedAt,
	})
	if err != nil {
		return err
	}
	if _, err := outbox.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue sale event: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}

	for _, rec := range touched {
		if !rec.IsLow() {
			continue
		}
		msg, err := domain.NewOutboxMessage(domain.AggregateInventory, rec.ID, domain.EventInventoryLowStock, domain.LowStockPayload{
			RecordID:   rec.ID,
			ProductID:  rec.ProductID,
			LocationID: rec.LocationID,
			Size:       rec.Size,
			Color:      rec.Color,
			Quantity:   rec.Quantity,
			MinStock:   rec.MinStock,
		})
		if err != nil {
			return err
		}
		if _, err := outbox.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue low stock event: %w", err)
		}
		if s.metrics != nil {
			s.metrics.RecordLowStock()
		}
	}
	return nil
}

func (s *Service) recordFailure(err error) {
	if s.metrics == nil {
		return
	}
	reason := "error"
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		reason = "insufficient_stock"
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrForbidden):
		reason = "unauthorized"
	case domain.IsNotFound(err):
		reason = "not_found"
	case domain.IsValidation(err):
		reason = "validation"
	}
	s.metrics.RecordCheckoutFailed(reason)
}
