// Package inventory — ручное управление остатками вариантов по точкам продаж.
package inventory

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/metrics"
)

// AdjustStockRequest — новое значение остатка и порога для варианта в точке.
type AdjustStockRequest struct {
	ProductID  string `json:"product_id"`
	LocationID string `json:"location_id,omitempty"`
	Size       string `json:"size"`
	Color      string `json:"color,omitempty"`
	Quantity   int32  `json:"quantity"`
	MinStock   int32  `json:"min_stock"`
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

// WithMetrics подключает метрики склада.
func WithMetrics(m *metrics.RetailMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service управляет остатками.
type Service struct {
	tx      domain.TxManager
	logger  *log.Entry
	metrics *metrics.RetailMetrics
}

// NewService создаёт сервис остатков.
func NewService(tx domain.TxManager, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		logger: log.WithField("component", "inventory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AdjustStock записывает абсолютное значение остатка. Запись создаётся, если её не было.
func (s *Service) AdjustStock(ctx context.Context, actor *domain.Actor, req AdjustStockRequest) (domain.InventoryRecord, error) {
	if err := actor.Authorize(domain.PermissionAdjustStock); err != nil {
		return domain.InventoryRecord{}, err
	}
	if req.ProductID == "" {
		return domain.InventoryRecord{}, domain.ErrProductIDRequired
	}
	if req.Quantity < 0 || req.MinStock < 0 {
		return domain.InventoryRecord{}, domain.ErrNegativeQuantity
	}
	locationID := req.LocationID
	if locationID == "" {
		locationID = actor.LocationID
	}
	if locationID == "" {
		return domain.InventoryRecord{}, domain.ErrLocationRequired
	}

	var (
		saved domain.InventoryRecord
		old   int32
		low   bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		product, err := tx.Products().Get(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if product.OrgID != actor.OrgID {
			return domain.ErrProductNotFound
		}
		if !product.Offers(req.Size, req.Color) {
			return fmt.Errorf("%s size %s color %s: %w", product.SKU, req.Size, req.Color, domain.ErrVariantUnavailable)
		}

		key := domain.StockKey{
			Variant:    domain.Variant{ProductID: req.ProductID, Size: req.Size, Color: req.Color},
			LocationID: locationID,
		}
		current, err := tx.Inventory().GetForUpdate(ctx, key)
		switch {
		case err == nil:
			old = current.Quantity
		case errors.Is(err, domain.ErrInventoryRecordNotFound):
			old = 0
		default:
			return fmt.Errorf("lock inventory record: %w", err)
		}

		saved, err = tx.Inventory().Upsert(ctx, domain.InventoryRecord{
			OrgID:      actor.OrgID,
			ProductID:  req.ProductID,
			LocationID: locationID,
			Size:       req.Size,
			Color:      req.Color,
			Quantity:   req.Quantity,
			MinStock:   req.MinStock,
		})
		if err != nil {
			return err
		}

		msg, err := domain.NewOutboxMessage(domain.AggregateInventory, saved.ID, domain.EventStockAdjusted, domain.StockAdjustedPayload{
			RecordID:    saved.ID,
			ProductID:   saved.ProductID,
			LocationID:  saved.LocationID,
			Size:        saved.Size,
			Color:       saved.Color,
			OldQuantity: old,
			NewQuantity: saved.Quantity,
			ActorID:     actor.UserID,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue stock adjusted: %w", err)
		}

		low = saved.IsLow()
		if !low {
			return nil
		}
		lowMsg, err := domain.NewOutboxMessage(domain.AggregateInventory, saved.ID, domain.EventInventoryLowStock, domain.LowStockPayload{
			RecordID:   saved.ID,
			ProductID:  saved.ProductID,
			LocationID: saved.LocationID,
			Size:       saved.Size,
			Color:      saved.Color,
			Quantity:   saved.Quantity,
			MinStock:   saved.MinStock,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, lowMsg); err != nil {
			return fmt.Errorf("enqueue low stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordStockAdjusted()
		s.metrics.RecordOutboxEvent()
		if low {
			s.metrics.RecordLowStock()
			s.metrics.RecordOutboxEvent()
		}
	}
	s.logger.WithFields(log.Fields{
		"record_id":   saved.ID,
		"location_id": saved.LocationID,
		"old":         old,
		"new":         saved.Quantity,
		"actor_id":    actor.UserID,
	}).Info("stock adjusted")
	return saved, nil
}

// ListStock возвращает остатки товара во всех точках организации.
func (s *Service) ListStock(ctx context.Context, actor *domain.Actor, productID string) ([]domain.InventoryRecord, error) {
	if err := actor.Authorize(domain.PermissionViewStock); err != nil {
		return nil, err
	}
	if productID == "" {
		return nil, domain.ErrProductIDRequired
	}

	var out []domain.InventoryRecord
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		product, err := tx.Products().Get(ctx, productID)
		if err != nil {
			return err
		}
		if product.OrgID != actor.OrgID {
			return domain.ErrProductNotFound
		}
		records, err := tx.Inventory().ListByProduct(ctx, productID)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.OrgID == actor.OrgID {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}
