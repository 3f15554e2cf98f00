// Package catalog управляет карточками товаров организации.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// CreateProductRequest — данные новой карточки.
type CreateProductRequest struct {
	SKU        string   `json:"sku"`
	Name       string   `json:"name"`
	PriceMinor int64    `json:"price_minor"`
	CostMinor  int64    `json:"cost_minor"`
	Sizes      []string `json:"sizes,omitempty"`
	Colors     []string `json:"colors,omitempty"`
}

// Service — каталог товаров.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		products: products,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateProduct заводит активный товар. SKU уникален в пределах организации.
func (s *Service) CreateProduct(ctx context.Context, actor *domain.Actor, req CreateProductRequest) (domain.Product, error) {
	if err := actor.Authorize(domain.PermissionManageCatalog); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:         uuid.NewString(),
		OrgID:      actor.OrgID,
		SKU:        strings.TrimSpace(req.SKU),
		Name:       strings.TrimSpace(req.Name),
		PriceMinor: req.PriceMinor,
		CostMinor:  req.CostMinor,
		Sizes:      req.Sizes,
		Colors:     req.Colors,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"sku":        product.SKU,
	}).Info("product created")
	return product, nil
}

// GetProduct возвращает товар организации actor.
func (s *Service) GetProduct(ctx context.Context, actor *domain.Actor, productID string) (domain.Product, error) {
	if err := actor.Authorize(domain.PermissionViewStock); err != nil {
		return domain.Product{}, err
	}
	if productID == "" {
		return domain.Product{}, domain.ErrProductIDRequired
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if product.OrgID != actor.OrgID {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}
