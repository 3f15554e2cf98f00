// Package reports строит сводки продаж.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

// Service отдаёт отчёты и отдельные продажи.
type Service struct {
	sales domain.SaleRepository
}

// NewService создаёт сервис отчётов.
func NewService(sales domain.SaleRepository) *Service {
	return &Service{sales: sales}
}

// SalesReport агрегирует продажи организации за [from, to). Пустой locationID — все точки.
func (s *Service) SalesReport(ctx context.Context, actor *domain.Actor, from, to time.Time, locationID string) (domain.SalesReport, error) {
	if err := actor.Authorize(domain.PermissionViewReports); err != nil {
		return domain.SalesReport{}, err
	}
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return domain.SalesReport{}, fmt.Errorf("%w: %s .. %s", domain.ErrInvalidPeriod, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	sales, err := s.sales.List(ctx, domain.SaleFilter{
		OrgID:      actor.OrgID,
		LocationID: locationID,
		From:       from,
		To:         to,
	})
	if err != nil {
		return domain.SalesReport{}, fmt.Errorf("list sales: %w", err)
	}
	return domain.BuildSalesReport(sales, from, to, locationID), nil
}

// GetSale возвращает продажу с позициями. Доступно любому активному сотруднику организации.
func (s *Service) GetSale(ctx context.Context, actor *domain.Actor, saleID string) (domain.Sale, error) {
	if err := actor.Authorize(domain.PermissionCheckout); err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.sales.Get(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.OrgID != actor.OrgID {
		return domain.Sale{}, domain.ErrSaleNotFound
	}
	return sale, nil
}
