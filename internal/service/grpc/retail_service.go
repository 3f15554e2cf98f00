// Package grpcsvc публикует операции магазина через gRPC-сервис retail.v1.RetailService.
//
// Сообщения передаются JSON-кодеком (content-subtype "json"). Пользователь запроса берётся
// из контекста, куда его кладёт auth.UnaryServerInterceptor. Checkout и PlaceOrder
// требуют заголовок idempotency-key, если подключён репозиторий идемпотентности.
package grpcsvc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/retailpos/internal/auth"
	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/service/catalog"
	"github.com/vladislavdragonenkov/retailpos/internal/service/checkout"
	"github.com/vladislavdragonenkov/retailpos/internal/service/inventory"
	"github.com/vladislavdragonenkov/retailpos/internal/service/orders"
	"github.com/vladislavdragonenkov/retailpos/internal/service/reports"
	"github.com/vladislavdragonenkov/retailpos/internal/service/reservations"
)

const (
	defaultListOrdersLimit = 100
	maxListOrdersLimit     = 500
)

// Services — доменные сервисы, которые обслуживает RetailService. Не заданный сервис
// отвечает codes.Unimplemented.
type Services struct {
	Checkout     *checkout.Service
	Orders       *orders.Service
	Reservations *reservations.Service
	Inventory    *inventory.Service
	Catalog      *catalog.Service
	Reports      *reports.Service
	Idempotency  domain.IdempotencyRepository
}

// RetailService реализует RetailServiceServer.
type RetailService struct {
	checkout     *checkout.Service
	orders       *orders.Service
	reservations *reservations.Service
	inventory    *inventory.Service
	catalog      *catalog.Service
	reports      *reports.Service
	idempotency  domain.IdempotencyRepository
	logger       *log.Entry
	now          func() time.Time
}

// NewRetailService конструирует сервис с зависимостями.
func NewRetailService(services Services, logger *log.Entry) *RetailService {
	if logger == nil {
		logger = log.New().WithField("component", "retail-grpc")
	}
	return &RetailService{
		checkout:     services.Checkout,
		orders:       services.Orders,
		reservations: services.Reservations,
		inventory:    services.Inventory,
		catalog:      services.Catalog,
		reports:      services.Reports,
		idempotency:  services.Idempotency,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var _ RetailServiceServer = (*RetailService)(nil)

func actorFrom(ctx context.Context) *domain.Actor {
	return auth.ActorFromContext(ctx)
}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "%s is not configured", method)
}

// fail логирует ошибку и переводит её в статус. Детали внутренних ошибок клиенту не отдаются.
func (s *RetailService) fail(method string, err error) error {
	st := toStatus(err)
	code := status.Code(st)
	entry := s.logger.WithError(err).WithField("method", method)
	if code == codes.Internal {
		entry.Error("request failed")
		return st
	}
	entry.WithField("code", code.String()).Debug("request rejected")
	return st
}

// Checkout проводит продажу в точке продаж.
func (s *RetailService) Checkout(ctx context.Context, req *CheckoutRequest) (*SaleResponse, error) {
	if s.checkout == nil {
		return nil, unimplemented("Checkout")
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if actorFrom(ctx) == nil {
		return nil, s.fail("Checkout", domain.ErrUnauthenticated)
	}

	return withIdempotency(s, ctx, fullMethod("Checkout"), req, func(ctx context.Context) (*SaleResponse, error) {
		sale, err := s.checkout.Checkout(ctx, actorFrom(ctx), *req)
		if err != nil {
			return nil, s.fail("Checkout", err)
		}
		return &SaleResponse{Sale: toWireSale(sale)}, nil
	})
}

// PlaceOrder создаёт онлайн-заказ.
func (s *RetailService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderResponse, error) {
	if s.orders == nil {
		return nil, unimplemented("PlaceOrder")
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if actorFrom(ctx) == nil {
		return nil, s.fail("PlaceOrder", domain.ErrUnauthenticated)
	}

	return withIdempotency(s, ctx, fullMethod("PlaceOrder"), req, func(ctx context.Context) (*OrderResponse, error) {
		order, err := s.orders.PlaceOrder(ctx, actorFrom(ctx), *req)
		if err != nil {
			return nil, s.fail("PlaceOrder", err)
		}
		return &OrderResponse{Order: toWireOrder(order)}, nil
	})
}

// UpdateOrderStatus переводит заказ в новый статус.
func (s *RetailService) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*OrderResponse, error) {
	if s.orders == nil {
		return nil, unimplemented("UpdateOrderStatus")
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, s.fail("UpdateOrderStatus", err)
	}

	order, err := s.orders.UpdateStatus(ctx, actorFrom(ctx), req.OrderID, target, req.Reason)
	if err != nil {
		return nil, s.fail("UpdateOrderStatus", err)
	}
	return &OrderResponse{Order: toWireOrder(order)}, nil
}

// GetOrder возвращает заказ и его историю.
func (s *RetailService) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	if s.orders == nil {
		return nil, unimplemented("GetOrder")
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	actor := actorFrom(ctx)
	order, err := s.orders.GetOrder(ctx, actor, req.OrderID)
	if err != nil {
		return nil, s.fail("GetOrder", err)
	}
	events, err := s.orders.Timeline(ctx, actor, order.ID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to load order timeline")
	}

	return &GetOrderResponse{
		Order:    toWireOrder(order),
		Timeline: toWireTimeline(events),
	}, nil
}

// ListOrders возвращает заказы организации, при необходимости с фильтром по статусу.
func (s *RetailService) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	if s.orders == nil {
		return nil, unimplemented("ListOrders")
	}
	if req == nil {
		req = &ListOrdersRequest{}
	}

	limit := int(req.PageSize)
	switch {
	case limit <= 0:
		limit = defaultListOrdersLimit
	case limit > maxListOrdersLimit:
		limit = maxListOrdersLimit
	}

	list, err := s.orders.ListOrders(ctx, actorFrom(ctx), domain.OrderStatus(req.Status), limit)
	if err != nil {
		return nil, s.fail("ListOrders", err)
	}

	result := make([]*Order, 0, len(list))
	for _, order := range list {
		result = append(result, toWireOrder(order))
	}
	return &ListOrdersResponse{Orders: result}, nil
}

func (s *RetailService) GetOrderTimeline(ctx context.Context, req *GetOrderTimelineRequest) (*GetOrderTimelineResponse, error) {
	if s.orders == nil {
		return nil, unimplemented("GetOrderTimeline")
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	events, err := s.orders.Timeline(ctx, actorFrom(ctx), req.OrderID)
	if err != nil {
		return nil, s.fail("GetOrderTimeline", err)
	}
	return &GetOrderTimelineResponse{Events: toWireTimeline(events)}, nil
}

// ReleaseReservations возвращает на склад все активные резервы заказа.
func (s *RetailService) ReleaseReservations(ctx context.Context, req *ReleaseReservationsRequest) (*ReleaseReservationsResponse, error) {
	if s.reservations == nil {
		return nil, unimplemented("ReleaseReservations")
	}
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	released, err := s.reservations.ReleaseForOrder(ctx, actorFrom(ctx), req.OrderID)
	if err != nil {
		return nil, s.fail("ReleaseReservations", err)
	}
	return &ReleaseReservationsResponse{
		OrderID:  req.OrderID,
		Released: int32(released), //nolint:gosec // число резервов одного заказа невелико.
	}, nil
}

func (s *RetailService) AdjustStock(ctx context.Context, req *AdjustStockRequest) (*StockRecordResponse, error) {
	if s.inventory == nil {
		return nil, unimplemented("AdjustStock")
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	rec, err := s.inventory.AdjustStock(ctx, actorFrom(ctx), *req)
	if err != nil {
		return nil, s.fail("AdjustStock", err)
	}
	return &StockRecordResponse{Record: toWireStock(rec)}, nil
}

func (s *RetailService) ListStock(ctx context.Context, req *ListStockRequest) (*ListStockResponse, error) {
	if s.inventory == nil {
		return nil, unimplemented("ListStock")
	}
	if req == nil || req.ProductID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}

	records, err := s.inventory.ListStock(ctx, actorFrom(ctx), req.ProductID)
	if err != nil {
		return nil, s.fail("ListStock", err)
	}
	out := make([]*StockRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, toWireStock(rec))
	}
	return &ListStockResponse{Records: out}, nil
}

func (s *RetailService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*ProductResponse, error) {
	if s.catalog == nil {
		return nil, unimplemented("CreateProduct")
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	product, err := s.catalog.CreateProduct(ctx, actorFrom(ctx), *req)
	if err != nil {
		return nil, s.fail("CreateProduct", err)
	}
	return &ProductResponse{Product: toWireProduct(product)}, nil
}

func (s *RetailService) GetProduct(ctx context.Context, req *GetProductRequest) (*ProductResponse, error) {
	if s.catalog == nil {
		return nil, unimplemented("GetProduct")
	}
	if req == nil || req.ProductID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}

	product, err := s.catalog.GetProduct(ctx, actorFrom(ctx), req.ProductID)
	if err != nil {
		return nil, s.fail("GetProduct", err)
	}
	return &ProductResponse{Product: toWireProduct(product)}, nil
}

func (s *RetailService) GetSale(ctx context.Context, req *GetSaleRequest) (*SaleResponse, error) {
	if s.reports == nil {
		return nil, unimplemented("GetSale")
	}
	if req == nil || req.SaleID == "" {
		return nil, status.Error(codes.InvalidArgument, "sale_id is required")
	}

	sale, err := s.reports.GetSale(ctx, actorFrom(ctx), req.SaleID)
	if err != nil {
		return nil, s.fail("GetSale", err)
	}
	return &SaleResponse{Sale: toWireSale(sale)}, nil
}

// SalesReport строит сводку продаж за период [from, to).
func (s *RetailService) SalesReport(ctx context.Context, req *SalesReportRequest) (*SalesReportResponse, error) {
	if s.reports == nil {
		return nil, unimplemented("SalesReport")
	}
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	report, err := s.reports.SalesReport(ctx, actorFrom(ctx), req.From, req.To, req.LocationID)
	if err != nil {
		return nil, s.fail("SalesReport", err)
	}
	return &SalesReportResponse{Report: report}, nil
}
