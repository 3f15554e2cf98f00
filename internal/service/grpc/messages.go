package grpcsvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	"github.com/vladislavdragonenkov/retailpos/internal/service/catalog"
	"github.com/vladislavdragonenkov/retailpos/internal/service/checkout"
	"github.com/vladislavdragonenkov/retailpos/internal/service/inventory"
	"github.com/vladislavdragonenkov/retailpos/internal/service/orders"
)

// Запросы совпадают с запросами доменных сервисов.
type (
	CheckoutRequest      = checkout.Request
	PlaceOrderRequest    = orders.PlaceOrderRequest
	AdjustStockRequest   = inventory.AdjustStockRequest
	CreateProductRequest = catalog.CreateProductRequest
)

type UpdateOrderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type ListOrdersRequest struct {
	Status   string `json:"status,omitempty"`
	PageSize int32  `json:"page_size,omitempty"`
}

type GetOrderTimelineRequest struct {
	OrderID string `json:"order_id"`
}

type ReleaseReservationsRequest struct {
	OrderID string `json:"order_id"`
}

type ListStockRequest struct {
	ProductID string `json:"product_id"`
}

type GetProductRequest struct {
	ProductID string `json:"product_id"`
}

type GetSaleRequest struct {
	SaleID string `json:"sale_id"`
}

type SalesReportRequest struct {
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	LocationID string    `json:"location_id,omitempty"`
}

type SaleResponse struct {
	Sale *Sale `json:"sale"`
}

type OrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderResponse struct {
	Order    *Order           `json:"order"`
	Timeline []*TimelineEvent `json:"timeline,omitempty"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

type GetOrderTimelineResponse struct {
	Events []*TimelineEvent `json:"events"`
}

type ReleaseReservationsResponse struct {
	OrderID  string `json:"order_id"`
	Released int32  `json:"released"`
}

type StockRecordResponse struct {
	Record *StockRecord `json:"record"`
}

type ListStockResponse struct {
	Records []*StockRecord `json:"records"`
}

type ProductResponse struct {
	Product *Product `json:"product"`
}

type SalesReportResponse struct {
	Report domain.SalesReport `json:"report"`
}

// Sale — продажа в ответах API.
type Sale struct {
	ID              string          `json:"id"`
	LocationID      string          `json:"location_id"`
	SellerID        string          `json:"seller_id"`
	CustomerName    string          `json:"customer_name,omitempty"`
	Channel         string          `json:"channel"`
	PaymentMethod   string          `json:"payment_method"`
	OrderID         string          `json:"order_id,omitempty"`
	SubtotalMinor   int64           `json:"subtotal_minor"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountMinor   int64           `json:"discount_minor"`
	TotalMinor      int64           `json:"total_minor"`
	Items           []*SaleItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
}

type SaleItem struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	Size           string `json:"size,omitempty"`
	Color          string `json:"color,omitempty"`
	LocationID     string `json:"location_id"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	SubtotalMinor  int64  `json:"subtotal_minor"`
}

// Order — онлайн-заказ в ответах API.
type Order struct {
	ID               string       `json:"id"`
	LocationID       string       `json:"location_id,omitempty"`
	Status           string       `json:"status"`
	CustomerName     string       `json:"customer_name"`
	CustomerEmail    string       `json:"customer_email,omitempty"`
	CustomerPhone    string       `json:"customer_phone,omitempty"`
	ShippingAddress  string       `json:"shipping_address,omitempty"`
	DeliveryMethod   string       `json:"delivery_method,omitempty"`
	PaymentMethod    string       `json:"payment_method"`
	PaymentProofURL  string       `json:"payment_proof_url,omitempty"`
	Notes            string       `json:"notes,omitempty"`
	FulfillmentNotes string       `json:"fulfillment_notes,omitempty"`
	AmountMinor      int64        `json:"amount_minor"`
	Items            []*OrderItem `json:"items"`
	ManagedBy        string       `json:"managed_by,omitempty"`
	ManagedAt        *time.Time   `json:"managed_at,omitempty"`
	CancelledAt      *time.Time   `json:"cancelled_at,omitempty"`
	Version          int64        `json:"version"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

type OrderItem struct {
	ProductID  string `json:"product_id"`
	SKU        string `json:"sku"`
	Size       string `json:"size,omitempty"`
	Color      string `json:"color,omitempty"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type TimelineEvent struct {
	From     string    `json:"from,omitempty"`
	To       string    `json:"to"`
	Reason   string    `json:"reason,omitempty"`
	ActorID  string    `json:"actor_id,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type StockRecord struct {
	ProductID  string    `json:"product_id"`
	LocationID string    `json:"location_id"`
	Size       string    `json:"size,omitempty"`
	Color      string    `json:"color,omitempty"`
	Quantity   int32     `json:"quantity"`
	MinStock   int32     `json:"min_stock"`
	Low        bool      `json:"low"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceMinor int64     `json:"price_minor"`
	CostMinor  int64     `json:"cost_minor"`
	Sizes      []string  `json:"sizes,omitempty"`
	Colors     []string  `json:"colors,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

func toWireSale(sale domain.Sale) *Sale {
	items := make([]*SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		items = append(items, &SaleItem{
			ProductID:      item.ProductID,
			SKU:            item.SKU,
			Size:           item.Size,
			Color:          item.Color,
			LocationID:     item.LocationID,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			SubtotalMinor:  item.SubtotalMinor,
		})
	}
	return &Sale{
		ID:              sale.ID,
		LocationID:      sale.LocationID,
		SellerID:        sale.SellerID,
		CustomerName:    sale.CustomerName,
		Channel:         string(sale.Channel),
		PaymentMethod:   string(sale.PaymentMethod),
		OrderID:         sale.OrderID,
		SubtotalMinor:   sale.SubtotalMinor,
		DiscountPercent: sale.DiscountPercent,
		DiscountMinor:   sale.DiscountMinor,
		TotalMinor:      sale.TotalMinor,
		Items:           items,
		CreatedAt:       sale.CreatedAt,
	}
}

func toWireOrder(order domain.Order) *Order {
	items := make([]*OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, &OrderItem{
			ProductID:  item.ProductID,
			SKU:        item.SKU,
			Size:       item.Size,
			Color:      item.Color,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return &Order{
		ID:               order.ID,
		LocationID:       order.LocationID,
		Status:           string(order.Status),
		CustomerName:     order.CustomerName,
		CustomerEmail:    order.CustomerEmail,
		CustomerPhone:    order.CustomerPhone,
		ShippingAddress:  order.ShippingAddress,
		DeliveryMethod:   order.DeliveryMethod,
		PaymentMethod:    string(order.PaymentMethod),
		PaymentProofURL:  order.PaymentProofURL,
		Notes:            order.Notes,
		FulfillmentNotes: order.FulfillmentNotes,
		AmountMinor:      order.AmountMinor,
		Items:            items,
		ManagedBy:        order.ManagedBy,
		ManagedAt:        optionalTime(order.ManagedAt),
		CancelledAt:      optionalTime(order.CancelledAt),
		Version:          order.Version,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}

func toWireTimeline(events []domain.TimelineEvent) []*TimelineEvent {
	out := make([]*TimelineEvent, 0, len(events))
	for _, event := range events {
		out = append(out, &TimelineEvent{
			From:     string(event.From),
			To:       string(event.To),
			Reason:   event.Reason,
			ActorID:  event.ActorID,
			Occurred: event.Occurred,
		})
	}
	return out
}

func toWireStock(rec domain.InventoryRecord) *StockRecord {
	return &StockRecord{
		ProductID:  rec.ProductID,
		LocationID: rec.LocationID,
		Size:       rec.Size,
		Color:      rec.Color,
		Quantity:   rec.Quantity,
		MinStock:   rec.MinStock,
		Low:        rec.IsLow(),
		UpdatedAt:  rec.UpdatedAt,
	}
}

func toWireProduct(p domain.Product) *Product {
	return &Product{
		ID:         p.ID,
		SKU:        p.SKU,
		Name:       p.Name,
		PriceMinor: p.PriceMinor,
		CostMinor:  p.CostMinor,
		Sizes:      p.Sizes,
		Colors:     p.Colors,
		Active:     p.Active,
		CreatedAt:  p.CreatedAt,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
