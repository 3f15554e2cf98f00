package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "retail.v1.RetailService"

// RetailServiceServer — контракт сервера RetailService.
type RetailServiceServer interface {
	Checkout(context.Context, *CheckoutRequest) (*SaleResponse, error)
	PlaceOrder(context.Context, *PlaceOrderRequest) (*OrderResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*OrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	GetOrderTimeline(context.Context, *GetOrderTimelineRequest) (*GetOrderTimelineResponse, error)
	ReleaseReservations(context.Context, *ReleaseReservationsRequest) (*ReleaseReservationsResponse, error)
	AdjustStock(context.Context, *AdjustStockRequest) (*StockRecordResponse, error)
	ListStock(context.Context, *ListStockRequest) (*ListStockResponse, error)
	CreateProduct(context.Context, *CreateProductRequest) (*ProductResponse, error)
	GetProduct(context.Context, *GetProductRequest) (*ProductResponse, error)
	GetSale(context.Context, *GetSaleRequest) (*SaleResponse, error)
	SalesReport(context.Context, *SalesReportRequest) (*SalesReportResponse, error)
}

// RegisterRetailServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterRetailServiceServer(registrar grpc.ServiceRegistrar, srv RetailServiceServer) {
	registrar.RegisterService(&RetailServiceDesc, srv)
}

// RetailServiceDesc описывает методы сервиса для gRPC-рантайма.
var RetailServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RetailServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Checkout", Handler: unaryHandler("Checkout", RetailServiceServer.Checkout)},
		{MethodName: "PlaceOrder", Handler: unaryHandler("PlaceOrder", RetailServiceServer.PlaceOrder)},
		{MethodName: "UpdateOrderStatus", Handler: unaryHandler("UpdateOrderStatus", RetailServiceServer.UpdateOrderStatus)},
		{MethodName: "GetOrder", Handler: unaryHandler("GetOrder", RetailServiceServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler("ListOrders", RetailServiceServer.ListOrders)},
		{MethodName: "GetOrderTimeline", Handler: unaryHandler("GetOrderTimeline", RetailServiceServer.GetOrderTimeline)},
		{MethodName: "ReleaseReservations", Handler: unaryHandler("ReleaseReservations", RetailServiceServer.ReleaseReservations)},
		{MethodName: "AdjustStock", Handler: unaryHandler("AdjustStock", RetailServiceServer.AdjustStock)},
		{MethodName: "ListStock", Handler: unaryHandler("ListStock", RetailServiceServer.ListStock)},
		{MethodName: "CreateProduct", Handler: unaryHandler("CreateProduct", RetailServiceServer.CreateProduct)},
		{MethodName: "GetProduct", Handler: unaryHandler("GetProduct", RetailServiceServer.GetProduct)},
		{MethodName: "GetSale", Handler: unaryHandler("GetSale", RetailServiceServer.GetSale)},
		{MethodName: "SalesReport", Handler: unaryHandler("SalesReport", RetailServiceServer.SalesReport)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "retail/v1/retail.json",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Req, Resp any](
	method string,
	call func(RetailServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RetailServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RetailServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RetailServiceClient — клиент RetailService поверх JSON-кодека.
type RetailServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRetailServiceClient создаёт клиента.
func NewRetailServiceClient(cc grpc.ClientConnInterface) *RetailServiceClient {
	return &RetailServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *RetailServiceClient, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RetailServiceClient) Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*SaleResponse, error) {
	return invoke[SaleResponse](ctx, c, "Checkout", in, opts)
}

func (c *RetailServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "PlaceOrder", in, opts)
}

func (c *RetailServiceClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "UpdateOrderStatus", in, opts)
}

func (c *RetailServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c, "GetOrder", in, opts)
}

func (c *RetailServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c, "ListOrders", in, opts)
}

func (c *RetailServiceClient) GetOrderTimeline(ctx context.Context, in *GetOrderTimelineRequest, opts ...grpc.CallOption) (*GetOrderTimelineResponse, error) {
	return invoke[GetOrderTimelineResponse](ctx, c, "GetOrderTimeline", in, opts)
}

func (c *RetailServiceClient) ReleaseReservations(ctx context.Context, in *ReleaseReservationsRequest, opts ...grpc.CallOption) (*ReleaseReservationsResponse, error) {
	return invoke[ReleaseReservationsResponse](ctx, c, "ReleaseReservations", in, opts)
}

func (c *RetailServiceClient) AdjustStock(ctx context.Context, in *AdjustStockRequest, opts ...grpc.CallOption) (*StockRecordResponse, error) {
	return invoke[StockRecordResponse](ctx, c, "AdjustStock", in, opts)
}

func (c *RetailServiceClient) ListStock(ctx context.Context, in *ListStockRequest, opts ...grpc.CallOption) (*ListStockResponse, error) {
	return invoke[ListStockResponse](ctx, c, "ListStock", in, opts)
}

func (c *RetailServiceClient) CreateProduct(ctx context.Context, in *CreateProductRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c, "CreateProduct", in, opts)
}

func (c *RetailServiceClient) GetProduct(ctx context.Context, in *GetProductRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c, "GetProduct", in, opts)
}

func (c *RetailServiceClient) GetSale(ctx context.Context, in *GetSaleRequest, opts ...grpc.CallOption) (*SaleResponse, error) {
	return invoke[SaleResponse](ctx, c, "GetSale", in, opts)
}

func (c *RetailServiceClient) SalesReport(ctx context.Context, in *SalesReportRequest, opts ...grpc.CallOption) (*SalesReportResponse, error) {
	return invoke[SalesReportResponse](ctx, c, "SalesReport", in, opts)
}
