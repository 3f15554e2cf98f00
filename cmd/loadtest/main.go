// Команда loadtest нагружает RetailService сценариями продаж и онлайн-заказов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/retailpos/internal/auth"
	"github.com/vladislavdragonenkov/retailpos/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/retailpos/internal/service/grpc"
)

const (
	idempotencyHeader = "idempotency-key"
	jwtSecretEnv      = "RETAIL_JWT_SECRET"
	tokenEnv          = "RETAIL_LOADTEST_TOKEN"
	cancelReason      = "cliente no pagó"
)

type loadMode string

const (
	modeCheckout      loadMode = "checkout"
	modeOrder         loadMode = "order"
	modeOrderCancel   loadMode = "order-cancel"
	modeOrderComplete loadMode = "order-complete"
)

type config struct {
	addr          string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	connections   int
	timeout       time.Duration
	mode          loadMode
	cancelRate    int
	productID     string
	size          string
	color         string
	qty           int
	paymentMethod domain.PaymentMethod
	customerTag   string
	token         string
	jwtSecret     string
	userID        string
	outputPath    string
}

// retailClient — подмножество RetailServiceClient, которое использует нагрузка.
type retailClient interface {
	Checkout(ctx context.Context, in *grpcsvc.CheckoutRequest, opts ...grpc.CallOption) (*grpcsvc.SaleResponse, error)
	PlaceOrder(ctx context.Context, in *grpcsvc.PlaceOrderRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	UpdateOrderStatus(ctx context.Context, in *grpcsvc.UpdateOrderStatusRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg           config
		modeValue     string
		paymentMethod string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | order | order-cancel | order-complete")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for order-complete mode (0..100)")
	fs.StringVar(&cfg.productID, "product-id", "", "product to sell or order")
	fs.StringVar(&cfg.size, "size", "", "product size")
	fs.StringVar(&cfg.color, "color", "", "product color")
	fs.IntVar(&cfg.qty, "qty", 1, "units per scenario")
	fs.StringVar(&paymentMethod, "payment-method", string(domain.PaymentMethodCash), "cash | card | transfer | qr")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer name prefix for orders")
	fs.StringVar(&cfg.token, "token", "", "bearer token (fallback: "+tokenEnv+")")
	fs.StringVar(&cfg.jwtSecret, "jwt-secret", "", "sign a token locally with this secret (fallback: "+jwtSecretEnv+")")
	fs.StringVar(&cfg.userID, "user-id", "", "user id for a locally signed token")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	cfg.paymentMethod = domain.PaymentMethod(strings.TrimSpace(paymentMethod))
	if !cfg.paymentMethod.Valid() {
		return cfg, fmt.Errorf("unsupported payment-method: %s", paymentMethod)
	}

	if cfg.token == "" {
		cfg.token = strings.TrimSpace(getenv(tokenEnv))
	}
	if cfg.jwtSecret == "" {
		cfg.jwtSecret = getenv(jwtSecretEnv)
	}

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.qty <= 0 {
		return cfg, errors.New("qty must be > 0")
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.productID) == "" {
		return cfg, errors.New("product-id is required")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}
	if cfg.token == "" && (cfg.jwtSecret == "" || cfg.userID == "") {
		return cfg, errors.New("token or jwt-secret with user-id is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCheckout, modeOrder, modeOrderCancel, modeOrderComplete:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// resolveToken возвращает готовый токен или подписывает новый секретом сервиса.
func resolveToken(cfg config) (string, error) {
	if cfg.token != "" {
		return cfg.token, nil
	}
	issuer, err := auth.NewIssuer(cfg.jwtSecret, time.Hour)
	if err != nil {
		return "", err
	}
	return issuer.Issue(auth.Claims{UserID: cfg.userID})
}

func main() {
	_ = godotenv.Load()

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(cfg, os.Stdout)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func run(cfg config, out io.Writer) (report, error) {
	token, err := resolveToken(cfg)
	if err != nil {
		return report{}, fmt.Errorf("resolve token: %w", err)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]retailClient, 0, cfg.connections)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			return report{}, fmt.Errorf("create grpc client connection: %w", dialErr)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewRetailServiceClient(conn))
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	sc := scenario{cfg: cfg, token: token, runID: runID, col: col}

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli retailClient) {
			defer wg.Done()
			for id := range jobs {
				if runErr := sc.run(cli, id); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt), cfg.mode)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(out, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return result, fmt.Errorf("write report: %w", err)
		}
	}

	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// scenario выполняет один прогон выбранного режима и пишет замеры в collector.
type scenario struct {
	cfg   config
	token string
	runID string
	col   *collector
}

func (s scenario) run(client retailClient, index int) (err error) {
	started := time.Now()
	defer func() {
		code := grpcCode(err)
		if err != nil && code == codes.Unknown {
			code = codes.Internal
		}
		s.col.record(scenarioMethod, time.Since(started), code)
	}()

	if s.cfg.mode == modeCheckout {
		return s.checkout(client, index)
	}

	orderID, err := s.placeOrder(client, index)
	if err != nil {
		return err
	}

	switch s.cfg.mode {
	case modeOrderCancel:
		return s.transition(client, orderID, domain.OrderStatusCancelled, cancelReason)
	case modeOrderComplete:
		if err := s.transition(client, orderID, domain.OrderStatusConfirmed, ""); err != nil {
			return err
		}
		if shouldCancelScenario(index, s.cfg.cancelRate) {
			return s.transition(client, orderID, domain.OrderStatusCancelled, cancelReason)
		}
		if err := s.transition(client, orderID, domain.OrderStatusShipped, ""); err != nil {
			return err
		}
		return s.transition(client, orderID, domain.OrderStatusCompleted, "")
	default:
		return nil
	}
}

func (s scenario) line() domain.CartLine {
	return domain.CartLine{
		ProductID: s.cfg.productID,
		Qty:       int32(s.cfg.qty), // #nosec G115 -- qty ограничен флагом
		Size:      s.cfg.size,
		Color:     s.cfg.color,
	}
}

func (s scenario) callContext(key string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.timeout)
	pairs := []string{auth.AuthorizationMetadataKey, "Bearer " + s.token}
	if key != "" {
		pairs = append(pairs, idempotencyHeader, key)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...), cancel
}

func (s scenario) checkout(client retailClient, index int) error {
	ctx, cancel := s.callContext(fmt.Sprintf("lt-checkout-%s-%d", s.runID, index))
	defer cancel()

	start := time.Now()
	resp, err := client.Checkout(ctx, &grpcsvc.CheckoutRequest{
		Cart:          domain.Cart{Lines: []domain.CartLine{s.line()}},
		PaymentMethod: s.cfg.paymentMethod,
	})
	s.col.record("Checkout", time.Since(start), grpcCode(err))
	if err != nil {
		return err
	}
	if resp.Sale == nil || resp.Sale.ID == "" {
		return status.Error(codes.Internal, "checkout response returned empty sale id")
	}

	var units int64
	for _, item := range resp.Sale.Items {
		units += int64(item.Qty)
	}
	s.col.recordSale(units, resp.Sale.TotalMinor)
	return nil
}

func (s scenario) placeOrder(client retailClient, index int) (string, error) {
	ctx, cancel := s.callContext(fmt.Sprintf("lt-order-%s-%d", s.runID, index))
	defer cancel()

	start := time.Now()
	resp, err := client.PlaceOrder(ctx, &grpcsvc.PlaceOrderRequest{
		CustomerName:  fmt.Sprintf("%s-%s-%d", s.cfg.customerTag, s.runID, index),
		CustomerEmail: fmt.Sprintf("%s+%d@example.com", s.cfg.customerTag, index),
		PaymentMethod: s.cfg.paymentMethod,
		Items:         []domain.CartLine{s.line()},
	})
	s.col.record("PlaceOrder", time.Since(start), grpcCode(err))
	if err != nil {
		return "", err
	}
	if resp.Order == nil || resp.Order.ID == "" {
		return "", status.Error(codes.Internal, "place order response returned empty order id")
	}
	return resp.Order.ID, nil
}

func (s scenario) transition(client retailClient, orderID string, target domain.OrderStatus, reason string) error {
	ctx, cancel := s.callContext("")
	defer cancel()

	start := time.Now()
	resp, err := client.UpdateOrderStatus(ctx, &grpcsvc.UpdateOrderStatusRequest{
		OrderID: orderID,
		Status:  string(target),
		Reason:  reason,
	})
	s.col.record("UpdateOrderStatus", time.Since(start), grpcCode(err))
	if err != nil {
		return err
	}
	if resp.Order == nil || resp.Order.Status != string(target) {
		return status.Errorf(codes.Internal, "order %s did not move to %s", orderID, target)
	}
	return nil
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
