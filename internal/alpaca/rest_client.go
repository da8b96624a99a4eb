// Package alpaca implements broker.Gateway on top of the Alpaca trading REST API.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voice-trading-assistant-go/internal/broker"
	"voice-trading-assistant-go/internal/config"
	"voice-trading-assistant-go/internal/intent"
)

const (
	paperBaseURL = "https://paper-api.alpaca.markets"

	headerKeyID  = "APCA-API-KEY-ID"
	headerSecret = "APCA-API-SECRET-KEY"

	statusAccepted  = "accepted"
	statusSimulated = "simulated"
)

// ErrNotConfigured is returned by write operations in simulated mode.
var ErrNotConfigured = errors.New("alpaca credentials not configured")

// RestClient talks to Alpaca. Without credentials it runs in simulated mode:
// orders are synthesized locally and reads return a fixed demo book.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
	now       func() time.Time
}

var _ broker.Gateway = (*RestClient)(nil)

// NewRestClient creates a new Alpaca REST API client.
func NewRestClient(cfg config.Alpaca, logger *zap.Logger) *RestClient {
	url := cfg.BaseURL
	if url == "" {
		url = paperBaseURL
	}
	logger = logger.Named("alpaca")

	c := &RestClient{
		client:    resty.New().SetBaseURL(strings.TrimRight(url, "/")),
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   newLimiter(cfg.RateLimit, cfg.RateLimitBurst),
		now:       time.Now,
	}
	if c.Simulated() {
		logger.Warn("Alpaca credentials missing, using simulated trading (no real orders will be placed)")
	} else {
		logger.Info("Alpaca API configured", zap.String("base_url", url))
	}
	return c
}

func newLimiter(limit float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	if limit <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

// Simulated reports whether the client runs without live credentials.
func (c *RestClient) Simulated() bool {
	return c.apiKey == "" || c.secretKey == ""
}

func (c *RestClient) request(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetHeader(headerKeyID, c.apiKey).
		SetHeader(headerSecret, c.secretKey).
		SetHeader("Content-Type", "application/json")
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			switch {
			case statusCode == http.StatusNotFound:
				return nil, fmt.Errorf("%w: %s %s", broker.ErrNotFound, method, url)
			case statusCode == http.StatusTooManyRequests:
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case statusCode >= 500:
				shouldRetry = true
			}
		} else if ctx.Err() == nil {
			shouldRetry = true
		}

		if !shouldRetry {
			if err != nil {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err == nil {
		err = fmt.Errorf("status %s", resp.Status())
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

type orderRequest struct {
	Symbol        string           `json:"symbol"`
	Qty           string           `json:"qty"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	TimeInForce   string           `json:"time_in_force"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	ClientOrderID string           `json:"client_order_id"`
}

func newOrderRequest(in intent.TradeIntent) orderRequest {
	tif := in.TimeInForce
	if tif == "" {
		tif = intent.TimeInForceDay
	}
	orderType := in.OrderType
	if orderType == "" {
		orderType = intent.OrderTypeMarket
	}
	req := orderRequest{
		Symbol:        strings.ToUpper(in.Symbol),
		Qty:           strconv.Itoa(in.Quantity),
		Side:          strings.ToLower(string(in.Side)),
		Type:          string(orderType),
		TimeInForce:   string(tif),
		ClientOrderID: uuid.NewString(),
	}
	if orderType == intent.OrderTypeLimit && in.LimitPrice > 0 {
		p := decimal.NewFromFloat(in.LimitPrice)
		req.LimitPrice = &p
	}
	if orderType == intent.OrderTypeStop && in.StopPrice > 0 {
		p := decimal.NewFromFloat(in.StopPrice)
		req.StopPrice = &p
	}
	return req
}

// CreateOrder submits the order. When the brokerage rejects it, a simulated
// record carrying the error is returned instead of failing.
func (c *RestClient) CreateOrder(ctx context.Context, in intent.TradeIntent) (*broker.Order, error) {
	body := newOrderRequest(in)

	if c.Simulated() {
		c.logger.Info("Simulating order creation", zap.String("symbol", body.Symbol), zap.String("side", body.Side))
		return c.simulatedOrder(body, statusAccepted, ""), nil
	}

	req := c.request(ctx).
		SetBody(body).
		SetResult(&broker.Order{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/v2/orders", req)
	if err != nil {
		c.logger.Error("Failed to create order, returning simulated record",
			zap.Error(err),
			zap.String("symbol", body.Symbol),
		)
		return c.simulatedOrder(body, statusSimulated, err.Error()), nil
	}

	result := resp.Result().(*broker.Order)
	c.logger.Info("Successfully created order", zap.String("id", result.ID), zap.String("symbol", result.Symbol))
	return result, nil
}

func (c *RestClient) simulatedOrder(req orderRequest, status, errMsg string) *broker.Order {
	qty, _ := decimal.NewFromString(req.Qty)
	return &broker.Order{
		ID:            "sim-" + uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Qty:           qty,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		Status:        status,
		CreatedAt:     c.now().UTC(),
		Simulated:     true,
		Error:         errMsg,
	}
}

func (c *RestClient) listOrders(ctx context.Context, status string, limit int) ([]broker.Order, error) {
	var orders []broker.Order
	req := c.request(ctx).
		SetQueryParam("status", status).
		SetQueryParam("direction", "desc").
		SetResult(&orders)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/v2/orders", req)
	if err != nil {
		return nil, err
	}
	return *resp.Result().(*[]broker.Order), nil
}

// GetOpenOrders returns open orders, or an empty list when the brokerage is unreachable.
func (c *RestClient) GetOpenOrders(ctx context.Context) ([]broker.Order, error) {
	if c.Simulated() {
		return []broker.Order{}, nil
	}
	orders, err := c.listOrders(ctx, "open", 0)
	if err != nil {
		c.logger.Error("Failed to get open orders", zap.Error(err))
		return []broker.Order{}, nil
	}
	return orders, nil
}

// GetAllOrders returns up to limit orders of any status, most recent first.
func (c *RestClient) GetAllOrders(ctx context.Context, limit int) ([]broker.Order, error) {
	if c.Simulated() {
		return []broker.Order{}, nil
	}
	orders, err := c.listOrders(ctx, "all", limit)
	if err != nil {
		c.logger.Error("Failed to get orders", zap.Error(err), zap.Int("limit", limit))
		return []broker.Order{}, nil
	}
	return orders, nil
}

// CancelOrder cancels a single order.
func (c *RestClient) CancelOrder(ctx context.Context, orderID string) error {
	if c.Simulated() {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, ErrNotConfigured)
	}
	if _, err := c.doRequest(ctx, http.MethodDelete, "/v2/orders/"+orderID, c.request(ctx)); err != nil {
		c.logger.Error("Failed to cancel order", zap.Error(err), zap.String("order_id", orderID))
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	c.logger.Info("Cancelled order", zap.String("order_id", orderID))
	return nil
}

// CancelOrdersBySymbol cancels every open order for symbol concurrently. Any
// single failure fails the whole batch.
func (c *RestClient) CancelOrdersBySymbol(ctx context.Context, symbol string) ([]broker.Order, error) {
	if c.Simulated() {
		return []broker.Order{}, nil
	}

	open, err := c.listOrders(ctx, "open", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel orders for %s: %w", symbol, err)
	}

	matched := make([]broker.Order, 0, len(open))
	for _, o := range open {
		if strings.EqualFold(o.Symbol, symbol) {
			matched = append(matched, o)
		}
	}

	p := pool.New().WithErrors().WithContext(ctx)
	for _, o := range matched {
		p.Go(func(ctx context.Context) error {
			return c.CancelOrder(ctx, o.ID)
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("failed to cancel orders for %s: %w", symbol, err)
	}
	return matched, nil
}

// GetPositions returns all open positions.
func (c *RestClient) GetPositions(ctx context.Context) ([]broker.Position, error) {
	if c.Simulated() {
		return demoPositions(), nil
	}

	var positions []broker.Position
	resp, err := c.doRequest(ctx, http.MethodGet, "/v2/positions", c.request(ctx).SetResult(&positions))
	if err != nil {
		c.logger.Error("Failed to get positions", zap.Error(err))
		return []broker.Position{}, nil
	}
	return *resp.Result().(*[]broker.Position), nil
}

// GetPosition returns the position for symbol, or nil when there is none or
// the brokerage is unreachable.
func (c *RestClient) GetPosition(ctx context.Context, symbol string) (*broker.Position, error) {
	if c.Simulated() {
		return nil, nil
	}

	symbol = strings.ToUpper(symbol)
	resp, err := c.doRequest(ctx, http.MethodGet, "/v2/positions/"+symbol, c.request(ctx).SetResult(&broker.Position{}))
	if err != nil {
		if !errors.Is(err, broker.ErrNotFound) {
			c.logger.Error("Failed to get position", zap.Error(err), zap.String("symbol", symbol))
		}
		return nil, nil
	}
	return resp.Result().(*broker.Position), nil
}

// GetAccount returns account balances. When the brokerage is unreachable a
// simulated account with status UNKNOWN is returned.
func (c *RestClient) GetAccount(ctx context.Context) (*broker.Account, error) {
	if c.Simulated() {
		return simulatedAccount("ACTIVE"), nil
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/v2/account", c.request(ctx).SetResult(&broker.Account{}))
	if err != nil {
		c.logger.Error("Failed to get account", zap.Error(err))
		return simulatedAccount("UNKNOWN"), nil
	}
	return resp.Result().(*broker.Account), nil
}

func simulatedAccount(status string) *broker.Account {
	balance := decimal.NewFromInt(100000)
	return &broker.Account{
		BuyingPower:    balance,
		Cash:           balance,
		PortfolioValue: balance,
		Status:         status,
		Simulated:      true,
	}
}
