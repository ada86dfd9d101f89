package gateway

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// KalshiGateway places orders against the Kalshi trade API. Requests are
// signed with RSA-PSS over timestamp+method+path per the venue's API key
// scheme and throttled with a client-side rate limiter.
type KalshiGateway struct {
	baseURL string
	keyID   string
	key     *rsa.PrivateKey
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// KalshiConfig holds live gateway configuration.
type KalshiConfig struct {
	BaseURL        string
	APIKeyID       string
	PrivateKeyPath string
	Timeout        time.Duration
	Logger         *zap.Logger
}

// NewKalshi creates a live Kalshi gateway, loading the RSA private key
// from the configured PEM file.
func NewKalshi(cfg KalshiConfig) (*KalshiGateway, error) {
	key, err := loadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &KalshiGateway{
		baseURL: cfg.BaseURL,
		keyID:   cfg.APIKeyID,
		key:     key,
		client:  &http.Client{Timeout: timeout},
		// Kalshi allows 10 writes/s on the basic tier.
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		logger:  cfg.Logger,
	}, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key in %s is not RSA", path)
	}

	return key, nil
}

// sign produces the request signature: RSA-PSS over SHA-256 of
// timestamp+method+path, base64 encoded.
func (g *KalshiGateway) sign(timestamp, method, path string) (string, error) {
	digest := sha256.Sum256([]byte(timestamp + method + path))

	sig, err := rsa.SignPSS(rand.Reader, g.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

func (g *KalshiGateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := g.baseURL + path
	parsed, err := url.Parse(fullURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature, err := g.sign(timestamp, method, parsed.Path)
	if err != nil {
		return err
	}

	req.Header.Set("KALSHI-ACCESS-KEY", g.keyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", signature)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	VenueRequestDurationSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		VenueRequestsTotal.WithLabelValues(method, "error").Inc()
		return types.Retryable("venue request", err)
	}
	defer resp.Body.Close()

	VenueRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotFound {
		return types.ErrOrderNotFound
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return types.Retryable("venue request", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("venue rejected request: status %d: %s", resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

type orderPayload struct {
	Action        string `json:"action"`
	ClientOrderID string `json:"client_order_id"`
	Count         int    `json:"count"`
	Side          string `json:"side"`
	Ticker        string `json:"ticker"`
	Type          string `json:"type"`
	YesPrice      int    `json:"yes_price,omitempty"`
}

type orderResponse struct {
	Order struct {
		OrderID        string `json:"order_id"`
		Status         string `json:"status"`
		InitialCount   int    `json:"initial_count"`
		RemainingCount int    `json:"remaining_count"`
		TakerFillCost  int    `json:"taker_fill_cost"`
		TakerFillCount int    `json:"taker_fill_count"`
	} `json:"order"`
}

// PlaceLimit places a resting yes-side limit buy.
func (g *KalshiGateway) PlaceLimit(ctx context.Context, order *types.Order) (types.OrderHandle, error) {
	payload := orderPayload{
		Action:        "buy",
		ClientOrderID: order.ClientID,
		Count:         order.Contracts,
		Side:          "yes",
		Ticker:        order.Ticker,
		Type:          "limit",
		YesPrice:      order.PriceCents,
	}

	var resp orderResponse
	err := g.do(ctx, http.MethodPost, "/portfolio/orders", payload, &resp)
	if err != nil {
		return "", fmt.Errorf("place limit order: %w", err)
	}

	g.logger.Info("venue-order-placed",
		zap.String("ticker", order.Ticker),
		zap.String("order-id", resp.Order.OrderID),
		zap.Int("yes-price", order.PriceCents),
		zap.Int("count", order.Contracts))

	return types.OrderHandle(resp.Order.OrderID), nil
}

// Cancel cancels a resting order. An order the venue no longer knows is
// treated as already cancelled.
func (g *KalshiGateway) Cancel(ctx context.Context, handle types.OrderHandle) error {
	err := g.do(ctx, http.MethodDelete, "/portfolio/orders/"+string(handle), nil, nil)
	if err != nil && !errors.Is(err, types.ErrOrderNotFound) {
		return fmt.Errorf("cancel order %s: %w", handle, err)
	}
	return nil
}

// FillStatus reports the order's fill count and state.
func (g *KalshiGateway) FillStatus(ctx context.Context, handle types.OrderHandle) (int, types.FillState, error) {
	var resp orderResponse
	err := g.do(ctx, http.MethodGet, "/portfolio/orders/"+string(handle), nil, &resp)
	if err != nil {
		return 0, "", fmt.Errorf("fill status %s: %w", handle, err)
	}

	filled := resp.Order.InitialCount - resp.Order.RemainingCount
	if filled < 0 {
		filled = 0
	}

	var state types.FillState
	switch resp.Order.Status {
	case "executed":
		state = types.FillStateFilled
	case "canceled", "cancelled":
		state = types.FillStateCancelled
	default:
		if filled > 0 {
			state = types.FillStatePartiallyFilled
		} else {
			state = types.FillStateOpen
		}
	}

	return filled, state, nil
}

// Sell market-sells contracts and returns the average exit price.
func (g *KalshiGateway) Sell(ctx context.Context, ticker string, contracts, fallbackCents int) (int, error) {
	payload := orderPayload{
		Action:        "sell",
		ClientOrderID: newClientID(),
		Count:         contracts,
		Side:          "yes",
		Ticker:        ticker,
		Type:          "market",
	}

	var resp orderResponse
	err := g.do(ctx, http.MethodPost, "/portfolio/orders", payload, &resp)
	if err != nil {
		return 0, fmt.Errorf("market sell: %w", err)
	}

	exitCents := fallbackCents
	if resp.Order.TakerFillCount > 0 {
		exitCents = resp.Order.TakerFillCost / resp.Order.TakerFillCount
	}

	g.logger.Info("venue-position-sold",
		zap.String("ticker", ticker),
		zap.Int("contracts", contracts),
		zap.Int("exit-cents", exitCents))

	return exitCents, nil
}
