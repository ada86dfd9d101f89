package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pucklab/nhl-reversion/pkg/cache"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const eventMarketsTTL = 10 * time.Minute

// Client fetches quotes and market listings from the venue's public
// market data API. Event market listings are cached: the set of markets
// under an event never changes between checkpoints, only their prices do.
type Client struct {
	baseURL      string
	seriesTicker string
	client       *http.Client
	cache        cache.Cache
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// Config holds market data client configuration.
type Config struct {
	BaseURL      string
	SeriesTicker string
	Timeout      time.Duration
	Cache        cache.Cache
	Logger       *zap.Logger
}

// New creates a market data client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		seriesTicker: cfg.SeriesTicker,
		client:       &http.Client{Timeout: timeout},
		cache:        cfg.Cache,
		// Reads are cheaper than writes on the venue; still be polite.
		limiter: rate.NewLimiter(rate.Limit(20), 20),
		logger:  cfg.Logger,
	}
}

type marketPayload struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	YesBid      int    `json:"yes_bid"`
	YesAsk      int    `json:"yes_ask"`
	NoBid       int    `json:"no_bid"`
	NoAsk       int    `json:"no_ask"`
	LastPrice   int    `json:"last_price"`
	Volume      int64  `json:"volume"`
}

type marketResponse struct {
	Market marketPayload `json:"market"`
}

type marketsResponse struct {
	Markets []marketPayload `json:"markets"`
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	QuoteFetchDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		QuoteFetchesTotal.WithLabelValues("error").Inc()
		return types.Retryable("market data request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		QuoteFetchesTotal.WithLabelValues("not_found").Inc()
		return fmt.Errorf("market data %s: %w", path, types.ErrDataUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		QuoteFetchesTotal.WithLabelValues("error").Inc()
		return types.Retryable("market data request", fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		QuoteFetchesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("decode response: %w", err)
	}

	QuoteFetchesTotal.WithLabelValues("ok").Inc()
	return nil
}

// FetchQuote fetches a fresh quote for a single market. Quotes are never
// cached: every checkpoint decision wants the current book.
func (c *Client) FetchQuote(ctx context.Context, ticker string) (*types.Quote, error) {
	var resp marketResponse
	err := c.get(ctx, "/markets/"+ticker, &resp)
	if err != nil {
		return nil, err
	}

	return quoteFrom(&resp.Market), nil
}

// ListEventMarkets lists markets under an event, served from cache when
// fresh.
func (c *Client) ListEventMarkets(ctx context.Context, eventTicker string) ([]types.MarketInfo, error) {
	cacheKey := "event-markets:" + eventTicker
	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			if infos, ok := cached.([]types.MarketInfo); ok {
				return infos, nil
			}
		}
	}

	var resp marketsResponse
	err := c.get(ctx, "/markets?event_ticker="+eventTicker, &resp)
	if err != nil {
		return nil, err
	}

	infos := make([]types.MarketInfo, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		infos = append(infos, types.MarketInfo{
			Ticker:      m.Ticker,
			EventTicker: m.EventTicker,
			Title:       m.Title,
		})
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, infos, eventMarketsTTL)
	}

	return infos, nil
}

// EventTickerFor derives the venue event ticker for a fixture:
// series + date fragment + away abbreviation + home abbreviation,
// e.g. KXNHLGAME-25NOV01TORBOS.
func (c *Client) EventTickerFor(f *types.Fixture) string {
	return fmt.Sprintf("%s-%s%s%s",
		c.seriesTicker,
		strings.ToUpper(f.StartTime.UTC().Format("06Jan02")),
		strings.ToUpper(f.AwayTeam),
		strings.ToUpper(f.HomeTeam))
}

// FindMarketForTeam resolves the market ticker for one side of a fixture
// by listing the event's markets and matching the team suffix.
func (c *Client) FindMarketForTeam(ctx context.Context, f *types.Fixture, side types.FixtureSide) (string, error) {
	team := f.AwayTeam
	if side == types.SideHome {
		team = f.HomeTeam
	}

	eventTicker := c.EventTickerFor(f)
	markets, err := c.ListEventMarkets(ctx, eventTicker)
	if err != nil {
		return "", fmt.Errorf("list markets for %s: %w", eventTicker, err)
	}

	suffix := "-" + strings.ToUpper(team)
	for _, m := range markets {
		if strings.HasSuffix(m.Ticker, suffix) {
			return m.Ticker, nil
		}
	}

	c.logger.Warn("market-not-found-for-team",
		zap.String("fixture-id", f.ID),
		zap.String("event-ticker", eventTicker),
		zap.String("team", team))

	return "", fmt.Errorf("no market for team %s under %s: %w", team, eventTicker, types.ErrDataUnavailable)
}

func quoteFrom(m *marketPayload) *types.Quote {
	return &types.Quote{
		Ticker:      m.Ticker,
		YesBidCents: m.YesBid,
		YesAskCents: m.YesAsk,
		NoBidCents:  m.NoBid,
		NoAskCents:  m.NoAsk,
		LastCents:   m.LastPrice,
		Volume:      m.Volume,
		FetchedAt:   time.Now().UTC(),
	}
}
