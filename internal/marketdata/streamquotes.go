package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

const defaultQuoteMaxAge = 30 * time.Second

// StreamQuotes layers the websocket quote stream over the REST client.
// FetchQuote serves the most recent streamed quote while it is fresh and
// falls back to REST otherwise, so in-window exit checks see sub-tick
// prices without extra REST calls. Tickers are subscribed lazily on first
// fetch.
type StreamQuotes struct {
	client *Client
	stream *Stream
	maxAge time.Duration
	logger *zap.Logger

	mu     sync.RWMutex
	latest map[string]*types.Quote

	wg sync.WaitGroup
}

// NewStreamQuotes creates the stream-backed quote source.
func NewStreamQuotes(client *Client, stream *Stream, maxAge time.Duration, logger *zap.Logger) *StreamQuotes {
	if maxAge == 0 {
		maxAge = defaultQuoteMaxAge
	}

	return &StreamQuotes{
		client: client,
		stream: stream,
		maxAge: maxAge,
		logger: logger,
		latest: make(map[string]*types.Quote),
	}
}

// Start begins consuming stream updates. The stream itself must be
// started separately.
func (s *StreamQuotes) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.consume(ctx)
}

// Close waits for the consumer goroutine to exit.
func (s *StreamQuotes) Close() {
	s.wg.Wait()
}

func (s *StreamQuotes) consume(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case quote, ok := <-s.stream.Updates():
			if !ok {
				return
			}
			s.mu.Lock()
			s.latest[quote.Ticker] = quote
			s.mu.Unlock()
		}
	}
}

// FetchQuote returns the streamed quote when fresh, otherwise the REST
// quote. Either way the ticker joins the stream's watch set.
func (s *StreamQuotes) FetchQuote(ctx context.Context, ticker string) (*types.Quote, error) {
	s.mu.RLock()
	cached, ok := s.latest[ticker]
	s.mu.RUnlock()

	if ok && time.Since(cached.FetchedAt) <= s.maxAge {
		StreamQuoteServedTotal.Inc()
		copied := *cached
		return &copied, nil
	}

	s.stream.Subscribe(ticker)
	return s.client.FetchQuote(ctx, ticker)
}

// FindMarketForTeam delegates to the REST client.
func (s *StreamQuotes) FindMarketForTeam(ctx context.Context, f *types.Fixture, side types.FixtureSide) (string, error) {
	return s.client.FindMarketForTeam(ctx, f, side)
}
