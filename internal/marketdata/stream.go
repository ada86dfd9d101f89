package marketdata

import (
	"context"
	"math/rand"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

// Stream maintains a websocket subscription to the venue's ticker channel
// and publishes quote updates. It reconnects with exponential backoff and
// jitter; the poll loop does not depend on it, so a dead stream degrades
// to REST-only quotes rather than stopping trading.
type Stream struct {
	config  StreamConfig
	logger  *zap.Logger
	updates chan *types.Quote

	mu      sync.Mutex
	tickers map[string]struct{}
	conn    *websocket.Conn
	cmdID   int
	backoff time.Duration

	wg sync.WaitGroup
}

// StreamConfig holds quote stream configuration.
type StreamConfig struct {
	URL               string
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64
	Logger            *zap.Logger
}

// NewStream creates a quote stream. Call Subscribe before Start to seed
// the ticker set; later subscriptions go out on the live connection.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.JitterPercent == 0 {
		cfg.JitterPercent = 0.2
	}

	return &Stream{
		config:  cfg,
		logger:  cfg.Logger,
		updates: make(chan *types.Quote, 256),
		tickers: make(map[string]struct{}),
		backoff: cfg.InitialDelay,
	}
}

// Subscribe adds market tickers to the stream's watch set. New tickers
// are pushed to a live connection immediately; a dead one picks up the
// full set on reconnect.
func (s *Stream) Subscribe(tickers ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, t := range tickers {
		if _, ok := s.tickers[t]; ok {
			continue
		}
		s.tickers[t] = struct{}{}
		added = append(added, t)
	}

	if s.conn == nil || len(added) == 0 {
		return
	}
	if err := s.writeSubscribeLocked(added); err != nil {
		s.logger.Warn("quote-stream-subscribe-failed",
			zap.Strings("tickers", added),
			zap.Error(err))
		// The read loop will reconnect with the full set.
		_ = s.conn.Close()
	}
}

// writeSubscribeLocked sends a subscribe command for the given tickers.
// The mutex serializes writers on the connection.
func (s *Stream) writeSubscribeLocked(tickers []string) error {
	s.cmdID++
	return s.conn.WriteJSON(subscribeCmd{
		ID:  s.cmdID,
		Cmd: "subscribe",
		Params: subscribeParams{
			Channels:      []string{"ticker_v2"},
			MarketTickers: tickers,
		},
	})
}

// Updates returns the quote update channel. Updates carry only the fields
// the ticker feed publishes; volume is a running total.
func (s *Stream) Updates() <-chan *types.Quote {
	return s.updates
}

// Start runs the stream until the context is cancelled.
func (s *Stream) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Close waits for the stream goroutine to exit.
func (s *Stream) Close() {
	s.wg.Wait()
	close(s.updates)
}

func (s *Stream) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			s.logger.Info("quote-stream-stopping")
			return
		}

		StreamReconnectsTotal.Inc()
		delay := s.nextBackoff()
		s.logger.Warn("quote-stream-disconnected",
			zap.Error(err),
			zap.Duration("backoff", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

type subscribeCmd struct {
	ID     int             `json:"id"`
	Cmd    string          `json:"cmd"`
	Params subscribeParams `json:"params"`
}

type subscribeParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers"`
}

type streamMessage struct {
	Type string `json:"type"`
	Msg  struct {
		MarketTicker string `json:"market_ticker"`
		Price        int    `json:"price"`
		YesBid       int    `json:"yes_bid"`
		YesAsk       int    `json:"yes_ask"`
		Volume       int64  `json:"volume"`
	} `json:"msg"`
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	s.mu.Lock()
	s.conn = conn
	tickers := make([]string, 0, len(s.tickers))
	for t := range s.tickers {
		tickers = append(tickers, t)
	}
	err = s.writeSubscribeLocked(tickers)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	if err != nil {
		return err
	}

	s.resetBackoff()
	s.logger.Info("quote-stream-connected", zap.Int("tickers", len(tickers)))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Debug("quote-stream-bad-message", zap.Error(err))
			continue
		}
		if msg.Type != "ticker_v2" || msg.Msg.MarketTicker == "" {
			continue
		}

		StreamMessagesTotal.Inc()
		quote := &types.Quote{
			Ticker:      msg.Msg.MarketTicker,
			LastCents:   msg.Msg.Price,
			YesBidCents: msg.Msg.YesBid,
			YesAskCents: msg.Msg.YesAsk,
			Volume:      msg.Msg.Volume,
			FetchedAt:   time.Now().UTC(),
		}

		select {
		case s.updates <- quote:
		default:
			// Slow consumer: drop rather than block the read loop.
			StreamDroppedTotal.Inc()
		}
	}
}

func (s *Stream) nextBackoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	jitter := rand.Float64() * s.config.JitterPercent
	delay := time.Duration(float64(s.backoff) * (1.0 + jitter))

	next := time.Duration(float64(s.backoff) * s.config.BackoffMultiplier)
	if next > s.config.MaxDelay {
		next = s.config.MaxDelay
	}
	s.backoff = next

	return delay
}

func (s *Stream) resetBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.backoff = s.config.InitialDelay
}
