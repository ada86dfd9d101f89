package httpserver

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/pucklab/nhl-reversion/internal/ledger"
	"github.com/pucklab/nhl-reversion/internal/timeline"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

// TradingHandler serves the read-only view of tracked fixtures and the
// position book.
type TradingHandler struct {
	tracker *timeline.Tracker
	ledger  *ledger.Ledger
	logger  *zap.Logger
}

// NewTradingHandler creates a new trading handler.
func NewTradingHandler(tracker *timeline.Tracker, book *ledger.Ledger, logger *zap.Logger) *TradingHandler {
	return &TradingHandler{
		tracker: tracker,
		ledger:  book,
		logger:  logger,
	}
}

// FixtureEntry is one tracked fixture in the API response.
type FixtureEntry struct {
	ID             string    `json:"id"`
	Matchup        string    `json:"matchup"`
	StartTime      time.Time `json:"start_time"`
	Phase          string    `json:"phase"`
	Excluded       bool      `json:"excluded"`
	FavoriteTicker string    `json:"favorite_ticker,omitempty"`
	FavoriteCents  int       `json:"favorite_cents,omitempty"`
	Qualified      bool      `json:"qualified"`
}

// PositionEntry is one position in the API response.
type PositionEntry struct {
	ID          string  `json:"id"`
	FixtureID   string  `json:"fixture_id"`
	Ticker      string  `json:"ticker"`
	Tier        string  `json:"tier"`
	EntryCents  int     `json:"entry_cents"`
	ExitCents   int     `json:"exit_cents,omitempty"`
	SizeUSD     float64 `json:"size_usd"`
	Contracts   int     `json:"contracts"`
	Status      string  `json:"status"`
	PnLUSD      float64 `json:"pnl_usd"`
	CloseReason string  `json:"close_reason,omitempty"`
}

// AccountResponse is the account-level summary.
type AccountResponse struct {
	BankrollUSD    float64 `json:"bankroll_usd"`
	ExposureUSD    float64 `json:"exposure_usd"`
	RealizedPnLUSD float64 `json:"realized_pnl_usd"`
	OpenPositions  int     `json:"open_positions"`
}

// ErrorResponse is a JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleFixtures handles GET /api/fixtures.
func (h *TradingHandler) HandleFixtures(w http.ResponseWriter, r *http.Request) {
	views := h.tracker.Snapshot()

	entries := make([]FixtureEntry, 0, len(views))
	for _, view := range views {
		entries = append(entries, FixtureEntry{
			ID:             view.Fixture.ID,
			Matchup:        view.Fixture.Matchup(),
			StartTime:      view.Fixture.StartTime,
			Phase:          view.Phase.String(),
			Excluded:       view.Excluded,
			FavoriteTicker: view.Fixture.FavoriteTicker,
			FavoriteCents:  view.Fixture.FavoriteOpenCents,
			Qualified:      view.Fixture.Qualified,
		})
	}

	h.writeJSON(w, entries)
}

// HandlePositions handles GET /api/positions. Pass ?status=open to limit
// the response to the live book.
func (h *TradingHandler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("status") == "open"

	positions := h.ledger.AllPositions()
	entries := make([]PositionEntry, 0, len(positions))
	for _, pos := range positions {
		if openOnly && pos.Status != types.PositionOpen {
			continue
		}
		entries = append(entries, PositionEntry{
			ID:          pos.ID,
			FixtureID:   pos.FixtureID,
			Ticker:      pos.Ticker,
			Tier:        string(pos.Tier),
			EntryCents:  pos.EntryCents,
			ExitCents:   pos.ExitCents,
			SizeUSD:     pos.SizeUSD,
			Contracts:   pos.Contracts,
			Status:      string(pos.Status),
			PnLUSD:      pos.PnLUSD,
			CloseReason: pos.CloseReason,
		})
	}

	h.writeJSON(w, entries)
}

// HandleAccount handles GET /api/account.
func (h *TradingHandler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	open := 0
	for _, pos := range h.ledger.AllPositions() {
		if pos.Status == types.PositionOpen {
			open++
		}
	}

	h.writeJSON(w, AccountResponse{
		BankrollUSD:    h.ledger.Bankroll(),
		ExposureUSD:    h.ledger.Exposure(),
		RealizedPnLUSD: h.ledger.RealizedPnL(),
		OpenPositions:  open,
	})
}

func (h *TradingHandler) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}
