package types

import "time"

// Quote is a best bid/ask snapshot for one market. All prices are integral
// cents in [0, 100].
type Quote struct {
	Ticker       string
	YesBidCents  int
	YesAskCents  int
	NoBidCents   int
	NoAskCents   int
	LastCents    int
	Volume       int64
	FetchedAt    time.Time
}

// CurrentCents returns the price used for strategy decisions: the last
// traded price when the venue reports one, otherwise the YES bid.
func (q *Quote) CurrentCents() int {
	if q.LastCents > 0 {
		return q.LastCents
	}
	return q.YesBidCents
}

// MarketInfo is a market listing entry from the venue's series catalog.
type MarketInfo struct {
	Ticker      string
	EventTicker string
	Title       string
}
