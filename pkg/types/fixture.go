package types

import "time"

// Phase is a fixture's lifecycle phase. Phases only ever advance.
type Phase int

const (
	PhaseScheduled Phase = iota
	PhasePreEventPolling
	PhaseQualifying
	PhaseOrdersPlaced
	PhaseInWindow
	PhaseClosed
)

// String returns the phase name for logging and HTTP responses.
func (p Phase) String() string {
	switch p {
	case PhaseScheduled:
		return "scheduled"
	case PhasePreEventPolling:
		return "pre_event_polling"
	case PhaseQualifying:
		return "qualifying"
	case PhaseOrdersPlaced:
		return "orders_placed"
	case PhaseInWindow:
		return "in_window"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// FixtureSide identifies one side of a fixture.
type FixtureSide string

const (
	SideAway FixtureSide = "away"
	SideHome FixtureSide = "home"
)

// Fixture is one tracked game: schedule data plus the market mapping and
// favorite information established at the pre-event checkpoints.
type Fixture struct {
	ID        string
	StartTime time.Time
	AwayTeam  string
	HomeTeam  string

	// Market mapping, resolved at the first checkpoint.
	AwayTicker string
	HomeTicker string

	// Opening observation from the 6h checkpoint.
	AwayOpenCents int
	HomeOpenCents int

	// Favorite assignment. Empty FavoriteSide means no side qualified.
	FavoriteSide      FixtureSide
	FavoriteTicker    string
	FavoriteOpenCents int

	// Qualification result from the 30m checkpoint.
	Qualified bool
}

// FavoriteTeam returns the team abbreviation of the assigned favorite,
// or "" if no favorite was identified.
func (f *Fixture) FavoriteTeam() string {
	switch f.FavoriteSide {
	case SideAway:
		return f.AwayTeam
	case SideHome:
		return f.HomeTeam
	default:
		return ""
	}
}

// Matchup returns "AWY @ HOM" for logging.
func (f *Fixture) Matchup() string {
	return f.AwayTeam + " @ " + f.HomeTeam
}
