package strategy

import (
	"math"

	"github.com/pucklab/nhl-reversion/pkg/config"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

// Rules evaluates the pre-game qualification and in-game exit logic for a
// single fixture. All methods are pure with respect to market state: they
// read quotes and positions and return decisions, never mutate.
type Rules struct {
	config Config
	logger *zap.Logger
}

// Config holds strategy thresholds. Prices are integral cents.
type Config struct {
	FavoriteThresholdCents int
	LiquidityFloor         int64
	SkipBandLowCents       int
	SkipBandHighCents      int
	DeepBounceCents        int
	BankrollUSD            float64
	BaseSizeFraction       float64
	GlobalMultiplier       float64
	MinOrderUnitUSD        float64
	Tiers                  []config.TierSpec
	Logger                 *zap.Logger
}

// New creates a new rules evaluator.
func New(cfg Config) *Rules {
	return &Rules{
		config: cfg,
		logger: cfg.Logger,
	}
}

// EntryPlan is one pre-placed limit order the strategy wants resting on the
// favorite's book before puck drop.
type EntryPlan struct {
	Tier       types.Tier
	PriceCents int
	SizeUSD    float64
	Contracts  int
}

// IdentifyFavorite picks the side trading at the higher price. Returns
// false when either quote is unusable or the prices tie: a tie means no
// favorite exists, and a coin-flip game is outside this strategy anyway.
func (r *Rules) IdentifyFavorite(away, home *types.Quote) (types.FixtureSide, int, bool) {
	if away == nil || home == nil {
		return "", 0, false
	}

	awayCents := away.CurrentCents()
	homeCents := home.CurrentCents()
	if awayCents <= 0 || homeCents <= 0 {
		return "", 0, false
	}

	if awayCents > homeCents {
		FavoritesIdentifiedTotal.Inc()
		return types.SideAway, awayCents, true
	}
	if homeCents > awayCents {
		FavoritesIdentifiedTotal.Inc()
		return types.SideHome, homeCents, true
	}

	return "", 0, false
}

// Qualification rejection reasons.
const (
	ReasonBelowThreshold = "below_threshold"
	ReasonIlliquid       = "illiquid"
)

// Qualify decides whether a favorite's market is tradeable: the favorite
// must trade at or above the threshold and the market must carry enough
// volume to absorb the tier orders. Returns the rejection reason when not.
func (r *Rules) Qualify(favoriteCents int, volume int64) (bool, string) {
	if favoriteCents < r.config.FavoriteThresholdCents {
		FixturesRejectedTotal.WithLabelValues(ReasonBelowThreshold).Inc()
		return false, ReasonBelowThreshold
	}

	if volume < r.config.LiquidityFloor {
		FixturesRejectedTotal.WithLabelValues(ReasonIlliquid).Inc()
		return false, ReasonIlliquid
	}

	FixturesQualifiedTotal.Inc()
	return true, ""
}

// PlanEntries builds the tier limit orders for a qualified fixture. Sizes
// are bankroll * base fraction * tier multiplier * global multiplier,
// rounded down to the minimum order unit. A tier whose rounded size falls
// below one unit is dropped rather than padded up.
func (r *Rules) PlanEntries(f *types.Fixture) []EntryPlan {
	base := r.config.BankrollUSD * r.config.BaseSizeFraction * r.config.GlobalMultiplier

	plans := make([]EntryPlan, 0, len(r.config.Tiers))
	for _, tier := range r.config.Tiers {
		sizeUSD := roundDownToUnit(base*tier.Multiplier, r.config.MinOrderUnitUSD)
		if sizeUSD < r.config.MinOrderUnitUSD {
			r.logger.Warn("tier-size-below-minimum",
				zap.String("fixture-id", f.ID),
				zap.String("tier", string(tier.Name)),
				zap.Float64("size-usd", sizeUSD))
			continue
		}

		contracts := int(math.Floor(sizeUSD * 100 / float64(tier.PriceCents)))

		plans = append(plans, EntryPlan{
			Tier:       tier.Name,
			PriceCents: tier.PriceCents,
			SizeUSD:    sizeUSD,
			Contracts:  contracts,
		})
		EntriesPlannedTotal.WithLabelValues(string(tier.Name)).Inc()
	}

	return plans
}

// TierFor maps a fill price to the tier whose entry band contains it.
// Bands are checked deepest-first, so a price on a boundary belongs to the
// deeper tier. Prices inside the skip band or above it map to no tier.
func (r *Rules) TierFor(entryCents int) (config.TierSpec, bool) {
	if entryCents >= r.config.SkipBandLowCents {
		return config.TierSpec{}, false
	}

	// Tiers are ordered shallow, medium, deep; walk deepest-first.
	for i := len(r.config.Tiers) - 1; i >= 0; i-- {
		tier := r.config.Tiers[i]
		if entryCents <= tier.CeilingCents {
			return tier, true
		}
	}

	return config.TierSpec{}, false
}

// ShouldExit decides whether an open position has bounced far enough to
// close. Shallow and medium tiers exit once price recovers the tier's
// minimum target above entry. The deep tier exits at an absolute recovery
// level instead: a fill that deep says entry price carries no information
// about where the bounce tops out.
func (r *Rules) ShouldExit(pos *types.Position, currentCents int) (bool, string) {
	if currentCents <= 0 {
		return false, ""
	}

	tier, ok := r.tierSpec(pos.Tier)
	if !ok {
		return false, ""
	}

	if pos.Tier == types.TierDeep {
		if currentCents >= r.config.DeepBounceCents {
			ExitsSignaledTotal.WithLabelValues(string(pos.Tier), "deep_bounce").Inc()
			return true, "deep_bounce"
		}
		return false, ""
	}

	if currentCents >= pos.EntryCents+tier.TargetMinCents {
		ExitsSignaledTotal.WithLabelValues(string(pos.Tier), "target_reached").Inc()
		return true, "target_reached"
	}

	return false, ""
}

// PnLUSD computes realized profit for a closed position. Size is the
// dollar amount committed at entry, so each cent of price movement is
// worth size/100 dollars.
func PnLUSD(entryCents, exitCents int, sizeUSD float64) float64 {
	return float64(exitCents-entryCents) * sizeUSD / 100
}

func (r *Rules) tierSpec(name types.Tier) (config.TierSpec, bool) {
	for _, tier := range r.config.Tiers {
		if tier.Name == name {
			return tier, true
		}
	}
	return config.TierSpec{}, false
}

func roundDownToUnit(v, unit float64) float64 {
	if unit <= 0 {
		return v
	}
	return math.Floor(v/unit) * unit
}
