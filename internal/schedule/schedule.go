package schedule

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pucklab/nhl-reversion/pkg/cache"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

const scheduleTTL = 15 * time.Minute

// Client fetches the NHL schedule from the league's public API.
type Client struct {
	baseURL string
	client  *http.Client
	cache   cache.Cache
	logger  *zap.Logger
}

// Config holds schedule client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Cache   cache.Cache
	Logger  *zap.Logger
}

// New creates a schedule client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   cfg.Cache,
		logger:  cfg.Logger,
	}
}

type scheduleResponse struct {
	GameWeek []struct {
		Date  string `json:"date"`
		Games []struct {
			ID           int64  `json:"id"`
			GameType     int    `json:"gameType"`
			StartTimeUTC string `json:"startTimeUTC"`
			AwayTeam     struct {
				Abbrev string `json:"abbrev"`
			} `json:"awayTeam"`
			HomeTeam struct {
				Abbrev string `json:"abbrev"`
			} `json:"homeTeam"`
		} `json:"games"`
	} `json:"gameWeek"`
}

// GamesOn returns the fixtures scheduled on the given calendar date.
// Responses are cached briefly; the league schedule rarely moves intraday.
func (c *Client) GamesOn(ctx context.Context, date time.Time) ([]*types.Fixture, error) {
	day := date.UTC().Format("2006-01-02")
	cacheKey := "schedule:" + day
	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			if fixtures, ok := cached.([]*types.Fixture); ok {
				return fixtures, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/schedule/"+day, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		ScheduleFetchesTotal.WithLabelValues("error").Inc()
		return nil, types.Retryable("schedule fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ScheduleFetchesTotal.WithLabelValues("error").Inc()
		return nil, types.Retryable("schedule fetch", fmt.Errorf("status %d", resp.StatusCode))
	}

	var payload scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		ScheduleFetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	ScheduleFetchesTotal.WithLabelValues("ok").Inc()

	var fixtures []*types.Fixture
	for _, week := range payload.GameWeek {
		if week.Date != day {
			continue
		}
		for _, game := range week.Games {
			// Regular season and playoffs only; preseason pricing is
			// too thin for the strategy's liquidity floor anyway.
			if game.GameType != 2 && game.GameType != 3 {
				continue
			}

			start, err := time.Parse(time.RFC3339, game.StartTimeUTC)
			if err != nil {
				c.logger.Warn("schedule-bad-start-time",
					zap.Int64("game-id", game.ID),
					zap.String("start", game.StartTimeUTC))
				continue
			}

			fixtures = append(fixtures, &types.Fixture{
				ID:        strconv.FormatInt(game.ID, 10),
				StartTime: start,
				AwayTeam:  game.AwayTeam.Abbrev,
				HomeTeam:  game.HomeTeam.Abbrev,
			})
		}
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, fixtures, scheduleTTL)
	}

	return fixtures, nil
}

// UpcomingFixtures returns fixtures that have not started yet, plus any
// that started within the last hour, looking at both yesterday's and
// today's schedule pages. A late game can sit on yesterday's calendar
// date in UTC while its puck drop is still ahead, and the one-hour slack
// lets a restarted bot pick its in-progress games back up.
func (c *Client) UpcomingFixtures(ctx context.Context, now time.Time) ([]*types.Fixture, error) {
	seen := make(map[string]struct{})
	var out []*types.Fixture

	for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
		fixtures, err := c.GamesOn(ctx, day)
		if err != nil {
			return nil, err
		}

		for _, f := range fixtures {
			if _, dup := seen[f.ID]; dup {
				continue
			}
			seen[f.ID] = struct{}{}

			if f.StartTime.Before(now.Add(-time.Hour)) {
				continue
			}
			out = append(out, f)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})

	return out, nil
}
