package marketdata

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuoteFetchesTotal counts market data requests by outcome.
	QuoteFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_quote_fetches_total",
			Help: "Total number of market data fetches",
		},
		[]string{"outcome"},
	)

	// QuoteFetchDurationSeconds tracks market data request latency.
	QuoteFetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nhl_reversion_quote_fetch_duration_seconds",
		Help:    "Latency of market data fetches",
		Buckets: prometheus.DefBuckets,
	})

	// StreamReconnectsTotal counts websocket reconnection attempts.
	StreamReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nhl_reversion_stream_reconnects_total",
		Help: "Total number of quote stream reconnection attempts",
	})

	// StreamMessagesTotal counts ticker messages received.
	StreamMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nhl_reversion_stream_messages_total",
		Help: "Total number of quote stream ticker messages received",
	})

	// StreamDroppedTotal counts updates dropped on a full channel.
	StreamDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nhl_reversion_stream_dropped_total",
		Help: "Total number of quote updates dropped due to slow consumption",
	})

	// StreamQuoteServedTotal counts quote fetches answered from the stream.
	StreamQuoteServedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nhl_reversion_stream_quote_served_total",
		Help: "Total number of quote fetches served from a fresh streamed quote",
	})
)
