package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the per-cluster session metrics. All vectors are labelled
// by cluster name.
type Collector struct {
	LinesTotal       *prometheus.CounterVec
	SpotsTotal       *prometheus.CounterVec
	IgnoredTotal     *prometheus.CounterVec
	ParseErrorsTotal *prometheus.CounterVec
	ConnectFailures  *prometheus.CounterVec
	ReconnectsTotal  *prometheus.CounterVec
	SessionState     *prometheus.GaugeVec
	LastLineSeconds  *prometheus.GaugeVec
	BlockedPublishes *prometheus.CounterVec
	FilteredTotal    *prometheus.CounterVec
}

// NewCollector registers the metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		// Line metrics
		LinesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dxwatch_lines_total",
				Help: "Lines read from the cluster connection",
			},
			[]string{"cluster"},
		),
		SpotsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dxwatch_spots_total",
				Help: "Spots parsed and published",
			},
			[]string{"cluster", "format"},
		),
		IgnoredTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dxwatch_ignored_lines_total",
				Help: "Lines that are not spot announcements",
			},
			[]string{"cluster"},
		),
		ParseErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dxwatch_parse_errors_total",
				Help: "Spot candidates rejected by the parser",
			},
			[]string{"cluster", "reason"},
		),

		// Connection metrics
		ConnectFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dxwatch_connect_failures_total",
				Help: "Failed connection attempts",
			},
			[]string{"cluster"},
		),
		ReconnectsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dxwatch_session_drops_total",
				Help: "Established sessions that were lost or stalled",
			},
			[]string{"cluster"},
		),
		SessionState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dxwatch_session_state",
				Help: "Session state (0 disconnected, 1 connecting, 2 connected, 3 stopped)",
			},
			[]string{"cluster"},
		),
		LastLineSeconds: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dxwatch_last_line_timestamp_seconds",
				Help: "Unix time of the last line read",
			},
			[]string{"cluster"},
		),

		// Delivery metrics
		BlockedPublishes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dxwatch_blocked_publishes_total",
				Help: "Publishes that had to wait for the consumer",
			},
			[]string{"cluster"},
		),
		FilteredTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dxwatch_filtered_spots_total",
				Help: "Spots rejected by the output filter",
			},
			[]string{"cluster"},
		),
	}
}
