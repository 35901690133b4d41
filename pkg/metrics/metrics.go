package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session metrics
var (
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sora_protocol_sessions_total",
			Help: "Total number of protocol sessions created",
		},
		[]string{"protocol"},
	)

	SessionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sora_protocol_sessions_current",
			Help: "Current number of open protocol sessions",
		},
		[]string{"protocol"},
	)
)

// Response write path metrics
var (
	ResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sora_protocol_responses_total",
			Help: "Total number of responses written, by response kind",
		},
		[]string{"protocol", "kind"},
	)

	ResponseWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sora_protocol_response_write_errors_total",
			Help: "Total number of responses whose write failed",
		},
		[]string{"protocol", "reason"},
	)

	StartTLSTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sora_protocol_starttls_total",
			Help: "STARTTLS takeover attempts by result",
		},
		[]string{"protocol", "result"},
	)
)

// Input handling metrics
var (
	LinesDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sora_protocol_lines_discarded_total",
			Help: "Lines received after end of session and discarded",
		},
		[]string{"protocol"},
	)

	CommandInjectionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sora_protocol_command_injection_total",
			Help: "Plaintext input found buffered at TLS takeover and discarded",
		},
		[]string{"protocol"},
	)

	LineHandlerPushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sora_protocol_line_handler_pushes_total",
			Help: "Line handlers installed on sessions",
		},
		[]string{"protocol"},
	)
)

// Authentication metrics
var (
	SASLAuthenticationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sora_protocol_sasl_authentications_total",
			Help: "SASL exchanges by mechanism and result",
		},
		[]string{"mechanism", "result"},
	)
)
