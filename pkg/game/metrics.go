package game

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CommandsTotal counts commands accepted by sessions.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpuzzle_commands_total",
			Help: "Total number of session commands applied",
		},
		[]string{"command"},
	)

	// ValidationsTotal counts checks by stage and verdict kind.
	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpuzzle_validations_total",
			Help: "Total number of layout checks by stage and verdict",
		},
		[]string{"stage", "verdict"},
	)

	// StageCompletionsTotal counts stages solved for the first time.
	StageCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpuzzle_stage_completions_total",
			Help: "Total number of stages completed",
		},
		[]string{"stage"},
	)

	// SessionsActive tracks sessions currently held by the manager's store.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tpuzzle_sessions_active",
			Help: "Number of live puzzle sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(ValidationsTotal)
	prometheus.MustRegister(StageCompletionsTotal)
	prometheus.MustRegister(SessionsActive)
}
