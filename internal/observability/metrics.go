package observability

import "github.com/prometheus/client_golang/prometheus"

// Intake outcome label values.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeDropped   = "dropped"
	OutcomeError     = "error"
)

// intakeMessages counts inbound messages per channel and terminal outcome.
// Channel is the source ("telegram" or the mailbox provider name); outcome
// is one of the Outcome* constants. Both label sets are small and fixed, so
// cardinality stays bounded.
var intakeMessages = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "intake_messages_total",
		Help: "Total number of inbound messages processed, by channel and outcome.",
	},
	[]string{"channel", "outcome"},
)

func init() {
	prometheus.MustRegister(intakeMessages)
}

// CountIntake records one processed inbound message.
func CountIntake(channel, outcome string) {
	intakeMessages.WithLabelValues(channel, outcome).Inc()
}
