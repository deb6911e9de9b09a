package guard

import (
	"strings"

	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
)

// SkipReason explains why an eligible checkout gets no job this pass.
// Values are low-cardinality by construction; they feed a metrics label
// directly.
type SkipReason string

const (
	SkipNoPhone            SkipReason = "no_phone"
	SkipInFlightExists     SkipReason = "in_flight_exists"
	SkipMaxAttemptsReached SkipReason = "max_attempts_reached"
	SkipLastJobNotTerminal SkipReason = "last_job_not_terminal"
	SkipUniqueConstraint   SkipReason = "unique_constraint"
)

// EvaluateCandidate inspects a candidate's current-cycle job history,
// newest first, and returns the reason it must be skipped, if any.
func EvaluateCandidate(phone string, cycleJobs []*calljobdomain.CallJob, maxAttempts int) (SkipReason, bool) {
	if strings.TrimSpace(phone) == "" {
		return SkipNoPhone, false
	}
	for _, job := range cycleJobs {
		if job.Status.InFlight() {
			return SkipInFlightExists, false
		}
	}
	if len(cycleJobs) >= maxAttempts {
		return SkipMaxAttemptsReached, false
	}
	// A newest job in an unrecognized state blocks new attempts rather
	// than risking a double call.
	if len(cycleJobs) > 0 && !cycleJobs[0].Status.Terminal() {
		return SkipLastJobNotTerminal, false
	}
	return "", true
}
