package domain

import (
	"context"
	"errors"

	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
)

// CallRequest is what the voice provider needs to place one call.
type CallRequest struct {
	Shop       string
	CheckoutID string
	Phone      string
	Attempt    int
}

// CallResult is the provider's view of a finished call.
type CallResult struct {
	Outcome        string
	ProviderCallID string
	RecordingURL   string
	EndedReason    string
	Transcript     string
}

// Provider places outbound recovery calls. Implementations are expected
// to block until the call resolves or ctx expires.
type Provider interface {
	Call(ctx context.Context, req CallRequest) (CallResult, error)
}

// Service drains due queued jobs through the provider.
type Service interface {
	// RunDueCalls claims and executes jobs whose scheduled time has
	// passed. Returns the number of jobs completed.
	RunDueCalls(ctx context.Context, limit int) (int, error)
}

// Outcomes recorded on completed jobs.
const (
	OutcomeAnswered  = "answered"
	OutcomeNoAnswer  = "no_answer"
	OutcomeVoicemail = "voicemail"
	OutcomeDeclined  = "declined"
	OutcomeError     = "error"
)

var ErrProviderUnavailable = errors.New("provider_unavailable")

// TerminalStatusFor maps a provider result to the job's final state.
func TerminalStatusFor(result CallResult, callErr error) calljobdomain.Status {
	if callErr != nil {
		return calljobdomain.StatusFailed
	}
	if result.Outcome == OutcomeError {
		return calljobdomain.StatusFailed
	}
	return calljobdomain.StatusCompleted
}
