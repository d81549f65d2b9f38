package dialog

// Outcome classifies a turn. Failures are reported here and in the prompt;
// HandleTurn never returns an error.
type Outcome string

const (
	OutcomeOK Outcome = "ok"
	// OutcomeUserInputUnrecognized: an answer outside the expected category.
	OutcomeUserInputUnrecognized Outcome = "user_input_unrecognized"
	// OutcomeFallback: input that could not be interpreted in the state at all.
	OutcomeFallback            Outcome = "fallback"
	OutcomeIdentityNotFound    Outcome = "identity_not_found"
	OutcomeUpstreamUnavailable Outcome = "upstream_unavailable"
	OutcomeRetryExhausted      Outcome = "retry_exhausted"
)
