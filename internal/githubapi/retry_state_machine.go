package githubapi

import "time"

// RetryMode represents the position of one call in its retry loop.
type RetryMode string

const (
	// RetryModeAttempting means the next step is to send a request.
	RetryModeAttempting RetryMode = "attempting"
	// RetryModeBackoffRateLimit means the call is waiting out a rate limit.
	RetryModeBackoffRateLimit RetryMode = "backoff_rate_limit"
	// RetryModeBackoffTransient means the call is waiting after a transient failure.
	RetryModeBackoffTransient RetryMode = "backoff_transient"
	// RetryModeFailed is terminal: the call gives up.
	RetryModeFailed RetryMode = "failed"
	// RetryModeSucceeded is terminal: a usable payload was received.
	RetryModeSucceeded RetryMode = "succeeded"
)

// AttemptOutcome classifies the result of one request attempt.
type AttemptOutcome string

const (
	// OutcomeSuccess is a 2xx response with a decodable payload and no GraphQL errors.
	OutcomeSuccess AttemptOutcome = "success"
	// OutcomeTransient covers transport errors, non rate-limit non-2xx responses and undecodable bodies.
	OutcomeTransient AttemptOutcome = "transient"
	// OutcomeRateLimited is a 403 whose body mentions a rate limit.
	OutcomeRateLimited AttemptOutcome = "rate_limited"
	// OutcomeFatal is a response that must not be retried, like GraphQL errors.
	OutcomeFatal AttemptOutcome = "fatal"
)

// RetryState tracks one call through the retry loop. All outcomes share Attempts.
type RetryState struct {
	Mode          RetryMode
	Attempts      int
	RateLimitHits int
	WaitFor       time.Duration
}

// RetryStateMachine configures retry transitions.
type RetryStateMachine struct {
	MaxAttempts            int
	TransientBackoff       time.Duration
	RateLimitBackoff       time.Duration
	RateLimitRepeatBackoff time.Duration
}

// Start returns the initial state of a call.
func (m RetryStateMachine) Start() RetryState {
	return RetryState{Mode: RetryModeAttempting}
}

// Apply applies one attempt outcome to a previous state and returns the new state.
func (m RetryStateMachine) Apply(previous RetryState, outcome AttemptOutcome) RetryState {
	next := previous
	next.Attempts++
	next.WaitFor = 0

	switch outcome {
	case OutcomeSuccess:
		next.Mode = RetryModeSucceeded
		return next
	case OutcomeFatal:
		next.Mode = RetryModeFailed
		return next
	case OutcomeRateLimited:
		next.RateLimitHits++
		if next.Attempts >= m.maxAttempts() {
			next.Mode = RetryModeFailed
			return next
		}
		next.Mode = RetryModeBackoffRateLimit
		next.WaitFor = m.RateLimitBackoff
		if next.RateLimitHits > 1 {
			next.WaitFor = m.RateLimitRepeatBackoff
		}
		return next
	default:
		if next.Attempts >= m.maxAttempts() {
			next.Mode = RetryModeFailed
			return next
		}
		next.Mode = RetryModeBackoffTransient
		next.WaitFor = m.TransientBackoff
		return next
	}
}

// Resume moves a backoff state back to attempting once the wait has elapsed.
func (m RetryStateMachine) Resume(previous RetryState) RetryState {
	next := previous
	if next.Mode == RetryModeBackoffRateLimit || next.Mode == RetryModeBackoffTransient {
		next.Mode = RetryModeAttempting
		next.WaitFor = 0
	}
	return next
}

// Done reports whether the state is terminal.
func (s RetryState) Done() bool {
	return s.Mode == RetryModeFailed || s.Mode == RetryModeSucceeded
}

func (m RetryStateMachine) maxAttempts() int {
	if m.MaxAttempts <= 0 {
		return 1
	}
	return m.MaxAttempts
}
