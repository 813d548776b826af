package githubapi

import (
	"testing"
	"time"
)

func TestRetryStateMachineApply(t *testing.T) {
	t.Parallel()

	machine := RetryStateMachine{
		MaxAttempts:            3,
		TransientBackoff:       5 * time.Second,
		RateLimitBackoff:       60 * time.Second,
		RateLimitRepeatBackoff: 120 * time.Second,
	}

	testCases := []struct {
		name    string
		state   RetryState
		outcome AttemptOutcome
		want    RetryState
	}{
		{
			name:    "success_is_terminal",
			state:   machine.Start(),
			outcome: OutcomeSuccess,
			want:    RetryState{Mode: RetryModeSucceeded, Attempts: 1},
		},
		{
			name:    "fatal_is_terminal_without_wait",
			state:   machine.Start(),
			outcome: OutcomeFatal,
			want:    RetryState{Mode: RetryModeFailed, Attempts: 1},
		},
		{
			name:    "transient_backs_off",
			state:   machine.Start(),
			outcome: OutcomeTransient,
			want:    RetryState{Mode: RetryModeBackoffTransient, Attempts: 1, WaitFor: 5 * time.Second},
		},
		{
			name:    "first_rate_limit_waits_short",
			state:   RetryState{Mode: RetryModeAttempting, Attempts: 1},
			outcome: OutcomeRateLimited,
			want:    RetryState{Mode: RetryModeBackoffRateLimit, Attempts: 2, RateLimitHits: 1, WaitFor: 60 * time.Second},
		},
		{
			name:    "repeat_rate_limit_waits_long",
			state:   RetryState{Mode: RetryModeAttempting, Attempts: 1, RateLimitHits: 1},
			outcome: OutcomeRateLimited,
			want:    RetryState{Mode: RetryModeBackoffRateLimit, Attempts: 2, RateLimitHits: 2, WaitFor: 120 * time.Second},
		},
		{
			name:    "rate_limit_consumes_shared_budget",
			state:   RetryState{Mode: RetryModeAttempting, Attempts: 2, RateLimitHits: 1},
			outcome: OutcomeRateLimited,
			want:    RetryState{Mode: RetryModeFailed, Attempts: 3, RateLimitHits: 2},
		},
		{
			name:    "transient_on_last_attempt_fails",
			state:   RetryState{Mode: RetryModeAttempting, Attempts: 2},
			outcome: OutcomeTransient,
			want:    RetryState{Mode: RetryModeFailed, Attempts: 3},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := machine.Apply(tc.state, tc.outcome)
			if got != tc.want {
				t.Fatalf("Apply() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRetryStateMachineResume(t *testing.T) {
	t.Parallel()

	machine := RetryStateMachine{MaxAttempts: 2, TransientBackoff: time.Second}
	state := machine.Apply(machine.Start(), OutcomeTransient)
	if state.Done() {
		t.Fatalf("Done() = true after first transient failure, want false")
	}

	resumed := machine.Resume(state)
	if resumed.Mode != RetryModeAttempting || resumed.WaitFor != 0 {
		t.Fatalf("Resume() = %+v, want attempting with no wait", resumed)
	}
	if resumed.Attempts != 1 {
		t.Fatalf("Resume() Attempts = %d, want 1", resumed.Attempts)
	}

	terminal := RetryState{Mode: RetryModeSucceeded, Attempts: 1}
	if got := machine.Resume(terminal); got != terminal {
		t.Fatalf("Resume(terminal) = %+v, want unchanged", got)
	}
}

func TestRetryStateMachineZeroBudgetAllowsOneAttempt(t *testing.T) {
	t.Parallel()

	machine := RetryStateMachine{}
	state := machine.Apply(machine.Start(), OutcomeTransient)
	if state.Mode != RetryModeFailed {
		t.Fatalf("Mode = %q, want %q", state.Mode, RetryModeFailed)
	}
}
