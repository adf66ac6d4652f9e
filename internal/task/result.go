package task

import "fmt"

// Outcome classifies the result of one execution attempt.
type Outcome int

const (
	// OutcomeSuccess means the attempt completed and side effects committed.
	OutcomeSuccess Outcome = iota

	// OutcomeSkipped means a precondition made the task moot (referenced
	// entity gone, already handled elsewhere). Treated like success:
	// retries would not help and none are scheduled.
	OutcomeSkipped

	// OutcomeTransient means the attempt failed in a way retrying may fix
	// (network error, rate limit, temporary unavailability).
	OutcomeTransient

	// OutcomePermanent means the attempt failed terminally and must not
	// be retried, regardless of remaining attempts.
	OutcomePermanent
)

// String returns the log-friendly name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeTransient:
		return "transient_failure"
	case OutcomePermanent:
		return "permanent_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the typed outcome a handler returns for one attempt.
// Handlers signal retryability explicitly through the constructors below
// instead of relying on error classification at the pool boundary.
type Result struct {
	Outcome Outcome

	// Err carries the failure cause for transient and permanent results.
	Err error

	// Reason documents why a skipped task was a no-op.
	Reason string
}

// Succeed reports a completed attempt.
func Succeed() Result {
	return Result{Outcome: OutcomeSuccess}
}

// Skip reports a no-op completion, e.g. when the referenced entity no
// longer exists or was already resolved by another process.
func Skip(reason string) Result {
	return Result{Outcome: OutcomeSkipped, Reason: reason}
}

// Retry reports a transient failure to be rescheduled with backoff.
func Retry(err error) Result {
	return Result{Outcome: OutcomeTransient, Err: err}
}

// Fail reports a terminal failure, short-circuiting any remaining
// attempts and bypassing backoff.
func Fail(err error) Result {
	return Result{Outcome: OutcomePermanent, Err: err}
}

// Failed reports whether the result is a failure of either kind.
func (r Result) Failed() bool {
	return r.Outcome == OutcomeTransient || r.Outcome == OutcomePermanent
}
