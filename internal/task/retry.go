package task

import (
	"time"
)

// Backoff schedule presets. These mirror the retry behavior proven out
// against flaky external systems: short enough to recover quickly from
// blips, long enough at the tail to stop hammering an outage.
var (
	// BackoffFastExternal suits quick external API calls (webhook
	// deliveries, search-index updates). Three attempts.
	BackoffFastExternal = []time.Duration{30 * time.Second, 2 * time.Minute, 5 * time.Minute}

	// BackoffCRMSync is the default for CRM synchronization work. Three
	// attempts.
	BackoffCRMSync = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

	// BackoffLongRecovery spreads five attempts over several hours for
	// work that must eventually land (recurring donation processing,
	// lead re-routing after a provider outage).
	BackoffLongRecovery = []time.Duration{
		5 * time.Minute,
		15 * time.Minute,
		30 * time.Minute,
		time.Hour,
		2 * time.Hour,
	}
)

// DefaultBackoff is applied when enqueue options leave Backoff unset.
var DefaultBackoff = BackoffCRMSync

// Decision is the retry controller's ruling on a finished attempt.
type Decision int

const (
	// DecisionComplete discards the task as done.
	DecisionComplete Decision = iota

	// DecisionRetry re-enqueues the task with a delay.
	DecisionRetry

	// DecisionFail marks the task permanently failed.
	DecisionFail
)

// Verdict pairs a Decision with its scheduling outcome.
type Verdict struct {
	Decision Decision

	// AvailableAt is the earliest next execution time for DecisionRetry.
	AvailableAt time.Time

	// Err is the failure cause carried forward for reporting.
	Err error
}

// Decide applies the retry policy to the result of the attempt that just
// finished. The task's Attempt field must already reflect that attempt.
//
// Transient failures retry with the schedule delay for the failed
// attempt until MaxAttempts is exhausted; the attempt after the end of
// the schedule reuses the last entry. Permanent results and exhausted
// attempts both rule DecisionFail; success and skip rule
// DecisionComplete.
func Decide(now time.Time, t *Task, res Result) Verdict {
	switch res.Outcome {
	case OutcomeSuccess, OutcomeSkipped:
		return Verdict{Decision: DecisionComplete}

	case OutcomePermanent:
		return Verdict{Decision: DecisionFail, Err: res.Err}

	default:
		if t.Attempt >= t.MaxAttempts {
			return Verdict{Decision: DecisionFail, Err: res.Err}
		}
		delay := t.BackoffDelay(t.Attempt)
		return Verdict{
			Decision:    DecisionRetry,
			AvailableAt: now.Add(delay),
			Err:         res.Err,
		}
	}
}

// TotalRetryWindow sums the delays a task can spend waiting between
// attempts, bounding how long after the first failure a permanent
// failure is declared. Exposed for operator tooling.
func TotalRetryWindow(maxAttempts int, schedule []time.Duration) time.Duration {
	var total time.Duration
	for attempt := 1; attempt < maxAttempts; attempt++ {
		idx := attempt - 1
		if idx >= len(schedule) {
			idx = len(schedule) - 1
		}
		if idx < 0 {
			continue
		}
		total += schedule[idx]
	}
	return total
}
