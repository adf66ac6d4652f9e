// Package task implements the queue/worker core: task records, named
// queues with delayed delivery, a polling worker pool, explicit
// execution results, retry/backoff schedules, the idempotency guard, and
// failure reporting with compensating hooks.
package task
