// Package batch provides bounded-size iteration over large logical
// collections. It is independent of any persistence technology: callers
// supply a page-fetch function and the iterator drives it chunk by
// chunk, isolating per-item failures so one bad record never aborts a
// multi-hour run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Errors returned by ForEach.
var (
	// ErrFailureThreshold means the failed fraction of items crossed the
	// configured threshold and the batch should surface a task-level
	// failure.
	ErrFailureThreshold = errors.New("batch failure threshold crossed")
)

// Page fetches one bounded page of a logical collection starting at
// offset. Returning an empty slice ends the iteration. A Page error is
// an iteration-mechanism failure and aborts the whole batch, unlike
// item-handler errors which are isolated and counted.
type Page[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// Options tunes one batch run. Zero values fall back to defaults.
type Options struct {
	// Name identifies the batch in progress logs.
	Name string

	// ChunkSize bounds page size. Defaults to 50.
	ChunkSize int

	// CheckpointEvery controls how often a progress line is logged, in
	// items. Defaults to 100.
	CheckpointEvery int

	// FailureThreshold is the failed fraction (0..1] at which the run
	// returns ErrFailureThreshold. Defaults to 1.0: only a batch where
	// every item failed escalates to a task-level failure.
	FailureThreshold float64

	// Logger receives chunk and checkpoint logs. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 50
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = 100
	}
	if o.FailureThreshold <= 0 || o.FailureThreshold > 1 {
		o.FailureThreshold = 1.0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Summary carries the running counters surfaced in the final log line.
type Summary struct {
	Processed int
	Failed    int
	Chunks    int
}

// Total returns how many items the run visited.
func (s Summary) Total() int {
	return s.Processed + s.Failed
}

// ForEach drives fetch from offset zero in ChunkSize pages, invoking fn
// once per item. An fn error (or panic) is caught, counted, and logged;
// iteration continues with the next item. Nested use — calling ForEach
// from inside fn for an inner collection — preserves the same isolation
// at both levels.
//
// The returned Summary is valid even when err is non-nil.
func ForEach[T any](ctx context.Context, fetch Page[T], opts Options, fn func(ctx context.Context, item T) error) (Summary, error) {
	opts = opts.withDefaults()
	logger := opts.Logger
	if opts.Name != "" {
		logger = logger.With("batch", opts.Name)
	}

	var sum Summary
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("batch aborted: %w", err)
		}

		items, err := fetch(ctx, offset, opts.ChunkSize)
		if err != nil {
			return sum, fmt.Errorf("failed to fetch page at offset %d: %w", offset, err)
		}
		if len(items) == 0 {
			break
		}
		sum.Chunks++

		for _, item := range items {
			if err := runItem(ctx, fn, item); err != nil {
				sum.Failed++
				logger.Warn("batch item failed",
					"offset", offset,
					"error", err)
			} else {
				sum.Processed++
			}

			if total := sum.Total(); total%opts.CheckpointEvery == 0 {
				logger.Info("batch progress",
					"processed", sum.Processed,
					"failed", sum.Failed,
					"chunks", sum.Chunks)
			}
		}

		offset += len(items)
		if len(items) < opts.ChunkSize {
			break
		}
	}

	logger.Info("batch finished",
		"processed", sum.Processed,
		"failed", sum.Failed,
		"chunks", sum.Chunks)

	if total := sum.Total(); total > 0 {
		if frac := float64(sum.Failed) / float64(total); frac >= opts.FailureThreshold {
			return sum, fmt.Errorf("%w: %d of %d items failed", ErrFailureThreshold, sum.Failed, total)
		}
	}
	return sum, nil
}

// runItem isolates one item invocation, converting a panic into an
// error so a poisoned record cannot take down the batch.
func runItem[T any](ctx context.Context, fn func(ctx context.Context, item T) error, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item handler panicked: %v", r)
		}
	}()
	return fn(ctx, item)
}
