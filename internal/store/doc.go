// Package store provides queue-store implementations and shared
// persistence plumbing. The memory store lives here; the Postgres and
// Redis stores live under internal/platform.
package store
