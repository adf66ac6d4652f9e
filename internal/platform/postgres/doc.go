// Package postgres implements the durable PostgreSQL queue store.
package postgres
