package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"

	"github.com/gradloop/taskwell/internal/batch"
	"github.com/gradloop/taskwell/internal/platform/postgres"
	redisplatform "github.com/gradloop/taskwell/internal/platform/redis"
	"github.com/gradloop/taskwell/internal/store"
	"github.com/gradloop/taskwell/internal/task"
)

// openStore picks the queue store backend from configuration: Postgres
// when a database URL is set, Redis when an address is set, otherwise
// the in-process memory store. The returned func releases the backend.
func (a *app) openStore(ctx context.Context) (task.Store, func(), error) {
	if a.cfg.Database.URL != "" {
		db, err := a.openDB(ctx)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewTaskStore(db), func() { _ = db.Close() }, nil
	}

	if a.cfg.Redis.Addr != "" {
		client, err := a.openRedis(ctx)
		if err != nil {
			return nil, nil, err
		}
		return redisplatform.NewTaskStore(client), func() { _ = client.Close() }, nil
	}

	a.logger.Warn("no database or redis configured, using in-process memory store")
	return store.NewMemoryStore(), func() {}, nil
}

// openGuard picks the idempotency guard backend. Redis is the only
// cross-process option; without it the guard only suppresses duplicates
// within this process.
func (a *app) openGuard(ctx context.Context) (task.Guard, func(), error) {
	if a.cfg.Redis.Addr != "" {
		client, err := a.openRedis(ctx)
		if err != nil {
			return nil, nil, err
		}
		return redisplatform.NewGuard(client), func() { _ = client.Close() }, nil
	}
	return task.NewMemoryGuard(), func() {}, nil
}

func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("pgx", a.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (a *app) openRedis(ctx context.Context) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr: a.cfg.Redis.Addr,
		DB:   a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// buildRegistry wires the handlers this binary ships. Applications
// embedding the framework register their own handlers instead; the echo
// handler exists so operators can smoke-test a queue end to end, and the
// fanout handler turns one task into many without a custom producer.
func (a *app) buildRegistry() (*task.Registry, error) {
	registry := task.NewRegistry()
	if err := registry.Register("core.echo", task.HandlerFunc(echoHandler)); err != nil {
		return nil, err
	}
	if err := registry.Register("core.fanout", task.HandlerFunc(fanoutHandler)); err != nil {
		return nil, err
	}
	return registry, nil
}

// echoHandler logs its payload and succeeds.
func echoHandler(_ context.Context, exec *task.Execution) task.Result {
	exec.Logger.Info("echo", "payload", string(exec.Task.Payload))
	return task.Succeed()
}

// fanoutHandler enqueues one child task per payload item, isolating
// per-item enqueue failures so one bad item never blocks the rest.
func fanoutHandler(ctx context.Context, exec *task.Execution) task.Result {
	var payload struct {
		Queue   string            `json:"queue"`
		Handler string            `json:"handler"`
		Items   []json.RawMessage `json:"items"`
	}
	if err := exec.Task.UnmarshalPayload(&payload); err != nil {
		return task.Fail(fmt.Errorf("malformed fanout payload: %w", err))
	}
	if payload.Queue == "" || payload.Handler == "" {
		return task.Fail(fmt.Errorf("fanout payload needs queue and handler"))
	}

	page := func(_ context.Context, offset, limit int) ([]json.RawMessage, error) {
		if offset >= len(payload.Items) {
			return nil, nil
		}
		end := offset + limit
		if end > len(payload.Items) {
			end = len(payload.Items)
		}
		return payload.Items[offset:end], nil
	}

	sum, err := batch.ForEach(ctx, page, batch.Options{
		Name:   "fanout:" + exec.Task.ID.String(),
		Logger: exec.Logger,
	}, func(ctx context.Context, item json.RawMessage) error {
		_, err := exec.EnqueueFollowUp(ctx, payload.Queue, payload.Handler, item, task.Options{})
		return err
	})
	if err != nil {
		return task.Retry(fmt.Errorf("fanout enqueued %d of %d children: %w", sum.Processed, sum.Total(), err))
	}
	exec.Logger.Info("fanout complete", "children", sum.Processed, "failed", sum.Failed)
	return task.Succeed()
}
