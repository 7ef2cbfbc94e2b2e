package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/axialab/axial/pkg/config"
)

// Envelope is the dispatch payload for one task. SubjectID carries the
// interview id for auto-coding runs and is empty otherwise.
type Envelope struct {
	TaskID    string
	Kind      Kind
	ProjectID string
	OwnerID   string
	SubjectID string
}

// Handler executes one dispatched task.
type Handler func(ctx context.Context, env Envelope)

// Dispatcher hands tasks to their executor: an in-process goroutine by
// default, a Redis stream when an external worker pool is configured.
type Dispatcher struct {
	cfg     *config.TaskConfig
	client  *redis.Client
	handler Handler
}

// NewDispatcher builds a dispatcher. The handler runs in-process dispatches
// and is ignored in external-queue mode.
func NewDispatcher(cfg *config.TaskConfig, client *redis.Client, handler Handler) *Dispatcher {
	return &Dispatcher{cfg: cfg, client: client, handler: handler}
}

// Dispatch queues one task for execution. In-process runs detach from the
// request context: the HTTP response returns immediately while the pipeline
// keeps running.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	if d.cfg.UseExternalQueue != nil && *d.cfg.UseExternalQueue && d.client != nil {
		return d.client.XAdd(ctx, &redis.XAddArgs{
			Stream: d.cfg.QueueStream,
			Values: map[string]any{
				"task_id":    env.TaskID,
				"kind":       string(env.Kind),
				"project_id": env.ProjectID,
				"owner_id":   env.OwnerID,
				"subject_id": env.SubjectID,
			},
		}).Err()
	}

	go d.handler(context.WithoutCancel(ctx), env)
	return nil
}

// Worker consumes the dispatch stream. Run one per worker process.
type Worker struct {
	cfg      *config.TaskConfig
	client   *redis.Client
	handler  Handler
	group    string
	consumer string
}

// NewWorker builds a stream consumer.
func NewWorker(cfg *config.TaskConfig, client *redis.Client, handler Handler, consumer string) *Worker {
	return &Worker{
		cfg:      cfg,
		client:   client,
		handler:  handler,
		group:    "axial-workers",
		consumer: consumer,
	}
}

// Run consumes until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	err := w.client.XGroupCreateMkStream(ctx, w.cfg.QueueStream, w.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}

	slog.Info("worker consuming", "stream", w.cfg.QueueStream, "consumer", w.consumer)
	for {
		streams, err := w.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.group,
			Consumer: w.consumer,
			Streams:  []string{w.cfg.QueueStream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == redis.Nil {
			continue
		}
		if err != nil {
			slog.Warn("stream read failed, backing off", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				w.handler(ctx, envelopeFromValues(message.Values))
				if err := w.client.XAck(ctx, w.cfg.QueueStream, w.group, message.ID).Err(); err != nil {
					slog.Warn("ack failed", "message_id", message.ID, "error", err)
				}
			}
		}
	}
}

func envelopeFromValues(values map[string]any) Envelope {
	str := func(key string) string {
		s, _ := values[key].(string)
		return s
	}
	return Envelope{
		TaskID:    str("task_id"),
		Kind:      Kind(str("kind")),
		ProjectID: str("project_id"),
		OwnerID:   str("owner_id"),
		SubjectID: str("subject_id"),
	}
}
