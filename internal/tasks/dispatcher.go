package tasks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// Dispatcher hands stats work off the request path. Dispatch failures
// are logged and swallowed: stats must never fail a queue operation.
type Dispatcher interface {
	DispatchDailyStat(ctx context.Context, payload DailyStatPayload)
	DispatchWaitSample(ctx context.Context, payload WaitSamplePayload)
}

// AsynqDispatcher enqueues stats tasks to Redis for the worker to
// process with retries.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) DispatchDailyStat(ctx context.Context, payload DailyStatPayload) {
	d.enqueue(ctx, TypeDailyStat, payload)
}

func (d *AsynqDispatcher) DispatchWaitSample(ctx context.Context, payload WaitSamplePayload) {
	d.enqueue(ctx, TypeWaitSample, payload)
}

func (d *AsynqDispatcher) enqueue(ctx context.Context, taskType string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("stats enqueue marshal type=%s: %v", taskType, err)
		return
	}
	task := asynq.NewTask(taskType, body)
	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(QueueStats), asynq.MaxRetry(5)); err != nil {
		log.Printf("stats enqueue type=%s: %v", taskType, err)
	}
}

// InlineDispatcher runs the stats handlers synchronously in a
// background goroutine. It covers deployments without Redis and keeps
// handler tests hermetic.
type InlineDispatcher struct {
	handlers *Handlers
	timeout  time.Duration
}

func NewInlineDispatcher(handlers *Handlers) *InlineDispatcher {
	return &InlineDispatcher{handlers: handlers, timeout: 10 * time.Second}
}

func (d *InlineDispatcher) DispatchDailyStat(ctx context.Context, payload DailyStatPayload) {
	d.run(TypeDailyStat, payload, d.handlers.HandleDailyStat)
}

func (d *InlineDispatcher) DispatchWaitSample(ctx context.Context, payload WaitSamplePayload) {
	d.run(TypeWaitSample, payload, d.handlers.HandleWaitSample)
}

func (d *InlineDispatcher) run(taskType string, payload interface{}, handler func(context.Context, *asynq.Task) error) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("stats inline marshal type=%s: %v", taskType, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := handler(ctx, asynq.NewTask(taskType, body)); err != nil {
			log.Printf("stats inline type=%s: %v", taskType, err)
		}
	}()
}
