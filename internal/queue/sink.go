package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink accepts jobs for delivery. Publishing is best effort: callers log
// failures and carry on.
type Sink interface {
	Publish(ctx context.Context, kind string, payload interface{}) error
}

// NopSink discards every job.
type NopSink struct{}

func (NopSink) Publish(context.Context, string, interface{}) error { return nil }

type pending struct {
	kind    string
	payload interface{}
}

// Async hands jobs to a background goroutine so the request path never
// waits on the broker. When the buffer is full the job is dropped and
// logged.
type Async struct {
	next    Sink
	log     *zap.Logger
	jobs    chan pending
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAsync starts the delivery goroutine. Close stops it after draining.
func NewAsync(next Sink, buffer int, log *zap.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &Async{
		next:    next,
		log:     log.With(zap.String("component", "sink")),
		jobs:    make(chan pending, buffer),
		timeout: 5 * time.Second,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) Publish(_ context.Context, kind string, payload interface{}) error {
	select {
	case a.jobs <- pending{kind: kind, payload: payload}:
	default:
		a.log.Warn("sink buffer full, job dropped", zap.String("kind", kind))
	}
	return nil
}

func (a *Async) run() {
	defer a.wg.Done()
	for p := range a.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Publish(ctx, p.kind, p.payload); err != nil {
			a.log.Warn("publish failed", zap.String("kind", p.kind), zap.Error(err))
		}
		cancel()
	}
}

// Close flushes buffered jobs and stops the goroutine. Publish must not be
// called after Close.
func (a *Async) Close() {
	a.once.Do(func() { close(a.jobs) })
	a.wg.Wait()
}
