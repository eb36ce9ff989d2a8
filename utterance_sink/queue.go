// Package utterance_sink decouples the capture loop from downstream
// consumers. Utterances travel over a bounded channel to a worker goroutine;
// when the channel is full the utterance is dropped and counted.
package utterance_sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"assistant-voice-pipeline/metrics"
	"assistant-voice-pipeline/utterance"
)

type Config struct {
	Handler Handler
	Size    int
	Logger  *slog.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

type Queue struct {
	handler Handler
	ch      chan *utterance.Utterance
	logger  *slog.Logger
	metrics *metrics.Metrics
	// inFlight counts queued plus currently handled utterances.
	inFlight sync.WaitGroup
}

func New(cfg *Config) (*Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is nil")
	}

	if cfg.Size <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", cfg.Size)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		handler: cfg.Handler,
		ch:      make(chan *utterance.Utterance, cfg.Size),
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

func (q *Queue) Accept(u *utterance.Utterance) {
	q.inFlight.Add(1)

	select {
	case q.ch <- u:
	default:
		q.inFlight.Done()
		q.logger.Warn("sink queue full, dropping utterance", "duration", u.Duration())

		if q.metrics != nil {
			q.metrics.UtterancesDropped.Add(context.Background(), 1)
		}
	}
}

// Pending is the number of utterances waiting for the worker.
func (q *Queue) Pending() int {
	return len(q.ch)
}

// Wait blocks until every accepted utterance has been handled or discarded.
// It must not be called concurrently with Accept.
func (q *Queue) Wait() {
	q.inFlight.Wait()
}

// Run hands queued utterances to the handler until ctx is done. Handler
// errors are logged and do not stop the worker. Utterances still queued at
// shutdown are discarded.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			q.discard()

			return nil
		}

		select {
		case <-ctx.Done():
			q.discard()

			return nil
		case u := <-q.ch:
			if err := q.handler.Handle(ctx, u); err != nil {
				q.logger.Error("utterance handler failed", "error", err)
			}

			q.inFlight.Done()
		}
	}
}

func (q *Queue) discard() {
	for {
		select {
		case <-q.ch:
			q.inFlight.Done()
		default:
			return
		}
	}
}
