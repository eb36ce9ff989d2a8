package utterance_sink

import (
	"context"

	"assistant-voice-pipeline/utterance"
)

// Interface receives finished utterances from the capture loop. Accept must
// never block.
type Interface interface {
	Accept(u *utterance.Utterance)
}

// Handler consumes utterances on the worker goroutine.
type Handler interface {
	Handle(ctx context.Context, u *utterance.Utterance) error
}

type HandlerFunc func(ctx context.Context, u *utterance.Utterance) error

func (f HandlerFunc) Handle(ctx context.Context, u *utterance.Utterance) error {
	return f(ctx, u)
}
