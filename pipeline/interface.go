package pipeline

import "context"

type Interface interface {
	// Run drives the capture loop until ctx is cancelled (nil) or a fatal
	// capture, model or configuration error occurs.
	Run(ctx context.Context) error
}
