package pipeline_errors

import (
	"errors"
	"fmt"
)

// ErrWindowSize is returned when a detector is handed a window of the wrong
// length. It is a wiring bug, never a runtime condition.
var ErrWindowSize = errors.New("detector window has wrong length")

// CaptureError is a failure of the sample source. It terminates the pipeline.
type CaptureError struct {
	Source string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture error (%s): %v", e.Source, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// ModelError is a failure of the keyword or voice activity classifier.
type ModelError struct {
	Detector string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model error (%s): %v", e.Detector, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports an invalid window size / sample rate combination
// or any other setting that is rejected before the capture loop starts.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func Capture(source string, err error) error {
	if err == nil {
		return nil
	}

	return &CaptureError{Source: source, Err: err}
}

func Model(detector string, err error) error {
	if err == nil {
		return nil
	}

	return &ModelError{Detector: detector, Err: err}
}

func Configuration(format string, args ...any) error {
	return &ConfigurationError{Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err belongs to the pipeline's fatal taxonomy.
func IsFatal(err error) bool {
	var (
		captureErr *CaptureError
		modelErr   *ModelError
		configErr  *ConfigurationError
	)

	return errors.As(err, &captureErr) || errors.As(err, &modelErr) || errors.As(err, &configErr)
}

// ExitCode maps err to a process exit status: 2 for configuration errors,
// 1 for capture and model failures, 3 for anything outside the taxonomy.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var configErr *ConfigurationError
	if errors.As(err, &configErr) {
		return 2
	}

	if IsFatal(err) {
		return 1
	}

	return 3
}
