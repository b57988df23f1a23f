package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks caller mistakes: unknown target, negative day count, nil inputs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPredictorFailed is the sentinel behind every PredictorError.
	ErrPredictorFailed = errors.New("predictor failed")
)

// PredictorError reports a predictor call that failed or returned an
// unusable value. Day is 1-based.
type PredictorError struct {
	Model string
	Day   int
	Err   error
}

func (e *PredictorError) Error() string {
	return fmt.Sprintf("predictor %s failed on day %d: %v", e.Model, e.Day, e.Err)
}

// Unwrap exposes both ErrPredictorFailed and the underlying cause.
func (e *PredictorError) Unwrap() []error {
	return []error{ErrPredictorFailed, e.Err}
}
