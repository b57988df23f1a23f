package features

import (
	"errors"
	"fmt"
)

// ErrReconstructionGap is the sentinel behind every GapError.
var ErrReconstructionGap = errors.New("reconstruction gap")

// GapError reports a required feature that no stage produced and the
// template record did not carry. Stage is the stage of the rule that should
// have produced it, or StageReindex when no rule knows the name.
type GapError struct {
	Stage   Stage
	Feature string
}

func (e *GapError) Error() string {
	return fmt.Sprintf("reconstruction gap at %s stage: feature %q has no value", e.Stage, e.Feature)
}

func (e *GapError) Unwrap() error {
	return ErrReconstructionGap
}
