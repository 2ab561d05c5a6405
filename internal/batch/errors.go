package batch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBatchInProgress = errors.New("a batch is already processing")
	ErrNoSource        = errors.New("batch has no record source")
	ErrTransformPanic  = errors.New("transform panicked")
)

// Failure is returned by Run when at least one transform failed.
type Failure struct {
	Total     int
	Failed    []Outcome
	Installed int
}

func (e *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d transforms failed", len(e.Failed), e.Total)
	if len(e.Failed) > 0 {
		first := e.Failed[0]
		fmt.Fprintf(&b, ": %s: %v", first.Name, first.Err)
	}
	return b.String()
}

// Unwrap exposes every per-record error to errors.Is and errors.As.
func (e *Failure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, o := range e.Failed {
		errs = append(errs, o.Err)
	}
	return errs
}
