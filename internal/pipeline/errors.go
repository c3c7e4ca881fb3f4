package pipeline

import (
	"fmt"

	"github.com/i474232898/track-enrichment/internal/ingest"
)

// ErrMissingInput is returned when the links file does not exist yet.
var ErrMissingInput = ingest.ErrMissingInput

// StageError is a whole-cycle failure raised while the driver was in State.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
