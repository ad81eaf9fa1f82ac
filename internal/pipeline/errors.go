package pipeline

import "fmt"

// StageError records which stage (and, for file stages, which source)
// failed. Unwrap exposes the cause, so errors.As still finds a
// *census.Error or an *fs.PathError.
type StageError struct {
	Stage  string
	Source string
	Err    error
}

func (e *StageError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Source, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
