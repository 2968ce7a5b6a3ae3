package pipeline

import (
	"errors"
	"fmt"
)

// Stage is a step of question processing.
type Stage int

const (
	StageImproving Stage = iota
	StageRouting
	StageEmbedding
	StageSearching
	StageContextBuilding
	StageGenerating
	StageValidating
	StagePersisting
	StageDone
	StageRetrying
	StageFailed
)

var stageNames = [...]string{
	StageImproving:       "improving",
	StageRouting:         "routing",
	StageEmbedding:       "embedding",
	StageSearching:       "searching",
	StageContextBuilding: "context_building",
	StageGenerating:      "generating",
	StageValidating:      "validating",
	StagePersisting:      "persisting",
	StageDone:            "done",
	StageRetrying:        "retrying",
	StageFailed:          "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ErrPipelineExhausted matches every *ExhaustedError.
var ErrPipelineExhausted = errors.New("pipeline exhausted")

// StageError records the stage in which an attempt failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Stage.String() + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// ExhaustedError is returned once every attempt has failed. Err is the
// failure of the last attempt.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("pipeline exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func (e *ExhaustedError) Is(target error) bool { return target == ErrPipelineExhausted }
