package pipeline

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle state of the pipeline's index.
type State int

const (
	// StateEmpty means nothing has been ingested.
	StateEmpty State = iota
	// StateReady means the index holds a complete entry set.
	StateReady
	// StateRebuilding means an ingestion is running.
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	case StateRebuilding:
		return "rebuilding"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalJSON renders the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Stage names a step of ingestion.
type Stage string

const (
	StageLoad  Stage = "load"
	StageChunk Stage = "chunk"
	StageEmbed Stage = "embed"
	StageIndex Stage = "index"
)

// StageError attributes an ingestion failure to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
