package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateStage is returned when a stage id is registered twice.
	ErrDuplicateStage = errors.New("stage already registered")
	// ErrClosed is returned by operations on a closed Pipeline.
	ErrClosed = errors.New("pipeline closed")
	// ErrNoStage is returned by DrawFrame before any stage was selected.
	ErrNoStage = errors.New("no stage selected")
)

// CompileError carries the compiler diagnostics of a stage that failed to build.
type CompileError struct {
	Stage StageID
	Log   string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile stage %s: %s", e.Stage, e.Log)
}

func (e *CompileError) Unwrap() error { return e.Err }

// UnknownStageError means a stage was used that is not registered.
type UnknownStageError struct {
	Stage StageID
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %s", e.Stage)
}

// ResourceAllocationError wraps a failed render target allocation.
type ResourceAllocationError struct {
	What          string
	Width, Height int
	Err           error
}

func (e *ResourceAllocationError) Error() string {
	return fmt.Sprintf("allocate %s %dx%d: %v", e.What, e.Width, e.Height, e.Err)
}

func (e *ResourceAllocationError) Unwrap() error { return e.Err }
