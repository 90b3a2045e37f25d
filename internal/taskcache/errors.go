package taskcache

import (
	"errors"
	"fmt"
)

var (
	ErrSerializeInput = errors.New("serialize task input")
	ErrWriteMarker    = errors.New("write task marker")
	ErrReadMarker     = errors.New("read task marker")
	ErrFinalized      = errors.New("task marker already finalized")
)

// Code classifies task cache failures.
type Code int

const (
	// CodeSerializeInput means the hash input could not be serialized. Fatal.
	CodeSerializeInput Code = iota + 1
	// CodeWriteMarker means a marker could not be written or removed. Fatal.
	CodeWriteMarker
	// CodeReadMarker means an existing marker could not be read or parsed.
	// It is reported as a warning and the marker is treated as absent.
	CodeReadMarker
)

func (c Code) String() string {
	switch c {
	case CodeSerializeInput:
		return "serialize input"
	case CodeWriteMarker:
		return "write marker"
	case CodeReadMarker:
		return "read marker"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

func (c Code) sentinel() error {
	switch c {
	case CodeSerializeInput:
		return ErrSerializeInput
	case CodeWriteMarker:
		return ErrWriteMarker
	case CodeReadMarker:
		return ErrReadMarker
	}
	return nil
}

// Error is a task cache failure tagged with the task it concerns.
type Error struct {
	Code Code
	Kind Kind
	Task string // identity or marker path, for diagnostics
	Err  error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Kind != "" {
		msg += " " + string(e.Kind)
	}
	if e.Task != "" {
		msg += " " + e.Task
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's code.
func (e *Error) Is(target error) bool {
	s := e.Code.sentinel()
	return s != nil && target == s
}

// TaskError is returned when a task failed and recording that failure also
// failed. The task error is primary.
type TaskError struct {
	TaskErr   error
	MarkerErr error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%v (recording failure: %v)", e.TaskErr, e.MarkerErr)
}

func (e *TaskError) Unwrap() []error { return []error{e.TaskErr, e.MarkerErr} }
