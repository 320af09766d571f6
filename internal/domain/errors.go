package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure by how the agent must react to it.
type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindTransient        Kind = "transient"
	KindPermanentBuild   Kind = "permanent_build"
	KindPermanentRemote  Kind = "permanent_remote"
	KindReconcilePartial Kind = "reconcile_partial"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindSkipped          Kind = "skipped"
)

// Retryable reports whether the next cycle may succeed without intervention.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindReconcilePartial || k == KindUnknown
}

// TaskNotFoundError is returned when a task does not exist in the store.
// Lookups by transformation name set Transformation and leave
// Key.TransformationID zero.
type TaskNotFoundError struct {
	Key            TaskKey
	Transformation string
}

func (e *TaskNotFoundError) Error() string {
	if e.Transformation != "" {
		return fmt.Sprintf("task not found: %s/%d", e.Transformation, e.Key.TaskID)
	}
	return fmt.Sprintf("task not found: %s", e.Key)
}

// TransformationNotFoundError is returned when a transformation id is unknown.
type TransformationNotFoundError struct {
	TransformationID int64
}

func (e *TransformationNotFoundError) Error() string {
	return fmt.Sprintf("transformation not found: %d", e.TransformationID)
}

// TypeNotEnabledError is returned when a transformation type is outside the
// agent's allow-list. Such tasks are skipped, not failed.
type TypeNotEnabledError struct {
	TransformationType string
}

func (e *TypeNotEnabledError) Error() string {
	return fmt.Sprintf("transformation type %q is not enabled for this agent", e.TransformationType)
}

// BuildError is returned when a task cannot be turned into a request.
type BuildError struct {
	Key    TaskKey
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("build request for task %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("build request for task %s: %s", e.Key, e.Reason)
}

func (e *BuildError) Unwrap() error { return e.Err }

// RemoteError is a failure reported by, or on the way to, the request
// management service.
type RemoteError struct {
	Op        string
	Message   string
	Permanent bool
	Err       error
}

func (e *RemoteError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("rms %s (%s): %s: %v", e.Op, kind, e.Message, e.Err)
	}
	return fmt.Sprintf("rms %s (%s): %s", e.Op, kind, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// RateLimitExceededError is returned when submissions for a transformation
// type exceed the configured rate.
type RateLimitExceededError struct {
	TransformationType string
	Limit              int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for transformation type %q: limit is %d", e.TransformationType, e.Limit)
}

// TerminalStatusError is returned when a write would move a terminal task to
// a different status.
type TerminalStatusError struct {
	Key     TaskKey
	Current Status
	Wanted  Status
}

func (e *TerminalStatusError) Error() string {
	return fmt.Sprintf("task %s is terminal (%s), refusing transition to %s", e.Key, e.Current, e.Wanted)
}

// ReconcileError collects the steps that failed during one reconciliation.
type ReconcileError struct {
	Key   TaskKey
	Steps map[string]error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile task %s: %d step(s) failed", e.Key, len(e.Steps))
}

// KindOf classifies err. Nil errors have no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		buildErr    *BuildError
		remoteErr   *RemoteError
		rateErr     *RateLimitExceededError
		notFound    *TaskNotFoundError
		transErr    *TransformationNotFoundError
		terminalErr *TerminalStatusError
		typeErr     *TypeNotEnabledError
		reconErr    *ReconcileError
	)
	switch {
	case errors.As(err, &typeErr):
		return KindSkipped
	case errors.As(err, &buildErr):
		return KindPermanentBuild
	case errors.As(err, &remoteErr):
		if remoteErr.Permanent {
			return KindPermanentRemote
		}
		return KindTransient
	case errors.As(err, &rateErr):
		return KindTransient
	case errors.As(err, &terminalErr):
		return KindConflict
	case errors.As(err, &notFound), errors.As(err, &transErr):
		return KindNotFound
	case errors.As(err, &reconErr):
		return KindReconcilePartial
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTransient
	}
	return KindUnknown
}
