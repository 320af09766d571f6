package domain

import (
	"fmt"
	"time"
)

// Status represents the lifecycle states of a transformation task.
type Status string

const (
	StatusNew       Status = "New"
	StatusBuilding  Status = "Building"
	StatusSubmitted Status = "Submitted"
	StatusDone      Status = "Done"
	StatusFailed    Status = "Failed"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
// Terminal statuses only accept themselves; Building and Submitted may fall
// back to New when a claim is released after a transient failure.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusNew:
		return next == StatusBuilding || next == StatusFailed
	case StatusBuilding:
		return next == StatusNew || next == StatusSubmitted || next == StatusFailed
	case StatusSubmitted:
		return next == StatusNew || next.IsTerminal()
	default:
		return false
	}
}

// FileStatus is the processing state of a task's input file.
type FileStatus string

const (
	FileUnused    FileStatus = "Unused"
	FileAssigned  FileStatus = "Assigned"
	FileProcessed FileStatus = "Processed"
)

func (s FileStatus) rank() int {
	switch s {
	case FileUnused:
		return 0
	case FileAssigned:
		return 1
	case FileProcessed:
		return 2
	}
	return -1
}

// CanTransition reports whether a file may move from s to next. Forced resets
// to Unused bypass this check at the store.
func (s FileStatus) CanTransition(next FileStatus) bool {
	return next.rank() >= s.rank() && next.rank() >= 0
}

// TaskKey identifies a task within the transformation store.
type TaskKey struct {
	TransformationID int64 `json:"transformation_id"`
	TaskID           int64 `json:"task_id"`
}

// String returns the request name for the task, which doubles as the
// idempotency key toward the request management service.
func (k TaskKey) String() string {
	return fmt.Sprintf("%08d_%08d", k.TransformationID, k.TaskID)
}

// InputFile is a logical file owned by one task.
type InputFile struct {
	LFN    string     `json:"lfn"`
	Status FileStatus `json:"status"`
}

// Task is a unit of work recorded in the transformation store.
type Task struct {
	TransformationID   int64       `json:"transformation_id"`
	TaskID             int64       `json:"task_id"`
	TransformationName string      `json:"transformation_name"`
	TransformationType string      `json:"transformation_type"`
	Files              []InputFile `json:"files"`
	Status             Status      `json:"status"`
	RequestID          string      `json:"request_id,omitempty"`
	Reconciled         bool        `json:"reconciled"`
	ClaimedBy          string      `json:"claimed_by,omitempty"`
	ClaimedAt          *time.Time  `json:"claimed_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Key returns the task identity.
func (t *Task) Key() TaskKey {
	return TaskKey{TransformationID: t.TransformationID, TaskID: t.TaskID}
}

// LFNs returns the logical file names of the task's input files.
func (t *Task) LFNs() []string {
	lfns := make([]string, 0, len(t.Files))
	for _, f := range t.Files {
		lfns = append(lfns, f.LFN)
	}
	return lfns
}

// JobRecord mirrors the job bookkeeping attributes the agent touches.
type JobRecord struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	MinorStatus string    `json:"minor_status"`
	LastUpdate  time.Time `json:"last_update"`
}

// LogEntry is one append-only audit record for a job.
type LogEntry struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	MinorStatus string    `json:"minor_status"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}
