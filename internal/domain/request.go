package domain

// Operation types understood by the request management service.
const (
	OpReplicateAndRegister = "ReplicateAndRegister"
	OpRemoveFile           = "RemoveFile"
)

// Transformation types the request agent knows how to turn into requests.
const (
	TypeReplication = "Replication"
	TypeRemoval     = "Removal"
)

// Operation is one step of a request.
type Operation struct {
	Type     string   `json:"type"`
	TargetSE []string `json:"target_se,omitempty"`
	SourceSE []string `json:"source_se,omitempty"`
	Files    []string `json:"files"`
}

// Request is the payload submitted to the request management service.
// Name carries the task identity and is the idempotency key.
type Request struct {
	Name             string      `json:"name"`
	TransformationID int64       `json:"transformation_id"`
	TaskID           int64       `json:"task_id"`
	Type             string      `json:"type"`
	Operations       []Operation `json:"operations"`
	OutputFiles      []string    `json:"output_files,omitempty"`
}

// RemoteState is the local interpretation of a request's remote status.
type RemoteState string

const (
	RemotePending RemoteState = "Pending"
	RemoteDone    RemoteState = "Done"
	RemoteFailed  RemoteState = "Failed"
)

// MapRemoteStatus maps a raw RMS status onto a RemoteState. Anything that is
// not clearly terminal is treated as pending.
func MapRemoteStatus(raw string) RemoteState {
	switch raw {
	case "Done":
		return RemoteDone
	case "Failed", "Canceled":
		return RemoteFailed
	default:
		return RemotePending
	}
}

// TaskStatus returns the terminal task status for a terminal remote state.
func (s RemoteState) TaskStatus() (Status, bool) {
	switch s {
	case RemoteDone:
		return StatusDone, true
	case RemoteFailed:
		return StatusFailed, true
	}
	return "", false
}
