package domain_test

import (
	"testing"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
)

func TestStatusConstants(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   string
	}{
		{domain.StatusNew, "New"},
		{domain.StatusBuilding, "Building"},
		{domain.StatusSubmitted, "Submitted"},
		{domain.StatusDone, "Done"},
		{domain.StatusFailed, "Failed"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("Status value = %q, want %q", tt.status, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []domain.Status{domain.StatusDone, domain.StatusFailed} {
		if !s.IsTerminal() {
			t.Errorf("IsTerminal(%q) = false, want true", s)
		}
	}
	for _, s := range []domain.Status{domain.StatusNew, domain.StatusBuilding, domain.StatusSubmitted} {
		if s.IsTerminal() {
			t.Errorf("IsTerminal(%q) = true, want false", s)
		}
	}
}

func TestCanTransition_TerminalIsSticky(t *testing.T) {
	all := []domain.Status{
		domain.StatusNew, domain.StatusBuilding, domain.StatusSubmitted,
		domain.StatusDone, domain.StatusFailed,
	}
	for _, from := range []domain.Status{domain.StatusDone, domain.StatusFailed} {
		for _, to := range all {
			got := from.CanTransition(to)
			want := from == to
			if got != want {
				t.Errorf("%s -> %s: CanTransition = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_Lifecycle(t *testing.T) {
	tests := []struct {
		from, to domain.Status
		want     bool
	}{
		{domain.StatusNew, domain.StatusBuilding, true},
		{domain.StatusBuilding, domain.StatusSubmitted, true},
		{domain.StatusBuilding, domain.StatusFailed, true},
		{domain.StatusBuilding, domain.StatusNew, true},
		{domain.StatusSubmitted, domain.StatusDone, true},
		{domain.StatusSubmitted, domain.StatusNew, true},
		{domain.StatusNew, domain.StatusDone, false},
		{domain.StatusNew, domain.StatusSubmitted, false},
		{domain.StatusSubmitted, domain.StatusBuilding, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFileStatus_ForwardOnly(t *testing.T) {
	if !domain.FileUnused.CanTransition(domain.FileProcessed) {
		t.Error("Unused -> Processed should be allowed")
	}
	if !domain.FileAssigned.CanTransition(domain.FileProcessed) {
		t.Error("Assigned -> Processed should be allowed")
	}
	if domain.FileProcessed.CanTransition(domain.FileUnused) {
		t.Error("Processed -> Unused must require a forced reset")
	}
	if domain.FileUnused.CanTransition(domain.FileStatus("Bogus")) {
		t.Error("unknown file status must be rejected")
	}
}

func TestTaskKey_String(t *testing.T) {
	k := domain.TaskKey{TransformationID: 42, TaskID: 7}
	if got, want := k.String(), "00000042_00000007"; got != want {
		t.Errorf("TaskKey.String() = %q, want %q", got, want)
	}
}

func TestMapRemoteStatus(t *testing.T) {
	tests := map[string]domain.RemoteState{
		"Done":      domain.RemoteDone,
		"Failed":    domain.RemoteFailed,
		"Canceled":  domain.RemoteFailed,
		"Waiting":   domain.RemotePending,
		"Scheduled": domain.RemotePending,
		"":          domain.RemotePending,
		"Mystery":   domain.RemotePending,
	}
	for raw, want := range tests {
		if got := domain.MapRemoteStatus(raw); got != want {
			t.Errorf("MapRemoteStatus(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestRemoteState_TaskStatus(t *testing.T) {
	if s, ok := domain.RemoteDone.TaskStatus(); !ok || s != domain.StatusDone {
		t.Errorf("RemoteDone.TaskStatus() = %q, %v", s, ok)
	}
	if s, ok := domain.RemoteFailed.TaskStatus(); !ok || s != domain.StatusFailed {
		t.Errorf("RemoteFailed.TaskStatus() = %q, %v", s, ok)
	}
	if _, ok := domain.RemotePending.TaskStatus(); ok {
		t.Error("RemotePending must not map to a terminal status")
	}
}
