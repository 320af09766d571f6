package agent_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
	"github.com/ramiqadoumi/go-task-agent/internal/postgres"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type transformation struct {
	name, typ, status, body string
}

// memStore is an in-memory task store with the same conditional-write rules
// as the Postgres implementation.
type memStore struct {
	mu      sync.Mutex
	trans   map[int64]transformation
	tasks   map[domain.TaskKey]*domain.Task
	listErr error
	lists   int
}

func newMemStore() *memStore {
	return &memStore{trans: make(map[int64]transformation), tasks: make(map[domain.TaskKey]*domain.Task)}
}

func (s *memStore) addTransformation(id int64, typ, body string) {
	s.trans[id] = transformation{name: transName(id), typ: typ, status: "Active", body: body}
}

func (s *memStore) addTask(transID, taskID int64, status domain.Status, lfns ...string) *domain.Task {
	tr := s.trans[transID]
	task := &domain.Task{
		TransformationID:   transID,
		TaskID:             taskID,
		TransformationName: tr.name,
		TransformationType: tr.typ,
		Status:             status,
		CreatedAt:          time.Now(),
	}
	for _, lfn := range lfns {
		task.Files = append(task.Files, domain.InputFile{LFN: lfn, Status: domain.FileAssigned})
	}
	s.tasks[task.Key()] = task
	return task
}

func (s *memStore) task(transID, taskID int64) domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTask(s.tasks[domain.TaskKey{TransformationID: transID, TaskID: taskID}])
}

func copyTask(t *domain.Task) domain.Task {
	c := *t
	c.Files = slices.Clone(t.Files)
	return c
}

func (s *memStore) ListEligibleTasks(_ context.Context, f postgres.TaskFilter) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*domain.Task
	for _, t := range s.tasks {
		tr := s.trans[t.TransformationID]
		switch {
		case !slices.Contains(f.Statuses, t.Status):
		case len(f.TransformationTypes) > 0 && !slices.Contains(f.TransformationTypes, tr.typ):
		case f.ActiveOnly && tr.status != "Active":
		case f.Unreconciled && t.Reconciled:
		case f.ClaimedBefore != nil && (t.ClaimedAt == nil || !t.ClaimedAt.Before(*f.ClaimedBefore)):
		default:
			c := copyTask(t)
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Task) int { return int(a.TaskID - b.TaskID) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) ClaimTask(_ context.Context, key domain.TaskKey, from, to domain.Status, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	if to == domain.StatusBuilding {
		now := time.Now()
		t.ClaimedBy, t.ClaimedAt = owner, &now
	} else {
		t.ClaimedBy, t.ClaimedAt = "", nil
	}
	return true, nil
}

func (s *memStore) RecordSubmission(_ context.Context, key domain.TaskKey, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok || (t.Status != domain.StatusBuilding && t.Status != domain.StatusSubmitted) {
		return &domain.TaskNotFoundError{Key: key}
	}
	t.Status, t.RequestID = domain.StatusSubmitted, requestID
	t.ClaimedBy, t.ClaimedAt = "", nil
	return nil
}

func (s *memStore) SetTaskStatus(_ context.Context, name string, taskID int64, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tasks {
		if t.TransformationName != name || key.TaskID != taskID {
			continue
		}
		switch {
		case t.Status == status:
			return nil
		case t.Status.IsTerminal():
			return &domain.TerminalStatusError{Key: key, Current: t.Status, Wanted: status}
		case !t.Status.CanTransition(status):
			return errors.New("illegal transition")
		}
		t.Status = status
		t.ClaimedBy, t.ClaimedAt = "", nil
		return nil
	}
	return &domain.TaskNotFoundError{Key: domain.TaskKey{TaskID: taskID}, Transformation: name}
}

func (s *memStore) SetFileStatus(_ context.Context, transID int64, status domain.FileStatus, lfns []string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tasks {
		if key.TransformationID != transID {
			continue
		}
		for i, f := range t.Files {
			if slices.Contains(lfns, f.LFN) && (force || f.Status.CanTransition(status)) {
				t.Files[i].Status = status
			}
		}
	}
	return nil
}

func (s *memStore) MarkReconciled(_ context.Context, key domain.TaskKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[key]; ok && t.Status.IsTerminal() {
		t.Reconciled = true
	}
	return nil
}

func (s *memStore) GetTransformationParameters(_ context.Context, id int64, fields []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.trans[id]
	if !ok {
		return nil, &domain.TransformationNotFoundError{TransformationID: id}
	}
	values := map[string]string{
		postgres.ParamName:   tr.name,
		postgres.ParamType:   tr.typ,
		postgres.ParamStatus: tr.status,
		postgres.ParamBody:   tr.body,
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f] = values[f]
	}
	return out, nil
}

// fakeRMS accepts every request unless an error is configured for its name.
type fakeRMS struct {
	mu        sync.Mutex
	submitted []*domain.Request
	fail      map[string]error
	statuses  map[string]string
	queries   int
}

func newFakeRMS() *fakeRMS {
	return &fakeRMS{fail: make(map[string]error), statuses: make(map[string]string)}
}

func (f *fakeRMS) Submit(_ context.Context, req *domain.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[req.Name]; err != nil {
		return "", err
	}
	f.submitted = append(f.submitted, req)
	return "req-" + req.Name, nil
}

func (f *fakeRMS) QueryStatus(_ context.Context, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if s, ok := f.statuses[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *fakeRMS) setStatus(id, status string) {
	f.mu.Lock()
	f.statuses[id] = status
	f.mu.Unlock()
}

func (f *fakeRMS) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeLedger() *fakeLedger { return &fakeLedger{entries: make(map[string]string)} }

func (f *fakeLedger) Lookup(_ context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.entries[name]
	return id, ok, nil
}

func (f *fakeLedger) Record(_ context.Context, name, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.entries[name]; ok {
		return existing, nil
	}
	f.entries[name] = id
	return id, nil
}

// fakeLocker grants every lease except the ones marked busy.
type fakeLocker struct {
	mu   sync.Mutex
	busy map[string]bool
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{busy: make(map[string]bool), held: make(map[string]bool)}
}

func (f *fakeLocker) Acquire(_ context.Context, name string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy[name] || f.held[name] {
		return false, nil
	}
	f.held[name] = true
	return true, nil
}

func (f *fakeLocker) Release(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, name)
	return nil
}

type fakeJobs struct {
	mu       sync.Mutex
	attrs    map[string]map[string]string
	failNext int
}

func newFakeJobs() *fakeJobs { return &fakeJobs{attrs: make(map[string]map[string]string)} }

func (f *fakeJobs) SetJobAttribute(_ context.Context, jobID, name, value string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("job store unavailable")
	}
	if f.attrs[jobID] == nil {
		f.attrs[jobID] = make(map[string]string)
	}
	f.attrs[jobID][name] = value
	return nil
}

func (f *fakeJobs) GetJobAttributes(_ context.Context, jobID string, names []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for _, n := range names {
		if v, ok := f.attrs[jobID][n]; ok {
			out[n] = v
		}
	}
	return out, nil
}

func (f *fakeJobs) get(jobID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attrs[jobID][name]
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func (f *fakeLogs) AddLoggingRecord(_ context.Context, entry domain.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
