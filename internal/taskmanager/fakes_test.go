package taskmanager

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
	"github.com/ramiqadoumi/go-task-agent/internal/postgres"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeParams serves transformation parameters from memory.
type fakeParams struct {
	mu    sync.Mutex
	trans map[int64]map[string]string
	err   error
	calls int
}

func newFakeParams() *fakeParams {
	return &fakeParams{trans: make(map[int64]map[string]string)}
}

func (f *fakeParams) add(id int64, name, typ, body string) {
	f.trans[id] = map[string]string{
		postgres.ParamName: name,
		postgres.ParamType: typ,
		postgres.ParamBody: body,
	}
}

func (f *fakeParams) GetTransformationParameters(_ context.Context, id int64, fields []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.trans[id]
	if !ok {
		return nil, &domain.TransformationNotFoundError{TransformationID: id}
	}
	out := make(map[string]string, len(fields))
	for _, name := range fields {
		out[name] = t[name]
	}
	return out, nil
}

// fakeRMS records submissions and answers status queries from a table.
type fakeRMS struct {
	mu          sync.Mutex
	submitted   []*domain.Request
	submitErr   error
	nextID      string
	statuses    map[string]string
	statusErr   error
	statusCalls [][]string
}

func (f *fakeRMS) Submit(_ context.Context, req *domain.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	if f.nextID != "" {
		return f.nextID, nil
	}
	return "req-" + req.Name, nil
}

func (f *fakeRMS) QueryStatus(_ context.Context, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, append([]string(nil), ids...))
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	out := make(map[string]string)
	for _, id := range ids {
		if s, ok := f.statuses[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu        sync.Mutex
	entries   map[string]string
	lookupErr error
	recordErr error
}

func newFakeLedger() *fakeLedger { return &fakeLedger{entries: make(map[string]string)} }

func (f *fakeLedger) Lookup(_ context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return "", false, f.lookupErr
	}
	id, ok := f.entries[name]
	return id, ok, nil
}

func (f *fakeLedger) Record(_ context.Context, name, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return "", f.recordErr
	}
	if existing, ok := f.entries[name]; ok {
		return existing, nil
	}
	f.entries[name] = id
	return id, nil
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (f fakeLimiter) Allow(context.Context, string) (bool, error) { return f.allow, f.err }
func (f fakeLimiter) Limit() int                                  { return 10 }
