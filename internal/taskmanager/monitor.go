package taskmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
	"github.com/ramiqadoumi/go-task-agent/internal/rms"
)

const defaultStatusBatchSize = 100

// PollResult maps every polled task to its remote state. Tasks in a batch
// whose query failed are absent from States and counted in Errors.
type PollResult struct {
	States map[domain.TaskKey]domain.RemoteState
	Raw    map[domain.TaskKey]string
	Errors []error
}

// Monitor queries remote request states in bounded batches.
type Monitor struct {
	client    rms.Client
	batchSize int
	timeout   time.Duration
}

// NewMonitor creates a Monitor. batchSize caps the ids per remote call and
// timeout bounds each call.
func NewMonitor(client rms.Client, batchSize int, timeout time.Duration) *Monitor {
	if batchSize <= 0 {
		batchSize = defaultStatusBatchSize
	}
	return &Monitor{client: client, batchSize: batchSize, timeout: timeout}
}

// Poll returns the remote state of every task with a request id. Unknown or
// unrecognised remote states map to RemotePending.
func (m *Monitor) Poll(ctx context.Context, tasks []*domain.Task) PollResult {
	res := PollResult{
		States: make(map[domain.TaskKey]domain.RemoteState, len(tasks)),
		Raw:    make(map[domain.TaskKey]string, len(tasks)),
	}

	byID := make(map[string]domain.TaskKey, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.RequestID == "" {
			continue
		}
		if _, seen := byID[t.RequestID]; !seen {
			ids = append(ids, t.RequestID)
		}
		byID[t.RequestID] = t.Key()
	}

	for start := 0; start < len(ids); start += m.batchSize {
		end := min(start+m.batchSize, len(ids))
		batch := ids[start:end]

		statuses, err := m.query(ctx, batch)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("status batch %d-%d: %w", start, end, err))
			continue
		}
		for _, id := range batch {
			raw := statuses[id]
			key := byID[id]
			res.Raw[key] = raw
			res.States[key] = domain.MapRemoteStatus(raw)
		}
	}
	return res
}

func (m *Monitor) query(ctx context.Context, ids []string) (map[string]string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return m.client.QueryStatus(ctx, ids)
}
