// Package taskmanager builds, submits and monitors requests for
// transformation tasks.
package taskmanager

import (
	"context"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
)

// TaskManager is the submission capability injected into the agent.
type TaskManager interface {
	// TransformationTypes lists the types this manager handles.
	TransformationTypes() []string
	BuildRequest(ctx context.Context, task *domain.Task) (*domain.Request, error)
	Submit(ctx context.Context, req *domain.Request) (SubmitResult, error)
}

// StatusMonitor reports remote request states.
type StatusMonitor interface {
	Poll(ctx context.Context, tasks []*domain.Task) PollResult
}

// RequestTasks is the TaskManager for request management service requests.
type RequestTasks struct {
	registry  *Registry
	builder   *Builder
	submitter *Submitter
}

// NewRequestTasks wires a builder and a submitter over the same registry.
func NewRequestTasks(registry *Registry, builder *Builder, submitter *Submitter) *RequestTasks {
	return &RequestTasks{registry: registry, builder: builder, submitter: submitter}
}

func (m *RequestTasks) TransformationTypes() []string { return m.registry.Types() }

func (m *RequestTasks) BuildRequest(ctx context.Context, task *domain.Task) (*domain.Request, error) {
	return m.builder.Build(ctx, task)
}

func (m *RequestTasks) Submit(ctx context.Context, req *domain.Request) (SubmitResult, error) {
	return m.submitter.Submit(ctx, req)
}
