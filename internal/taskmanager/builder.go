package taskmanager

import (
	"context"
	"errors"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
)

// Builder converts tasks into requests.
type Builder struct {
	registry *Registry
	infos    *InfoCache
}

// NewBuilder creates a Builder. Only types present in registry are built.
func NewBuilder(registry *Registry, infos *InfoCache) *Builder {
	return &Builder{registry: registry, infos: infos}
}

// Build returns the request for task. Errors are:
//   - *domain.TypeNotEnabledError when the type is outside the allow-list
//   - *domain.BuildError when the task or its transformation metadata is unusable
//   - anything else (store unreachable, timeout) when the task should be retried
func (b *Builder) Build(ctx context.Context, task *domain.Task) (*domain.Request, error) {
	ops, err := b.registry.Get(task.TransformationType)
	if err != nil {
		return nil, err
	}
	key := task.Key()

	info, err := b.infos.Get(ctx, task.TransformationID)
	if err != nil {
		var notFound *domain.TransformationNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, ErrInvalidBody) {
			return nil, &domain.BuildError{Key: key, Reason: "transformation metadata", Err: err}
		}
		return nil, err
	}
	if len(task.Files) == 0 {
		return nil, &domain.BuildError{Key: key, Reason: "task has no input files"}
	}

	operations, err := ops.Operations(task, info)
	if err != nil {
		return nil, err
	}
	outputs, err := OutputLFNs(task.TransformationID, task.TaskID, info.Body.OutputList)
	if err != nil {
		return nil, &domain.BuildError{Key: key, Reason: "output list", Err: err}
	}

	return &domain.Request{
		Name:             key.String(),
		TransformationID: task.TransformationID,
		TaskID:           task.TaskID,
		Type:             task.TransformationType,
		Operations:       operations,
		OutputFiles:      outputs,
	}, nil
}
