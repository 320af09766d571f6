package taskmanager

import (
	"github.com/ramiqadoumi/go-task-agent/internal/domain"
)

// OperationBuilder turns a task into the operation list for one
// transformation type.
type OperationBuilder interface {
	TransformationType() string
	Operations(task *domain.Task, info *TransformationInfo) ([]domain.Operation, error)
}

// ReplicationOps replicates every input file to the transformation's target
// storage elements and registers the new replicas.
type ReplicationOps struct{}

func (ReplicationOps) TransformationType() string { return domain.TypeReplication }

func (ReplicationOps) Operations(task *domain.Task, info *TransformationInfo) ([]domain.Operation, error) {
	if len(info.Body.TargetSE) == 0 {
		return nil, &domain.BuildError{Key: task.Key(), Reason: "replication without target_se"}
	}
	return []domain.Operation{{
		Type:     domain.OpReplicateAndRegister,
		TargetSE: info.Body.TargetSE,
		SourceSE: info.Body.SourceSE,
		Files:    task.LFNs(),
	}}, nil
}

// RemovalOps removes every input file, optionally only from the target SEs.
type RemovalOps struct{}

func (RemovalOps) TransformationType() string { return domain.TypeRemoval }

func (RemovalOps) Operations(task *domain.Task, info *TransformationInfo) ([]domain.Operation, error) {
	return []domain.Operation{{
		Type:     domain.OpRemoveFile,
		TargetSE: info.Body.TargetSE,
		Files:    task.LFNs(),
	}}, nil
}
