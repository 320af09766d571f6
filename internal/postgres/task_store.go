package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
)

// Transformation parameter names accepted by GetTransformationParameters.
const (
	ParamName   = "Name"
	ParamType   = "Type"
	ParamStatus = "Status"
	ParamBody   = "Body"
)

var paramColumns = map[string]string{
	ParamName:   "name",
	ParamType:   "type",
	ParamStatus: "status",
	ParamBody:   "body::text",
}

// TaskFilter selects tasks for ListEligibleTasks.
type TaskFilter struct {
	Statuses            []domain.Status
	TransformationTypes []string // empty = any type
	ActiveOnly          bool     // only tasks of transformations with status Active
	Unreconciled        bool     // only tasks whose terminal status was not fully propagated
	ClaimedBefore       *time.Time
	Limit               int
}

// TaskStore abstracts the transformation database: tasks, their input files
// and transformation parameters.
type TaskStore interface {
	ListEligibleTasks(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)
	SetTaskStatus(ctx context.Context, transName string, taskID int64, status domain.Status) error
	SetFileStatus(ctx context.Context, transID int64, status domain.FileStatus, lfns []string, force bool) error
	GetTransformationParameters(ctx context.Context, transID int64, fields []string) (map[string]string, error)
	// ClaimTask moves a task from one status to another only if it is still
	// in the expected status. It reports whether this caller won the claim.
	ClaimTask(ctx context.Context, key domain.TaskKey, from, to domain.Status, owner string) (bool, error)
	RecordSubmission(ctx context.Context, key domain.TaskKey, requestID string) error
	MarkReconciled(ctx context.Context, key domain.TaskKey) error
}

type taskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore wraps a pgxpool with the TaskStore interface.
func NewTaskStore(pool *pgxpool.Pool) TaskStore {
	return &taskStore{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (s *taskStore) ListEligibleTasks(ctx context.Context, filter TaskFilter) ([]*domain.Task, error) {
	if len(filter.Statuses) == 0 {
		return nil, errors.New("list eligible tasks: at least one status is required")
	}
	statuses := make([]string, len(filter.Statuses))
	for i, st := range filter.Statuses {
		statuses[i] = string(st)
	}

	args := []any{statuses}
	where := []string{"t.status = ANY($1)"}
	if len(filter.TransformationTypes) > 0 {
		args = append(args, filter.TransformationTypes)
		where = append(where, fmt.Sprintf("tr.type = ANY($%d)", len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "tr.status = 'Active'")
	}
	if filter.Unreconciled {
		where = append(where, "t.reconciled = FALSE")
	}
	if filter.ClaimedBefore != nil {
		args = append(args, *filter.ClaimedBefore)
		where = append(where, fmt.Sprintf("t.claimed_at < $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT t.transformation_id, t.task_id, tr.name, tr.type, t.status,
		       COALESCE(t.external_id, ''), t.reconciled, COALESCE(t.claimed_by, ''), t.claimed_at,
		       t.created_at, t.updated_at,
		       COALESCE(array_agg(f.lfn ORDER BY f.lfn) FILTER (WHERE f.lfn IS NOT NULL), '{}'),
		       COALESCE(array_agg(f.status ORDER BY f.lfn) FILTER (WHERE f.lfn IS NOT NULL), '{}')
		FROM transformation_tasks t
		JOIN transformations tr ON tr.id = t.transformation_id
		LEFT JOIN transformation_files f
		       ON f.transformation_id = t.transformation_id AND f.task_id = t.task_id
		WHERE %s
		GROUP BY t.transformation_id, t.task_id, tr.name, tr.type
		ORDER BY t.created_at ASC, t.task_id ASC
		LIMIT $%d
	`, strings.Join(where, " AND "), len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list eligible tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *taskStore) SetTaskStatus(ctx context.Context, transName string, taskID int64, status domain.Status) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			key     domain.TaskKey
			current string
		)
		err := tx.QueryRow(ctx, `
			SELECT t.transformation_id, t.task_id, t.status
			FROM transformation_tasks t
			JOIN transformations tr ON tr.id = t.transformation_id
			WHERE tr.name = $1 AND t.task_id = $2
			FOR UPDATE OF t
		`, transName, taskID).Scan(&key.TransformationID, &key.TaskID, &current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &domain.TaskNotFoundError{Key: domain.TaskKey{TaskID: taskID}, Transformation: transName}
			}
			return fmt.Errorf("lock task %s/%d: %w", transName, taskID, err)
		}

		from := domain.Status(current)
		if from == status {
			return nil
		}
		if from.IsTerminal() {
			return &domain.TerminalStatusError{Key: key, Current: from, Wanted: status}
		}
		if !from.CanTransition(status) {
			return fmt.Errorf("task %s: illegal transition %s -> %s", key, from, status)
		}

		_, err = tx.Exec(ctx, `
			UPDATE transformation_tasks
			SET status = $1, updated_at = NOW(), claimed_by = NULL, claimed_at = NULL
			WHERE transformation_id = $2 AND task_id = $3
		`, string(status), key.TransformationID, key.TaskID)
		if err != nil {
			return fmt.Errorf("update status for task %s: %w", key, err)
		}
		return nil
	})
}

func (s *taskStore) SetFileStatus(ctx context.Context, transID int64, status domain.FileStatus, lfns []string, force bool) error {
	if len(lfns) == 0 {
		return nil
	}
	if force {
		_, err := s.pool.Exec(ctx, `
			UPDATE transformation_files
			SET status = $1, updated_at = NOW()
			WHERE transformation_id = $2 AND lfn = ANY($3)
		`, string(status), transID, lfns)
		if err != nil {
			return fmt.Errorf("force file status %s for transformation %d: %w", status, transID, err)
		}
		return nil
	}

	var from []string
	for _, fs := range []domain.FileStatus{domain.FileUnused, domain.FileAssigned, domain.FileProcessed} {
		if fs.CanTransition(status) {
			from = append(from, string(fs))
		}
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE transformation_files
		SET status = $1, updated_at = NOW()
		WHERE transformation_id = $2 AND lfn = ANY($3) AND status = ANY($4)
	`, string(status), transID, lfns, from)
	if err != nil {
		return fmt.Errorf("set file status %s for transformation %d: %w", status, transID, err)
	}
	return nil
}

func (s *taskStore) GetTransformationParameters(ctx context.Context, transID int64, fields []string) (map[string]string, error) {
	if len(fields) == 0 {
		return map[string]string{}, nil
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		col, ok := paramColumns[f]
		if !ok {
			return nil, fmt.Errorf("unknown transformation parameter %q", f)
		}
		cols[i] = col
	}

	values := make([]string, len(fields))
	dest := make([]any, len(fields))
	for i := range values {
		dest[i] = &values[i]
	}
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM transformations WHERE id = $1", strings.Join(cols, ", ")),
		transID,
	).Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TransformationNotFoundError{TransformationID: transID}
		}
		return nil, fmt.Errorf("get parameters for transformation %d: %w", transID, err)
	}

	params := make(map[string]string, len(fields))
	for i, f := range fields {
		params[f] = values[i]
	}
	return params, nil
}

func (s *taskStore) ClaimTask(ctx context.Context, key domain.TaskKey, from, to domain.Status, owner string) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("claim task %s: illegal transition %s -> %s", key, from, to)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE transformation_tasks
		SET status     = $1,
		    claimed_by = CASE WHEN $1 = 'Building' THEN $2 ELSE NULL END,
		    claimed_at = CASE WHEN $1 = 'Building' THEN NOW() ELSE NULL END,
		    updated_at = NOW()
		WHERE transformation_id = $3 AND task_id = $4 AND status = $5
	`, string(to), owner, key.TransformationID, key.TaskID, string(from))
	if err != nil {
		return false, fmt.Errorf("claim task %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *taskStore) RecordSubmission(ctx context.Context, key domain.TaskKey, requestID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transformation_tasks
		SET status = 'Submitted', external_id = $1, claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE transformation_id = $2 AND task_id = $3 AND status IN ('Building', 'Submitted')
	`, requestID, key.TransformationID, key.TaskID)
	if err != nil {
		return fmt.Errorf("record submission for task %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{Key: key}
	}
	return nil
}

func (s *taskStore) MarkReconciled(ctx context.Context, key domain.TaskKey) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE transformation_tasks
		SET reconciled = TRUE, updated_at = NOW()
		WHERE transformation_id = $1 AND task_id = $2 AND status IN ('Done', 'Failed')
	`, key.TransformationID, key.TaskID)
	if err != nil {
		return fmt.Errorf("mark task %s reconciled: %w", key, err)
	}
	return nil
}

// scanTask reads a task row from any pgx row type.
func scanTask(row interface {
	Scan(...any) error
}) (*domain.Task, error) {
	var (
		task         domain.Task
		statusStr    string
		lfns         []string
		fileStatuses []string
	)
	err := row.Scan(
		&task.TransformationID, &task.TaskID, &task.TransformationName, &task.TransformationType,
		&statusStr, &task.RequestID, &task.Reconciled, &task.ClaimedBy, &task.ClaimedAt,
		&task.CreatedAt, &task.UpdatedAt, &lfns, &fileStatuses,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Status = domain.Status(statusStr)
	task.Files = make([]domain.InputFile, len(lfns))
	for i, lfn := range lfns {
		task.Files[i] = domain.InputFile{LFN: lfn, Status: domain.FileStatus(fileStatuses[i])}
	}
	return &task, nil
}
