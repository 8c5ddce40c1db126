package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/jobboard/pkg/models"
)

const taskColumns = `id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`

// EnqueueTask inserts a task into the tasks table and returns the new ID
func (r *SQLiteRepo) EnqueueTask(ctx context.Context, t *models.Task) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("task is nil")
	}
	return insertTask(ctx, r.conn.GetConn(), t)
}

func insertTask(ctx context.Context, ex execer, t *models.Task) (int64, error) {
	if t.MaxAttempts == 0 {
		t.MaxAttempts = 5
	}
	if t.Priority == 0 {
		t.Priority = 100
	}
	ts := now()
	if t.ScheduledAt == 0 {
		t.ScheduledAt = ts
	}
	q := `INSERT INTO tasks (type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES (?, ?, 'queued', ?, ?, ?, ?, ?, ?)`
	res, err := ex.ExecContext(ctx, q, t.Type, string(t.Payload), t.Attempts, t.MaxAttempts, t.Priority, t.ScheduledAt, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}

	return res.LastInsertId()
}

// FetchNextTask claims the next runnable task respecting priority and
// schedule. The claim is a single UPDATE, so two workers never get the same row.
func (r *SQLiteRepo) FetchNextTask(ctx context.Context) (*models.Task, error) {
	ts := now()
	q := `UPDATE tasks SET status = 'running', updated = ?
		WHERE id = (
			SELECT id FROM tasks
			WHERE status IN ('queued', 'retry') AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ?
			ORDER BY priority ASC, scheduled_at ASC, id ASC
			LIMIT 1
		)
		RETURNING ` + taskColumns
	row := r.conn.QueryRow(ctx, q, ts, ts, ts)

	var (
		t         models.Task
		payload   sql.NullString
		nextTry   sql.NullInt64
		lastError sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Type, &payload, &t.Status, &t.Attempts, &t.MaxAttempts, &t.Priority, &t.ScheduledAt, &nextTry, &lastError, &t.Created, &t.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch next task: %w", err)
	}
	if payload.Valid {
		t.Payload = []byte(payload.String)
	}
	if nextTry.Valid {
		v := nextTry.Int64
		t.NextTryAt = &v
	}
	if lastError.Valid {
		t.LastError = lastError.String
	}

	return &t, nil
}

// UpdateTask updates attempts, status, next_try_at, last_error
func (r *SQLiteRepo) UpdateTask(ctx context.Context, t *models.Task) error {
	var nextTry any
	if t.NextTryAt != nil {
		nextTry = *t.NextTryAt
	}
	q := `UPDATE tasks SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.conn.Exec(ctx, q, t.Status, t.Attempts, nextTry, t.LastError, now(), t.ID)
	return err
}

// MoveTaskToDeadLetter moves a task to dead_letter_tasks and deletes the original
func (r *SQLiteRepo) MoveTaskToDeadLetter(ctx context.Context, t *models.Task) error {
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		insert := `INSERT INTO dead_letter_tasks (task_id, type, payload, attempts, last_error, failed_at) VALUES (?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insert, t.ID, t.Type, string(t.Payload), t.Attempts, t.LastError, now()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, t.ID)
		return err
	})
}

func (r *SQLiteRepo) RequeueRunningTasks(ctx context.Context) (int64, error) {
	res, err := r.conn.Exec(ctx, `UPDATE tasks SET status = 'queued', updated = ? WHERE status = 'running'`, now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
