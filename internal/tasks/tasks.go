// Package tasks runs durable background tasks stored in the tasks table.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/jobboard/internal/blob"
	"github.com/garnizeh/jobboard/pkg/models"
	"github.com/garnizeh/jobboard/pkg/repository"
)

// Handler processes one task.
type Handler func(ctx context.Context, t *models.Task) error

// ErrPermanent marks a failure that retrying cannot fix. The task is dead
// lettered at once.
var ErrPermanent = errors.New("permanent task failure")

// Permanent wraps err so the pool does not retry it.
func Permanent(err error) error {
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	if attempt > 16 {
		attempt = 16
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	limit := 5 * time.Minute
	if d > limit {
		return limit
	}
	return d
}

// Enqueue persists a task of type typ with a JSON payload.
func Enqueue(ctx context.Context, repo repository.TaskRepo, typ string, payload any, priority, maxAttempts int) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	t := &models.Task{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts, ScheduledAt: time.Now().UTC().UnixMilli()}
	return repo.EnqueueTask(ctx, t)
}

// EnqueueDiscard schedules removal of a blob that no row references.
func EnqueueDiscard(ctx context.Context, repo repository.TaskRepo, handle string) (int64, error) {
	return Enqueue(ctx, repo, models.TaskBlobDiscard, models.BlobDiscardPayload{Handle: handle}, 0, 0)
}

// DiscardHandler returns the blob.discard handler backed by stager.
func DiscardHandler(stager blob.Stager) Handler {
	return func(ctx context.Context, t *models.Task) error {
		var p models.BlobDiscardPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return Permanent(fmt.Errorf("decode payload: %w", err))
		}
		if err := stager.Discard(ctx, p.Handle); err != nil {
			if errors.Is(err, blob.ErrInvalidHandle) {
				return Permanent(err)
			}
			return err
		}
		return nil
	}
}
