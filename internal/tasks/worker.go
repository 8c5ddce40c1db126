package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/garnizeh/jobboard/pkg/models"
	"github.com/garnizeh/jobboard/pkg/repository"
)

type WorkerPool struct {
	repo         repository.TaskRepo
	handlers     map[string]Handler
	logger       *slog.Logger
	workerCount  int
	pollInterval time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

func NewWorkerPool(repo repository.TaskRepo, handlers map[string]Handler, logger *slog.Logger, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		repo:         repo,
		handlers:     handlers,
		logger:       logger,
		workerCount:  workerCount,
		pollInterval: 500 * time.Millisecond,
		stop:         make(chan struct{}),
	}
}

// SetPollInterval changes how long an idle worker waits before polling again.
func (p *WorkerPool) SetPollInterval(d time.Duration) {
	if d > 0 {
		p.pollInterval = d
	}
}

// Start requeues tasks left running by a previous process and launches the
// worker goroutines.
func (p *WorkerPool) Start(ctx context.Context) {
	if n, err := p.repo.RequeueRunningTasks(ctx); err != nil {
		p.logger.Error("requeue running tasks", slog.Any("err", err))
	} else if n > 0 {
		p.logger.Info("requeued interrupted tasks", slog.Int64("count", n))
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// wait sleeps for d and reports false when the pool is stopping.
func (p *WorkerPool) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.stop:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Debug("worker stopping", slog.Int("id", id))
			return
		case <-ctx.Done():
			p.logger.Debug("context canceled, worker exiting", slog.Int("id", id))
			return
		default:
		}

		task, err := p.repo.FetchNextTask(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("fetch task", slog.Any("err", err))
			if !p.wait(ctx, time.Second) {
				return
			}
			continue
		}
		if task == nil {
			if !p.wait(ctx, p.pollInterval) {
				return
			}
			continue
		}

		p.process(ctx, task)
	}
}

func (p *WorkerPool) process(ctx context.Context, task *models.Task) {
	h, ok := p.handlers[task.Type]
	if !ok {
		task.Status = "failed"
		task.LastError = "no handler"
		if err := p.repo.MoveTaskToDeadLetter(ctx, task); err != nil {
			p.logger.Error("move to dead letter", slog.Int64("task_id", task.ID), slog.Any("err", err))
		}
		return
	}

	err := h(ctx, task)
	if err == nil {
		task.Status = "done"
		task.LastError = ""
		if upErr := p.repo.UpdateTask(ctx, task); upErr != nil {
			p.logger.Error("mark task done", slog.Int64("task_id", task.ID), slog.Any("err", upErr))
		}
		return
	}

	task.Attempts++
	task.LastError = err.Error()
	if errors.Is(err, ErrPermanent) || task.Attempts >= task.MaxAttempts {
		task.Status = "failed"
		p.logger.Warn("task failed permanently", slog.Int64("task_id", task.ID), slog.String("type", task.Type), slog.Any("err", err))
		if mvErr := p.repo.MoveTaskToDeadLetter(ctx, task); mvErr != nil {
			p.logger.Error("move to dead letter", slog.Int64("task_id", task.ID), slog.Any("err", mvErr))
		}
		return
	}

	next := time.Now().Add(BackoffDuration(task.Attempts)).UTC().UnixMilli()
	task.NextTryAt = &next
	task.Status = "retry"
	if upErr := p.repo.UpdateTask(ctx, task); upErr != nil {
		p.logger.Error("update task for retry", slog.Int64("task_id", task.ID), slog.Any("err", upErr))
	}
}

// Enqueue convenience helper that creates a task and persists it
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	return Enqueue(ctx, p.repo, typ, payload, priority, maxAttempts)
}
