// Package worker drains the bulk task queue. A single worker runs tasks one
// after another so bulk rebuilds never overlap.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pablobfonseca/go-photo-organizer/library"
	"github.com/pablobfonseca/go-photo-organizer/logging"
	"github.com/pablobfonseca/go-photo-organizer/queue"
)

// TaskQueue is the part of the queue the worker consumes.
type TaskQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.TaskPayload, error)
	SetStatus(ctx context.Context, taskID, status string) error
	StoreResult(ctx context.Context, taskID string, result any) error
}

// Runner executes bulk tasks.
type Runner interface {
	Reprocess(ctx context.Context) (library.BulkResult, error)
	Reorganize(ctx context.Context) (library.BulkResult, error)
}

// Worker represents a background worker that processes tasks from a queue
type Worker struct {
	queue       TaskQueue
	runner      Runner
	logger      *slog.Logger
	pollTimeout time.Duration
	retryDelay  time.Duration
	stopChan    chan struct{}
	doneChan    chan struct{}
}

// NewWorker creates a worker for q that hands tasks to runner.
func NewWorker(q TaskQueue, runner Runner, logger *slog.Logger) *Worker {
	return &Worker{
		queue:       q,
		runner:      runner,
		logger:      logging.OrDefault(logger),
		pollTimeout: 5 * time.Second,
		retryDelay:  time.Second,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

// Start begins processing tasks in the background.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting bulk task worker")
	go w.processItems(ctx)
}

// Stop signals the worker to stop and waits for the current task to finish.
func (w *Worker) Stop() {
	w.logger.Info("Stopping bulk task worker")
	close(w.stopChan)
	<-w.doneChan
	w.logger.Info("Bulk task worker stopped")
}

// processItems continuously processes tasks from the queue
func (w *Worker) processItems(ctx context.Context) {
	defer close(w.doneChan)

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("Error dequeueing task", "error", err)
			w.sleep(ctx, w.retryDelay)
			continue
		}
		if task == nil {
			continue
		}

		w.handle(ctx, task)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-w.stopChan:
	case <-ctx.Done():
	}
}

// handle runs one task and records its status and result.
func (w *Worker) handle(ctx context.Context, task *queue.TaskPayload) {
	log := w.logger.With("task_id", task.TaskID, "task_type", task.TaskType)
	log.Info("Processing task")

	if err := w.queue.SetStatus(ctx, task.TaskID, queue.StatusProcessing); err != nil {
		log.Error("Error updating task status", "error", err)
	}

	result, err := w.run(ctx, task)
	status := queue.StatusCompleted
	var stored any = result
	if err != nil {
		log.Error("Task failed", "error", err)
		status = queue.StatusFailed
		stored = map[string]any{"error": err.Error()}
	}

	if err := w.queue.SetStatus(ctx, task.TaskID, status); err != nil {
		log.Error("Error updating task status", "error", err)
	}
	if err := w.queue.StoreResult(ctx, task.TaskID, stored); err != nil {
		log.Error("Error storing task result", "error", err)
	}
	log.Info("Task finished", "status", status)
}

func (w *Worker) run(ctx context.Context, task *queue.TaskPayload) (library.BulkResult, error) {
	switch task.TaskType {
	case queue.TaskReprocess:
		return w.runner.Reprocess(ctx)
	case queue.TaskReorganize:
		return w.runner.Reorganize(ctx)
	default:
		return library.BulkResult{}, fmt.Errorf("unknown task type %q", task.TaskType)
	}
}
