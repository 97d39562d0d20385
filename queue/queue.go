// Package queue is a Redis list backed task queue with per-task status and
// result keys.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pablobfonseca/go-photo-organizer/apperrors"
	"github.com/pablobfonseca/go-photo-organizer/logging"
)

// BulkQueue is the list holding reprocess and reorganize tasks.
const BulkQueue = "photo_bulk_tasks"

// Task types.
const (
	TaskReprocess  = "reprocess"
	TaskReorganize = "reorganize"
)

// Task statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DefaultTTL is how long task status and results are kept.
const DefaultTTL = 24 * time.Hour

type TaskPayload struct {
	TaskID   string         `json:"task_id"`
	TaskType string         `json:"task_type"`
	Data     map[string]any `json:"data,omitempty"`
	Created  time.Time      `json:"created"`
}

// TaskInfo is what clients see of a task.
type TaskInfo struct {
	TaskID string         `json:"taskId"`
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
}

// Queue enqueues and dequeues tasks on one Redis list.
type Queue struct {
	client *redis.Client
	name   string
	ttl    time.Duration
	logger *slog.Logger
}

// Connect creates a Redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// New creates a queue on the named list.
func New(client *redis.Client, name string, logger *slog.Logger) *Queue {
	return &Queue{client: client, name: name, ttl: DefaultTTL, logger: logging.OrDefault(logger)}
}

func statusKey(taskID string) string { return fmt.Sprintf("task:%s:status", taskID) }

func resultKey(taskID string) string { return fmt.Sprintf("task:%s:result", taskID) }

// Enqueue adds a task and marks it queued.
func (q *Queue) Enqueue(ctx context.Context, taskType string, data map[string]any) (string, error) {
	task := TaskPayload{
		TaskID:   uuid.NewString(),
		TaskType: taskType,
		Data:     data,
		Created:  time.Now().UTC(),
	}

	taskJSON, err := json.Marshal(task)
	if err != nil {
		return "", err
	}

	if err := q.SetStatus(ctx, task.TaskID, StatusQueued); err != nil {
		return "", err
	}
	if err := q.client.RPush(ctx, q.name, taskJSON).Err(); err != nil {
		return "", err
	}

	q.logger.Info("Task enqueued", "task_id", task.TaskID, "task_type", taskType)
	return task.TaskID, nil
}

// Dequeue blocks up to timeout for the next task. It returns nil, nil when
// no task arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*TaskPayload, error) {
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	// Result contains queue name at index 0 and payload at index 1
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid result format from redis")
	}
	return decodeTask(result[1])
}

func decodeTask(raw string) (*TaskPayload, error) {
	var task TaskPayload
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	if task.TaskID == "" || task.TaskType == "" {
		return nil, fmt.Errorf("decode task: missing id or type")
	}
	return &task, nil
}

// SetStatus updates the status of a task.
func (q *Queue) SetStatus(ctx context.Context, taskID, status string) error {
	return q.client.Set(ctx, statusKey(taskID), status, q.ttl).Err()
}

// StoreResult stores the result of a finished task.
func (q *Queue) StoreResult(ctx context.Context, taskID string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, resultKey(taskID), resultJSON, q.ttl).Err()
}

// Task returns the status and result of a task. Unknown or expired tasks are
// NotFound.
func (q *Queue) Task(ctx context.Context, taskID string) (TaskInfo, error) {
	status, err := q.client.Get(ctx, statusKey(taskID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TaskInfo{}, apperrors.NewNotFoundError("task", taskID)
		}
		return TaskInfo{}, err
	}

	info := TaskInfo{TaskID: taskID, Status: status}
	resultJSON, err := q.client.Get(ctx, resultKey(taskID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return info, nil
	case err != nil:
		return TaskInfo{}, err
	}
	if err := json.Unmarshal([]byte(resultJSON), &info.Result); err != nil {
		return TaskInfo{}, fmt.Errorf("decode task result: %w", err)
	}
	return info, nil
}
