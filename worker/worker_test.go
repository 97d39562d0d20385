package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pablobfonseca/go-photo-organizer/library"
	"github.com/pablobfonseca/go-photo-organizer/queue"
)

// fakeQueue hands out queued tasks and records status changes.
type fakeQueue struct {
	tasks chan *queue.TaskPayload

	mu       sync.Mutex
	statuses map[string][]string
	results  map[string]any
}

func newFakeQueue(tasks ...*queue.TaskPayload) *fakeQueue {
	q := &fakeQueue{
		tasks:    make(chan *queue.TaskPayload, len(tasks)),
		statuses: map[string][]string{},
		results:  map[string]any{},
	}
	for _, t := range tasks {
		q.tasks <- t
	}
	return q
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.TaskPayload, error) {
	select {
	case t := <-q.tasks:
		return t, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *fakeQueue) SetStatus(_ context.Context, taskID, status string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[taskID] = append(q.statuses[taskID], status)
	return nil
}

func (q *fakeQueue) StoreResult(_ context.Context, taskID string, result any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results[taskID] = result
	return nil
}

func (q *fakeQueue) status(taskID string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.statuses[taskID]...)
}

func (q *fakeQueue) result(taskID string) any {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.results[taskID]
}

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Reprocess(ctx context.Context) (library.BulkResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(library.BulkResult), args.Error(1)
}

func (m *MockRunner) Reorganize(ctx context.Context) (library.BulkResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(library.BulkResult), args.Error(1)
}

func TestWorker_RunsTasksInOrder(t *testing.T) {
	q := newFakeQueue(
		&queue.TaskPayload{TaskID: "t1", TaskType: queue.TaskReprocess},
		&queue.TaskPayload{TaskID: "t2", TaskType: queue.TaskReorganize},
		&queue.TaskPayload{TaskID: "t3", TaskType: "bogus"},
	)
	runner := new(MockRunner)
	runner.On("Reprocess", mock.Anything).Return(library.BulkResult{Processed: 4, Failed: []library.ItemError{}}, nil).Once()
	runner.On("Reorganize", mock.Anything).Return(library.BulkResult{}, errors.New("disk full")).Once()

	w := NewWorker(q, runner, nil)
	w.pollTimeout = 10 * time.Millisecond
	w.Start(context.Background())

	require.Eventually(t, func() bool {
		s := q.status("t3")
		return len(s) == 2
	}, 2*time.Second, 10*time.Millisecond)
	w.Stop()

	assert.Equal(t, []string{queue.StatusProcessing, queue.StatusCompleted}, q.status("t1"))
	assert.Equal(t, library.BulkResult{Processed: 4, Failed: []library.ItemError{}}, q.result("t1"))

	assert.Equal(t, []string{queue.StatusProcessing, queue.StatusFailed}, q.status("t2"))
	assert.Equal(t, map[string]any{"error": "disk full"}, q.result("t2"))

	assert.Equal(t, []string{queue.StatusProcessing, queue.StatusFailed}, q.status("t3"))
	runner.AssertExpectations(t)
}

func TestWorker_StopWhileIdle(t *testing.T) {
	w := NewWorker(newFakeQueue(), new(MockRunner), nil)
	w.pollTimeout = 10 * time.Millisecond
	w.Start(context.Background())

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
