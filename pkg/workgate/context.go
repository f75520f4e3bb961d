package workgate

import "context"

// Context keys for values the pool attaches to each task's context.
type (
	taskIDKey   struct{}
	workerIDKey struct{}
)

// withTaskID annotates ctx with the task's identifier.
func withTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, taskID)
}

// TaskID returns the identifier of the task the context belongs to, or
// "" outside task execution. Useful for correlating application logs
// with the pool's own.
func TaskID(ctx context.Context) string {
	if id, ok := ctx.Value(taskIDKey{}).(string); ok {
		return id
	}
	return ""
}

// withWorkerID annotates ctx with the executing worker's index.
func withWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerIDKey{}, id)
}

// WorkerID returns the index of the worker executing the task, or -1
// outside task execution.
func WorkerID(ctx context.Context) int {
	if id, ok := ctx.Value(workerIDKey{}).(int); ok {
		return id
	}
	return -1
}
