package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Worker pool defaults. Activity execution size bounds the per-article
// scoring fan-out on one worker process.
const (
	defaultActivityExecutionSize = 100
	defaultWorkflowTaskSize      = 50
	defaultActivityPollers       = 4
	defaultWorkflowPollers       = 2
)

// WorkerConfig sizes one worker's pollers and execution slots. Zero-valued
// fields fall back to the package defaults.
type WorkerConfig struct {
	TaskQueue                              string
	MaxConcurrentActivityExecutionSize     int
	MaxConcurrentWorkflowTaskExecutionSize int
	MaxConcurrentActivityTaskPollers       int
	MaxConcurrentWorkflowTaskPollers       int
}

// DefaultWorkerConfig returns the default sizing for the given task queue.
func DefaultWorkerConfig(taskQueue string) WorkerConfig {
	return WorkerConfig{
		TaskQueue:                              taskQueue,
		MaxConcurrentActivityExecutionSize:     defaultActivityExecutionSize,
		MaxConcurrentWorkflowTaskExecutionSize: defaultWorkflowTaskSize,
		MaxConcurrentActivityTaskPollers:       defaultActivityPollers,
		MaxConcurrentWorkflowTaskPollers:       defaultWorkflowPollers,
	}
}

func (c WorkerConfig) options() worker.Options {
	return worker.Options{
		MaxConcurrentActivityExecutionSize:     orDefault(c.MaxConcurrentActivityExecutionSize, defaultActivityExecutionSize),
		MaxConcurrentWorkflowTaskExecutionSize: orDefault(c.MaxConcurrentWorkflowTaskExecutionSize, defaultWorkflowTaskSize),
		MaxConcurrentActivityTaskPollers:       orDefault(c.MaxConcurrentActivityTaskPollers, defaultActivityPollers),
		MaxConcurrentWorkflowTaskPollers:       orDefault(c.MaxConcurrentWorkflowTaskPollers, defaultWorkflowPollers),
	}
}

func orDefault(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}

// WorkerManager owns one Temporal worker polling the estimation task queue.
type WorkerManager struct {
	worker    worker.Worker
	taskQueue string
}

// NewWorkerManager builds a worker for the configured task queue. The
// client must outlive the manager.
func NewWorkerManager(c client.Client, config WorkerConfig) (*WorkerManager, error) {
	if config.TaskQueue == "" {
		return nil, fmt.Errorf("task queue is required")
	}
	return &WorkerManager{
		worker:    worker.New(c, config.TaskQueue, config.options()),
		taskQueue: config.TaskQueue,
	}, nil
}

// RegisterWorkflow makes a workflow function runnable on this worker.
func (m *WorkerManager) RegisterWorkflow(workflow interface{}) {
	m.worker.RegisterWorkflow(workflow)
}

// RegisterActivity makes an activity function runnable on this worker.
// Registering a struct registers every exported method on it.
func (m *WorkerManager) RegisterActivity(activity interface{}) {
	m.worker.RegisterActivity(activity)
}

// Start runs the worker and blocks until ctx is cancelled or the worker
// fails. Cancellation stops the worker before returning.
func (m *WorkerManager) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.worker.Run(worker.InterruptCh())
	}()

	select {
	case <-ctx.Done():
		m.worker.Stop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
