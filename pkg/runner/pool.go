package runner

import (
	"context"
	"runtime"
	"sync"

	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/agenticsorg/sparc-bench/pkg/service"
)

// processFunc handles one claimed task.
type processFunc func(ctx context.Context, task models.AvailableTask)

// workerPool fans claimed tasks out to a bounded set of workers. Each task
// row is independent, so workers never contend on the same instance.
type workerPool struct {
	workers  int
	process  processFunc
	taskChan chan models.AvailableTask
	wg       sync.WaitGroup
	ctx      context.Context
	logger   service.Logger
}

func newWorkerPool(ctx context.Context, workers int, process processFunc, logger service.Logger) *workerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &workerPool{
		workers: workers,
		process: process,
		ctx:     ctx,
		logger:  logger,
	}
}

// Start spins up the workers.
func (wp *workerPool) Start() {
	wp.taskChan = make(chan models.AvailableTask, wp.workers)
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Submit queues one task. Blocks when all workers are busy.
func (wp *workerPool) Submit(task models.AvailableTask) {
	wp.taskChan <- task
}

// Stop closes the queue and waits for in-flight tasks to finish.
func (wp *workerPool) Stop() {
	close(wp.taskChan)
	wp.wg.Wait()
}

func (wp *workerPool) worker() {
	defer wp.wg.Done()
	for task := range wp.taskChan {
		// Cancelled runs still drain the queue; process marks the task
		// partial instead of executing phases.
		wp.process(wp.ctx, task)
		wp.logger.Infof("Worker finished task %s", task.InstanceID)
	}
}
