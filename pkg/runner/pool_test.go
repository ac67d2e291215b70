package runner

import (
	"context"
	"runtime"
	"testing"

	"github.com/agenticsorg/sparc-bench/internal/log"
	"github.com/stretchr/testify/assert"
)

func TestNewWorkerPoolSize(t *testing.T) {
	t.Run("ZeroWorkersDefaultsToNumCPU", func(t *testing.T) {
		pool := newWorkerPool(context.Background(), 0, nil, log.GetLogger())
		assert.Equal(t, runtime.NumCPU(), pool.workers)
	})

	t.Run("ExplicitWorkerCountKept", func(t *testing.T) {
		pool := newWorkerPool(context.Background(), 3, nil, log.GetLogger())
		assert.Equal(t, 3, pool.workers)
	})
}
