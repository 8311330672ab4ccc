package worker

import (
	"context"
	"sync"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/logger"
)

const defaultShutdownTimeout = 30 * time.Second

type Manager struct {
	ctx             context.Context
	workers         []Worker
	stack           *Stack
	shutdownTimeout time.Duration
}

func NewManager(ctx context.Context, stack *Stack, shutdownTimeout time.Duration) *Manager {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Manager{
		ctx:             ctx,
		stack:           stack,
		shutdownTimeout: shutdownTimeout,
	}
}

// Start launches all injected workers
func (m *Manager) Start() {
	for _, w := range m.workers {
		w.Start()
	}
}

// Stop shuts down all workers concurrently with a timeout, then closes resources.
func (m *Manager) Stop() {
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, w := range m.workers {
			if w != nil {
				wg.Add(1)
				go func(w Worker) {
					defer wg.Done()
					w.Stop()
				}(w)
			}
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All workers stopped")
	case <-time.After(m.shutdownTimeout):
		logger.Warn("Worker shutdown timed out, proceeding with resource cleanup",
			"timeout", m.shutdownTimeout)
	}

	if m.stack != nil {
		m.stack.Close()
	}
	logger.Info("Manager stopped")
}

// Inject workers into manager
func (m *Manager) AddWorkers(workers ...Worker) {
	m.workers = append(m.workers, workers...)
}

func (m *Manager) Workers() int {
	return len(m.workers)
}
