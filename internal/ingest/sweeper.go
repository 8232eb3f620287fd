package ingest

import (
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically runs the service's eviction pass. It is owned by the
// process lifecycle: started once after wiring, stopped on shutdown. No
// timers are registered at package load.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSweeper returns a stopped sweeper. interval <= 0 falls back to
// DefaultSweepInterval.
func NewSweeper(svc *Service, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Start launches the background loop. Calling Start on a running sweeper is
// a no-op.
func (w *Sweeper) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.run(w.done)
	w.log.Info("eviction sweeper started", slog.Duration("interval", w.interval))
}

// Stop halts the loop and waits for an in-flight pass to finish. Calling
// Stop on a stopped sweeper is a no-op.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	done := w.done
	w.done = nil
	w.mu.Unlock()
	if done == nil {
		return
	}
	close(done)
	w.wg.Wait()
	w.log.Info("eviction sweeper stopped")
}

func (w *Sweeper) run(done chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.svc.Sweep(time.Now().UTC())
		case <-done:
			return
		}
	}
}
