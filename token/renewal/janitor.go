package renewal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Janitor periodically runs token maintenance. It owns its own lifecycle:
// callers start it once and stop it on shutdown, and a failing maintenance
// pass is logged without stopping the schedule.
type Janitor struct {
	maintenance Maintenance
	interval    time.Duration
	logger      zerolog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewJanitor(maintenance Maintenance, interval time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		maintenance: maintenance,
		interval:    interval,
		logger:      logger.With().Str("component", "janitor").Logger(),
	}
}

// Start launches the maintenance loop. An immediate pass runs first so a
// restart clears stale tokens without waiting a full interval. Starting an
// already running janitor is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stop != nil {
		return
	}

	j.stop = make(chan struct{})
	j.done = make(chan struct{})

	go j.run(j.stop, j.done)
}

// Stop halts the loop and waits for any in-flight pass to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	stop, done := j.stop, j.done
	j.stop, j.done = nil, nil
	j.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (j *Janitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	if _, err := j.maintenance.RunCleanup(ctx); err != nil {
		j.logger.Error().Err(err).Msg("token cleanup failed")
	}
	if _, err := j.maintenance.EnforceUserCap(ctx); err != nil {
		j.logger.Error().Err(err).Msg("token cap enforcement failed")
	}
}
