package logbuffer

import (
	"log/slog"
	"sync"
	"time"
)

// minScheduleDelay bounds how fast a scheduled tail can be re-armed when it
// is catching up on a backlog.
const minScheduleDelay = time.Millisecond

// Scheduler is a periodic task runner, created lazily by the first call to
// LogBuffer.ScheduleFixedDelay/ScheduleChunked. Each task runs on its own
// goroutine that selects on a stop channel and one re-armed time.Timer, so a
// round reporting reached_tip == false can trigger the next round
// immediately instead of waiting out the full delay. Rounds of one task never
// overlap; rounds of different tasks can run concurrently.
type Scheduler struct {
	logger *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewScheduler returns an idle Scheduler; it spawns no goroutines until
// Schedule is called.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger.With("component", "scheduler")}
}

// Schedule runs fn repeatedly with delay between rounds, starting
// immediately, until the returned cancel function is called or the
// Scheduler is closed. When fn reports reached_tip == false, the next round
// is scheduled immediately (bounded by minScheduleDelay) instead of waiting
// out delay, so large backlogs are caught up quickly.
func (s *Scheduler) Schedule(fn func() (ForwardResult, error), delay time.Duration) func() {
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(stop) }) }

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return cancel
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		next := minScheduleDelay
		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-stop:
				return
			case <-timer.C:
				result, err := fn()
				if err != nil {
					s.logger.Warn("scheduled round failed", "error", err)
					next = delay
				} else if !result.ReachedTip {
					next = minScheduleDelay
				} else {
					next = delay
				}
				timer.Reset(next)
			}
		}
	}()

	return cancel
}

// Close stops accepting new schedules and waits for all running tasks'
// goroutines to exit. Close does not stop tasks itself: it returns only once
// every scheduled task has been cancelled and its in-flight round finished.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
