// Package schedule provides the in-process delayed-task scheduler backing the
// shipment and return state machines. Scheduled tasks live in process memory
// only: they do not survive a restart. Production deployments that need
// durability can substitute any implementation of services.Scheduler backed
// by a delayed-job system; the rest of the code is indifferent.
package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimerScheduler fires each task exactly once after its delay using a
// standard library timer. Close waits for tasks that are already running and
// drops tasks that have not fired yet.
type TimerScheduler struct {
	logger *zap.Logger

	mu     sync.Mutex
	timers map[int]*time.Timer
	nextID int
	closed bool

	running sync.WaitGroup
}

// NewTimerScheduler constructs a TimerScheduler logging through the supplied logger.
func NewTimerScheduler(logger *zap.Logger) *TimerScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerScheduler{
		logger: logger,
		timers: make(map[int]*time.Timer),
	}
}

// ScheduleAfter runs task once after d has elapsed. The task receives a fresh
// background context: delayed transitions are fire-and-forget and must not be
// tied to the lifetime of the request that scheduled them.
func (s *TimerScheduler) ScheduleAfter(d time.Duration, task func(ctx context.Context)) {
	if task == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("scheduler closed, dropping task", zap.Duration("delay", d))
		return
	}
	id := s.nextID
	s.nextID++
	s.running.Add(1)

	timer := time.AfterFunc(d, func() {
		defer s.running.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled task panicked", zap.Any("panic", r))
			}
		}()

		s.mu.Lock()
		delete(s.timers, id)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		task(context.Background())
	})
	s.timers[id] = timer
	s.mu.Unlock()
}

// Close stops pending timers and waits for in-flight tasks to finish.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, timer := range s.timers {
		if timer.Stop() {
			// The task never fired, so its Done is still owed.
			s.running.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.running.Wait()
}
