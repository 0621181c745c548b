package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// stubRepoError satisfies repositories.RepositoryError for test stubs.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundError(msg string) error {
	return &stubRepoError{msg: msg, notFound: true}
}

func unavailableError(msg string) error {
	return &stubRepoError{msg: msg, unavailable: true}
}

// fakeScheduler captures scheduled tasks so tests can fire delayed
// transitions deterministically.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

type scheduledTask struct {
	delay time.Duration
	run   func(ctx context.Context)
}

func (s *fakeScheduler) ScheduleAfter(d time.Duration, task func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduledTask{delay: d, run: task})
}

// fireNext runs the oldest pending task. New tasks scheduled during the run
// queue up behind the remaining ones.
func (s *fakeScheduler) fireNext(ctx context.Context) bool {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return false
	}
	task := s.tasks[0]
	s.tasks = s.tasks[1:]
	s.mu.Unlock()

	task.run(ctx)
	return true
}

func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// capturingPublisher records published fulfillment events.
type capturingPublisher struct {
	mu     sync.Mutex
	events []FulfillmentEvent
	err    error
}

func (p *capturingPublisher) PublishFulfillmentEvent(_ context.Context, event FulfillmentEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

func (p *capturingPublisher) published() []FulfillmentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FulfillmentEvent, len(p.events))
	copy(out, p.events)
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// sequentialIDs returns deterministic identifiers: <prefix>-1, <prefix>-2, ...
func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
