// Package expiry maintains the arena of pending disappear timers: at most
// one cancelable timer per message id. Snapshot reconciliation re-observes
// the same messages over and over, so Arm must replace rather than
// accumulate.
package expiry

import (
	"sync"
	"time"

	"ghostchat/pkg/logger"
)

// FireFunc performs the hard delete for an expired message. It must be
// idempotent: several clients can observe the same deadline and race to
// delete the same record.
type FireFunc func(messageID string)

// Scheduler owns the timer arena.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: map[string]*time.Timer{}}
}

// Arm schedules onFire for the deadline, replacing any pending timer for the
// same id as one atomic operation. A deadline already in the past fires
// immediately on its own goroutine instead of being dropped.
func (s *Scheduler) Arm(messageID string, deadline time.Time, onFire FireFunc) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if t, ok := s.timers[messageID]; ok {
		t.Stop()
		delete(s.timers, messageID)
	}
	d := time.Until(deadline)
	if d <= 0 {
		s.mu.Unlock()
		logger.Debug("expiry_past_deadline", "id", messageID)
		go onFire(messageID)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		// Evict only this timer. A concurrent re-Arm may already have
		// replaced it, and the replacement must stay cancelable.
		s.mu.Lock()
		if s.timers[messageID] == t {
			delete(s.timers, messageID)
		}
		s.mu.Unlock()
		onFire(messageID)
	})
	s.timers[messageID] = t
	s.mu.Unlock()
}

// Cancel stops and forgets the timer for id. Unknown ids are a no-op.
func (s *Scheduler) Cancel(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[messageID]; ok {
		t.Stop()
		delete(s.timers, messageID)
	}
}

// CancelAll stops every pending timer. Used when leaving a room, logging
// out, or panic-wiping: all armed timers belong to the currently open room.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Close cancels everything and rejects further arming.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Armed returns the number of pending timers.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
