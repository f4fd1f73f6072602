package chat

import (
	"time"

	"ghostchat/pkg/logger"
	"ghostchat/pkg/stats"
	"ghostchat/pkg/store"
)

// receiptsLoop is the dedicated observation worker. Snapshot reconciliation
// queues an event per newly seen foreign message and moves on; the write
// happens here so a slow store can never stall the synchronizer.
func (s *Session) receiptsLoop() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.obs:
			s.recordReceipt(ev)
		case <-s.quit:
			return
		}
	}
}

func (s *Session) recordReceipt(ev observation) {
	s.mu.Lock()
	stale := s.gen != ev.gen
	s.mu.Unlock()
	if stale {
		return
	}

	t := true
	at := time.Now().UnixNano()
	err := s.st.Apply(ev.id, store.Update{
		Delivered:   &t,
		DeliveredAt: &at,
		ViewedAt:    &at,
		ViewedBy:    []string{s.id},
	})
	if err == store.ErrNotFound {
		return
	}
	if err != nil {
		logger.Warn("receipt_write_failed", "session", s.id, "id", ev.id, "error", err)
		return
	}
	stats.Receipts.Inc()
}
