package chat

import (
	"ghostchat/pkg/logger"
	"ghostchat/pkg/stats"
)

// PanicWipe destroys a room. The local side is synchronous: by the time
// PanicWipe returns, the view is empty, the subscription is gone and every
// timer is cancelled. The store side runs in the background in batch-sized
// chunks; a failed chunk is logged and the remaining chunks continue, so a
// partial wipe converges instead of aborting.
//
// With an empty roomID the currently joined room is wiped. Wiping a room
// that holds no messages is a no-op.
func (s *Session) PanicWipe(roomID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if roomID == "" {
		roomID = s.room
	}
	if roomID == s.room && s.room != "" {
		s.teardownLocked()
		s.room = ""
		s.gen++
		s.state = StateIdle
		s.msgs = nil
		s.pending = nil
		s.rstats = RoomStats{}
		s.signalViewLocked()
	}
	s.mu.Unlock()

	if roomID == "" {
		return ErrNoRoom
	}
	logger.Warn("panic_wipe_started", "session", s.id, "room", roomID)

	s.wg.Add(1)
	go s.wipeStore(roomID)
	return nil
}

func (s *Session) wipeStore(roomID string) {
	defer s.wg.Done()
	recs, err := s.st.Snapshot(roomID, 0)
	if err != nil {
		logger.Error("panic_wipe_snapshot_failed", "room", roomID, "error", err)
		return
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}

	max := s.st.MaxBatch()
	var deleted, failed int
	for start := 0; start < len(ids); start += max {
		end := start + max
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		if err := s.st.DeleteBatch(chunk); err != nil {
			failed += len(chunk)
			stats.WipeChunks.WithLabelValues("failure").Inc()
			logger.Error("panic_wipe_chunk_failed", "room", roomID, "size", len(chunk), "error", err)
			continue
		}
		deleted += len(chunk)
		stats.WipeChunks.WithLabelValues("success").Inc()
	}
	logger.Warn("panic_wipe_done", "session", s.id, "room", roomID,
		"deleted", deleted, "failed", failed)
}
