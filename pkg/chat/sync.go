package chat

import (
	"time"

	"ghostchat/pkg/logger"
	"ghostchat/pkg/models"
	"ghostchat/pkg/stats"
	"ghostchat/pkg/store"
	"ghostchat/pkg/utils"
)

// Join subscribes the session to a room, replacing any previous
// subscription. The previous room's view and timers are torn down first so a
// late snapshot from the old subscription can never leak into the new one.
func (s *Session) Join(roomID string) error {
	if !validJoinTarget(roomID) {
		return ErrBadRoomID
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.teardownLocked()
	s.room = roomID
	s.gen++
	gen := s.gen
	s.state = StateSubscribing
	s.msgs = nil
	s.pending = nil
	s.rstats = RoomStats{Room: roomID}
	s.signalViewLocked()
	s.mu.Unlock()

	logger.Info("room_join", "session", s.id, "room", roomID)
	s.wg.Add(1)
	go s.syncLoop(roomID, gen)
	return nil
}

// Leave drops the subscription and clears the local view. Nothing is written
// to the store; other participants keep their copies.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == "" {
		return
	}
	logger.Info("room_leave", "session", s.id, "room", s.room)
	s.teardownLocked()
	s.room = ""
	s.gen++
	s.state = StateIdle
	s.msgs = nil
	s.pending = nil
	s.rstats = RoomStats{}
	s.signalViewLocked()
}

// validJoinTarget accepts the secret room plus anything the id rules allow.
func validJoinTarget(roomID string) bool {
	if roomID == SecretRoomID {
		return true
	}
	return utils.ValidRoomID(roomID)
}

// syncLoop owns one subscription generation: it opens the watch, consumes
// snapshots until the feed closes, then retries on a fixed backoff for as
// long as the generation is still current.
func (s *Session) syncLoop(room string, gen uint64) {
	defer s.wg.Done()
	for {
		w, err := s.st.Watch(room, s.cfg.Window)
		if err != nil {
			logger.Error("watch_open_failed", "session", s.id, "room", room, "error", err)
			if !s.enterReconnect(room, gen) {
				return
			}
			continue
		}
		if !s.adoptWatcher(w, room, gen) {
			w.Cancel()
			return
		}
		for snap := range w.C {
			if !s.applySnapshot(snap, gen) {
				w.Cancel()
				return
			}
		}
		// Feed closed underneath us: the store shut down or the watcher
		// errored. Resubscribe unless a newer Join/Leave superseded us.
		if !s.enterReconnect(room, gen) {
			return
		}
	}
}

// adoptWatcher records the active watcher so teardown can cancel it.
// Returns false when the generation was superseded while Watch was opening.
func (s *Session) adoptWatcher(w *store.Watcher, room string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.room != room {
		return false
	}
	s.watcher = w
	return true
}

// enterReconnect flips to Reconnecting and waits out the backoff. Returns
// false when the generation was superseded or the session is closing.
func (s *Session) enterReconnect(room string, gen uint64) bool {
	s.mu.Lock()
	if s.gen != gen || s.room != room || s.closed {
		s.mu.Unlock()
		return false
	}
	s.watcher = nil
	s.state = StateReconnecting
	s.mu.Unlock()

	stats.Reconnects.Inc()
	logger.Warn("subscription_lost", "session", s.id, "room", room,
		"backoff", s.cfg.ReconnectBackoff.Duration().String())
	select {
	case <-time.After(s.cfg.ReconnectBackoff.Duration()):
	case <-s.quit:
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.room == room && !s.closed
}

// applySnapshot reconciles one snapshot into the local view: decrypt, filter
// tombstones, arm disappear timers, queue view receipts, hard-delete records
// already past their deadline. Returns false when the snapshot belongs to a
// superseded generation.
func (s *Session) applySnapshot(snap store.Snapshot, gen uint64) bool {
	s.mu.Lock()
	if s.gen != gen || s.room != snap.Room {
		s.mu.Unlock()
		stats.SnapshotsDiscarded.Inc()
		return false
	}

	now := time.Now()
	view := make([]Message, 0, len(snap.Records))
	var expired, unseen, unarmed []string
	authors := map[string]struct{}{}
	var msgCount int
	var lastActivity int64

	// Records arrive newest first; walk backwards so the view reads oldest
	// to newest.
	for i := len(snap.Records) - 1; i >= 0; i-- {
		rec := snap.Records[i]
		if models.IsExpired(&rec, now) {
			expired = append(expired, rec.ID)
			continue
		}
		if !models.Visible(&rec, s.id, now) {
			continue
		}
		view = append(view, s.project(&rec))
		authors[rec.Author] = struct{}{}
		if rec.Kind != models.KindSystem {
			msgCount++
		}
		if rec.SentAt > lastActivity {
			lastActivity = rec.SentAt
		}
		if rec.Author != s.id && !rec.ViewedBySession(s.id) {
			unseen = append(unseen, rec.ID)
		}
		if rec.DisappearAt != 0 {
			s.sched.Arm(rec.ID, time.Unix(0, rec.DisappearAt), s.onExpire)
			if !rec.AutoDeleteArmed {
				unarmed = append(unarmed, rec.ID)
			}
		}
	}

	s.msgs = view
	if len(s.pending) > 0 {
		// A snapshot that already carries a pending send replaces its
		// local echo.
		stored := make(map[string]struct{}, len(view))
		for i := range view {
			stored[view[i].ID] = struct{}{}
		}
		kept := s.pending[:0]
		for _, p := range s.pending {
			if _, ok := stored[p.ID]; !ok {
				kept = append(kept, p)
			}
		}
		s.pending = kept
	}
	s.state = StateLive
	s.rstats = RoomStats{
		Room:         snap.Room,
		Participants: len(authors),
		Messages:     msgCount,
	}
	if lastActivity != 0 {
		s.rstats.LastActivity = time.Unix(0, lastActivity)
	}
	s.signalViewLocked()
	s.mu.Unlock()

	stats.SnapshotsApplied.Inc()
	stats.VisibleMessages.Set(float64(len(view)))
	stats.TimersArmed.Set(float64(s.sched.Armed()))

	// Records whose deadline already passed get hard-deleted straight away
	// rather than waiting for a timer that would fire at once anyway.
	for _, id := range expired {
		go s.onExpire(id)
	}
	for _, id := range unseen {
		select {
		case s.obs <- observation{id: id, gen: gen}:
		default:
			// Worker is behind; the next snapshot re-queues it.
		}
	}
	// Best-effort persistence of the armed flag. Losing this write only
	// means the next reconciliation re-arms, which is harmless.
	for _, id := range unarmed {
		go s.markArmed(id)
	}
	return true
}

// project builds the viewer-facing message from the stored record.
func (s *Session) project(rec *models.Message) Message {
	m := Message{
		ID:          rec.ID,
		Room:        rec.Room,
		Author:      rec.Author,
		Kind:        rec.Kind,
		Blob:        rec.Blob,
		BlobSeconds: rec.BlobSeconds,
		SentAt:      time.Unix(0, rec.SentAt),
		Delivered:   rec.Delivered,
		Viewed:      rec.Viewed(),
		ViewedBy:    rec.ViewedBy,
		PlayedBy:    rec.PlayedBy,
		Reactions:   rec.Reactions,
	}
	if rec.Ciphertext != "" {
		m.Text = s.env.Decrypt(rec.Ciphertext)
	}
	if rec.DisappearAt != 0 {
		m.DisappearAt = time.Unix(0, rec.DisappearAt)
	}
	return m
}

// onExpire hard-deletes an expired message. Delete treats missing ids as
// success, so racing peers are fine.
func (s *Session) onExpire(messageID string) {
	if err := s.st.Delete(messageID); err != nil {
		if err != store.ErrClosed {
			logger.Error("expiry_delete_failed", "session", s.id, "id", messageID, "error", err)
		}
		return
	}
	stats.ExpiryDeletes.Inc()
	logger.Debug("message_expired", "session", s.id, "id", messageID)
}

func (s *Session) markArmed(messageID string) {
	t := true
	if err := s.st.Apply(messageID, store.Update{AutoDeleteArmed: &t}); err != nil && err != store.ErrNotFound {
		logger.Warn("arm_flag_write_failed", "id", messageID, "error", err)
	}
}
