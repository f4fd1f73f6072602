package chat

import (
	"fmt"
	"strings"
	"time"

	"ghostchat/pkg/logger"
	"ghostchat/pkg/models"
	"ghostchat/pkg/stats"
	"ghostchat/pkg/store"
	"ghostchat/pkg/utils"
)

// Send encrypts and persists a text message in the joined room.
// disappearSeconds > 0 fixes the message lifetime at send time; zero means
// it never expires on its own. A local placeholder appears in the view
// immediately and either resolves into the stored record on the next
// snapshot or stays behind marked failed when every retry is exhausted.
func (s *Session) Send(text string, disappearSeconds int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	return s.send(&models.Message{
		Kind:           models.KindText,
		DisappearTimer: disappearSeconds,
	}, text)
}

// SendVoice persists a voice message: the audio blob rides opaque, the
// caption goes through the envelope like any text body.
func (s *Session) SendVoice(blob []byte, seconds int, caption string, disappearSeconds int) (string, error) {
	if len(blob) == 0 {
		return "", ErrEmptyMessage
	}
	if max := s.cfg.MaxVoiceBytes.Int64(); max > 0 && int64(len(blob)) > max {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrVoiceTooLarge, len(blob), max)
	}
	return s.send(&models.Message{
		Kind:           models.KindVoice,
		Blob:           blob,
		BlobSeconds:    seconds,
		DisappearTimer: disappearSeconds,
	}, caption)
}

// SendSystem records an unauthored room event (join/leave notices).
func (s *Session) SendSystem(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	return s.send(&models.Message{Kind: models.KindSystem}, text)
}

func (s *Session) send(m *models.Message, plaintext string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	room := s.room
	s.mu.Unlock()
	if room == "" {
		return "", ErrNoRoom
	}

	m.Room = room
	m.Author = s.id
	m.ID = utils.GenMessageID()
	if plaintext != "" {
		ct := s.env.Encrypt(plaintext)
		if ct == "" {
			stats.Sends.WithLabelValues("encrypt_failed").Inc()
			return "", ErrEncryptFailed
		}
		m.Ciphertext = ct
	}

	ph := s.addPlaceholder(m, plaintext)

	var id string
	err := s.withRetry("send", func() error {
		var cerr error
		id, cerr = s.st.Create(m)
		return cerr
	})
	if err != nil {
		s.failPlaceholder(ph)
		stats.Sends.WithLabelValues("failure").Inc()
		logger.Error("send_failed", "session", s.id, "room", room, "error", err)
		return "", fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	s.dropPlaceholder(ph)
	stats.Sends.WithLabelValues("success").Inc()

	// Fire-and-forget delivered flip; the snapshot catches up on its own.
	delay := s.cfg.DeliveryDelay.Duration()
	time.AfterFunc(delay, func() {
		t := true
		at := time.Now().UnixNano()
		if err := s.st.Apply(id, store.Update{Delivered: &t, DeliveredAt: &at}); err != nil && err != store.ErrNotFound {
			logger.Warn("delivered_flip_failed", "id", id, "error", err)
		}
	})
	return id, nil
}

// addPlaceholder puts a pending local echo at the tail of the view. It
// carries the id the stored record will have, so a snapshot that lands
// before the send call returns replaces the placeholder instead of showing
// the message twice.
func (s *Session) addPlaceholder(m *models.Message, plaintext string) string {
	ph := m.ID
	s.mu.Lock()
	s.pending = append(s.pending, Message{
		ID:          ph,
		Room:        m.Room,
		Author:      s.id,
		Kind:        m.Kind,
		Text:        plaintext,
		BlobSeconds: m.BlobSeconds,
		SentAt:      time.Now(),
		Pending:     true,
	})
	s.signalViewLocked()
	s.mu.Unlock()
	return ph
}

func (s *Session) dropPlaceholder(ph string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p.ID == ph {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.signalViewLocked()
			return
		}
	}
}

func (s *Session) failPlaceholder(ph string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pending {
		if s.pending[i].ID == ph {
			s.pending[i].Pending = false
			s.pending[i].Failed = true
			s.signalViewLocked()
			return
		}
	}
}

// withRetry runs op up to SendRetries times with exponential backoff
// starting at RetryBase.
func (s *Session) withRetry(what string, op func() error) error {
	attempts := s.cfg.SendRetries
	if attempts < 1 {
		attempts = 1
	}
	delay := s.cfg.RetryBase.Duration()
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		logger.Warn("write_retry", "session", s.id, "op", what, "attempt", i+1, "error", err)
		select {
		case <-time.After(delay):
		case <-s.quit:
			return err
		}
		delay *= 2
	}
	return err
}

// MarkViewed records that this session observed a message. The author is in
// ViewedBy from creation, so only foreign observers change the derived
// viewed state. A view receipt also confirms delivery: nothing can be seen
// without having arrived, so Delivered flips here even when the sender's
// own delayed flip never landed.
func (s *Session) MarkViewed(messageID string) error {
	d := true
	at := time.Now().UnixNano()
	return s.applyUpdate(messageID, store.Update{
		Delivered:   &d,
		DeliveredAt: &at,
		ViewedAt:    &at,
		ViewedBy:    []string{s.id},
	})
}

// MarkPlayed records voice playback completion for this session. Only voice
// messages carry playback state.
func (s *Session) MarkPlayed(messageID string) error {
	rec, err := s.st.Get(messageID)
	if err != nil {
		return err
	}
	if rec.Kind != models.KindVoice {
		return ErrNotVoice
	}
	return s.applyUpdate(messageID, store.Update{PlayedBy: []string{s.id}})
}

// AddReaction appends an emoji reaction. Reactions are a multiset; reacting
// twice with the same emoji is two reactions.
func (s *Session) AddReaction(messageID, emoji string) error {
	if emoji == "" {
		return ErrEmptyMessage
	}
	return s.applyUpdate(messageID, store.Update{Reactions: []models.Reaction{{
		Emoji:     emoji,
		Reactor:   s.id,
		ReactedAt: time.Now().UnixNano(),
	}}})
}

// DeleteForMe tombstones a message for this session only. Other
// participants keep seeing it.
func (s *Session) DeleteForMe(messageID string) error {
	return s.applyUpdate(messageID, store.Update{DeletedBy: []string{s.id}})
}

// DeleteManyForMe tombstones a set of messages for this session as one
// atomic write. The whole batch either lands or fails; ids that vanished in
// the meantime are skipped.
func (s *Session) DeleteManyForMe(messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if len(messageIDs) > s.st.MaxBatch() {
		return fmt.Errorf("bulk delete of %d exceeds batch limit %d", len(messageIDs), s.st.MaxBatch())
	}
	err := s.withRetry("delete_many_for_me", func() error {
		return s.st.ApplyBatch(messageIDs, store.Update{DeletedBy: []string{s.id}})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return nil
}

// DeleteForEveryone hides a message for all participants at once. Any
// participant may issue it, matching the trust model of a shared-secret
// room.
func (s *Session) DeleteForEveryone(messageID string) error {
	t := true
	return s.applyUpdate(messageID, store.Update{DeletedForEveryone: &t})
}

func (s *Session) applyUpdate(messageID string, u store.Update) error {
	err := s.withRetry("apply", func() error {
		aerr := s.st.Apply(messageID, u)
		if aerr == store.ErrNotFound {
			// Deleted underneath us. The mutation is moot, not an error.
			return nil
		}
		return aerr
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return nil
}
