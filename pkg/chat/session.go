// Package chat implements the client-side chat core: one Session per
// connected client, holding the live room subscription, the decrypted
// message view, pending expiry timers, and the mutation API.
package chat

import (
	"errors"
	"sync"
	"time"

	"ghostchat/pkg/config"
	"ghostchat/pkg/expiry"
	"ghostchat/pkg/logger"
	"ghostchat/pkg/models"
	"ghostchat/pkg/security"
	"ghostchat/pkg/store"
	"ghostchat/pkg/utils"
)

// SecretRoomID is the well-known hidden room. Sessions may join it like any
// other room; it just never appears in room listings.
const SecretRoomID = "secret_ghost_room_2024"

// State is the synchronizer lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateSubscribing  State = "subscribing"
	StateLive         State = "live"
	StateReconnecting State = "reconnecting"
)

var (
	ErrNoRoom        = errors.New("no room joined")
	ErrBadRoomID     = errors.New("invalid room id")
	ErrEmptyMessage  = errors.New("empty message")
	ErrEncryptFailed = errors.New("encryption failed")
	ErrWriteFailure  = errors.New("write failed after retries")
	ErrNotVoice      = errors.New("not a voice message")
	ErrVoiceTooLarge = errors.New("voice blob exceeds size limit")
	ErrClosed        = errors.New("session closed")
)

// Message is the decrypted, viewer-facing projection of one stored record.
// Pending entries are local placeholders whose create write is still in
// flight; Failed entries exhausted their retries.
type Message struct {
	ID          string            `json:"id"`
	Room        string            `json:"room"`
	Author      string            `json:"author"`
	Kind        models.Kind       `json:"kind"`
	Text        string            `json:"text,omitempty"`
	Blob        []byte            `json:"blob,omitempty"`
	BlobSeconds int               `json:"blob_seconds,omitempty"`
	SentAt      time.Time         `json:"sent_at"`
	Delivered   bool              `json:"delivered"`
	Viewed      bool              `json:"viewed"`
	ViewedBy    []string          `json:"viewed_by,omitempty"`
	PlayedBy    []string          `json:"played_by,omitempty"`
	Reactions   []models.Reaction `json:"reactions,omitempty"`
	DisappearAt time.Time         `json:"disappear_at,omitempty"`
	Pending     bool              `json:"pending,omitempty"`
	Failed      bool              `json:"failed,omitempty"`
}

// RoomStats summarizes the currently joined room from the latest snapshot.
type RoomStats struct {
	Room         string    `json:"room"`
	Participants int       `json:"participants"`
	Messages     int       `json:"messages"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// observation asks the receipts worker to record that this session saw a
// message. gen ties it to the subscription that produced it.
type observation struct {
	id  string
	gen uint64
}

// Session is one client's connection to the chat core. All exported methods
// are safe for concurrent use.
type Session struct {
	id    string
	st    store.Store
	env   *security.Envelope
	sched *expiry.Scheduler
	cfg   config.ChatConfig

	mu      sync.Mutex
	room    string
	gen     uint64
	state   State
	msgs    []Message
	pending []Message
	rstats  RoomStats
	watcher *store.Watcher
	conn    ConnStatus
	closed  bool

	// viewSubs receive a non-blocking signal whenever the view changes.
	viewSubs map[int]chan struct{}
	subSeq   int

	obs  chan observation
	quit chan struct{}
	wg   sync.WaitGroup
}

// ViewChanged registers a change signal for the local view. The returned
// channel receives (coalesced) after every reconciliation, join, leave or
// wipe; the func unregisters it.
func (s *Session) ViewChanged() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subSeq++
	id := s.subSeq
	ch := make(chan struct{}, 1)
	s.viewSubs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.viewSubs, id)
	}
}

// signalViewLocked pokes every registered view subscriber. Caller holds s.mu.
func (s *Session) signalViewLocked() {
	for _, ch := range s.viewSubs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// NewSession creates a Session with a fresh session id. The receipts worker
// and, when PingInterval is set, the connection monitor start immediately.
func NewSession(st store.Store, env *security.Envelope, cfg config.ChatConfig) *Session {
	s := &Session{
		id:       utils.GenSessionID(),
		st:       st,
		env:      env,
		sched:    expiry.NewScheduler(),
		cfg:      cfg,
		state:    StateIdle,
		conn:     ConnStatus{Quality: QualityDisconnected},
		viewSubs: map[int]chan struct{}{},
		obs:      make(chan observation, 256),
		quit:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.receiptsLoop()
	if cfg.PingInterval.Duration() > 0 {
		s.wg.Add(1)
		go s.monitorLoop()
	}
	logger.Info("session_started", "session", s.id)
	return s
}

// ID returns the session id used for receipts and tombstones.
func (s *Session) ID() string { return s.id }

// Room returns the currently joined room, or "".
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// State returns the synchronizer state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns the current decrypted view, oldest first, pending
// placeholders last. The slice is a copy.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.msgs)+len(s.pending))
	out = append(out, s.msgs...)
	out = append(out, s.pending...)
	return out
}

// Stats returns the latest room statistics.
func (s *Session) Stats() RoomStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rstats
}

// Close leaves the room, stops the workers and releases every timer. The
// session is unusable afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.teardownLocked()
	s.room = ""
	s.gen++
	s.state = StateIdle
	s.msgs = nil
	s.pending = nil
	s.signalViewLocked()
	s.mu.Unlock()

	close(s.quit)
	s.wg.Wait()
	s.sched.Close()
	logger.Info("session_closed", "session", s.id)
}

// teardownLocked cancels the active subscription and all pending timers.
// Caller holds s.mu.
func (s *Session) teardownLocked() {
	if s.watcher != nil {
		s.watcher.Cancel()
		s.watcher = nil
	}
	s.sched.CancelAll()
}
