package store

import (
	"errors"
	"time"

	"ghostchat/pkg/models"
)

// ErrNotFound is returned when a message id has no record.
var ErrNotFound = errors.New("message not found")

// ErrClosed is returned when operating on a store that has shut down.
var ErrClosed = errors.New("store closed")

// maxBatch bounds the number of mutations committed as one atomic batch.
// Callers performing bulk deletion must chunk their id sets to this size.
const maxBatch = 500

// Update is a typed field merge applied atomically to one record. Set-typed
// fields use union semantics; Reactions append (the reaction multiset has no
// uniqueness constraint).
type Update struct {
	Delivered   *bool
	DeliveredAt *int64
	ViewedAt    *int64

	ViewedBy  []string
	PlayedBy  []string
	DeletedBy []string

	DeletedForEveryone *bool
	AutoDeleteArmed    *bool

	Reactions []models.Reaction
}

// apply merges u into m.
func (u Update) apply(m *models.Message) {
	if u.Delivered != nil {
		m.Delivered = *u.Delivered
	}
	if u.DeliveredAt != nil {
		m.DeliveredAt = *u.DeliveredAt
	}
	if u.ViewedAt != nil {
		m.ViewedAt = *u.ViewedAt
	}
	for _, s := range u.ViewedBy {
		m.ViewedBy = models.Union(m.ViewedBy, s)
	}
	for _, s := range u.PlayedBy {
		m.PlayedBy = models.Union(m.PlayedBy, s)
	}
	for _, s := range u.DeletedBy {
		m.DeletedBy = models.Union(m.DeletedBy, s)
	}
	if u.DeletedForEveryone != nil {
		m.DeletedForEveryone = *u.DeletedForEveryone
		if *u.DeletedForEveryone && m.DeletedAt == 0 {
			m.DeletedAt = time.Now().UnixNano()
		}
	}
	if u.AutoDeleteArmed != nil {
		m.AutoDeleteArmed = *u.AutoDeleteArmed
	}
	m.Reactions = append(m.Reactions, u.Reactions...)
}

// Snapshot is one full view of a room's recent records, newest first.
// Records are the stored form: ciphertext bodies, all tombstones included.
type Snapshot struct {
	Room    string
	Gen     uint64
	Records []models.Message
}

// Store is the narrow persistence surface the chat core consumes. The
// concrete implementation is pebble-backed, but nothing above this interface
// may assume that.
type Store interface {
	// Create persists a new record, assigning its id (when empty) and the
	// authoritative SentAt timestamp. Returns the id.
	Create(m *models.Message) (string, error)
	// Get loads one record by id.
	Get(id string) (*models.Message, error)
	// Apply merges an Update into the record. Applying to a missing id
	// returns ErrNotFound.
	Apply(id string, u Update) error
	// ApplyBatch merges the same Update into every listed record as one
	// atomic batch. Missing ids are skipped; a commit failure leaves no
	// record updated.
	ApplyBatch(ids []string, u Update) error
	// Delete removes a record. Deleting a missing id is a no-op.
	Delete(id string) error
	// DeleteBatch removes up to MaxBatch records as one atomic batch.
	DeleteBatch(ids []string) error
	// Snapshot returns the most recent records for a room, newest first.
	// limit <= 0 returns everything.
	Snapshot(room string, limit int) ([]models.Message, error)
	// Rooms lists the distinct room ids that currently hold records.
	Rooms() ([]string, error)
	// Watch opens a live feed for a room: an initial snapshot, then a
	// coalesced resnapshot after every change touching the room.
	Watch(room string, limit int) (*Watcher, error)
	// PutMeta/GetMeta store small out-of-band records (connection pings).
	PutMeta(key string, value []byte) error
	GetMeta(key string) ([]byte, error)
	// MaxBatch is the per-batch mutation cap for DeleteBatch.
	MaxBatch() int
	Close() error
}
