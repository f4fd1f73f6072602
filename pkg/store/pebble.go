package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"ghostchat/pkg/logger"
	"ghostchat/pkg/models"
	"ghostchat/pkg/utils"
)

// Pebble is the pebble-backed Store. Records live under two keys: a room
// index key carrying the full JSON record, ordered by SentAt, and a primary
// pointer key mapping the message id to its index key.
//
//	room:<roomID>:msg:<020d sentAt>-<06d seq>  -> record JSON
//	msg:<id>                                   -> index key
//	meta:<key>                                 -> raw bytes
type Pebble struct {
	db *pebble.DB

	// mu serializes read-modify-write cycles (Apply) and batch deletes.
	mu sync.Mutex

	// seq breaks ordering ties when messages share a nanosecond timestamp.
	seq uint64

	subs *fanout

	closed atomic.Bool
}

// Open opens (or creates) a pebble database at path.
func Open(path string) (*Pebble, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &Pebble{db: db, subs: newFanout()}, nil
}

// Close closes the database and terminates all watchers.
func (p *Pebble) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.subs.closeAll()
	if err := p.db.Close(); err != nil {
		return err
	}
	logger.Info("pebble_closed")
	return nil
}

// MaxBatch returns the per-batch mutation cap.
func (p *Pebble) MaxBatch() int { return maxBatch }

func indexKey(room string, sentAt int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("room:%s:msg:%020d-%06d", room, sentAt, seq))
}

func pointerKey(id string) []byte { return []byte("msg:" + id) }

func roomPrefix(room string) []byte { return []byte("room:" + room + ":msg:") }

// Create persists a new record, assigning id and SentAt, and notifies
// watchers of the room.
func (p *Pebble) Create(m *models.Message) (string, error) {
	if p.closed.Load() {
		return "", ErrClosed
	}
	if m.Room == "" {
		return "", fmt.Errorf("message has no room")
	}
	if m.ID == "" {
		m.ID = utils.GenMessageID()
	}
	m.SentAt = time.Now().UTC().UnixNano()
	if m.DisappearTimer > 0 && m.DisappearAt == 0 {
		m.DisappearAt = m.SentAt + int64(m.DisappearTimer)*int64(time.Second)
	}
	if m.Author != "" {
		m.ViewedBy = models.Union(m.ViewedBy, m.Author)
	}
	s := atomic.AddUint64(&p.seq, 1)
	idx := indexKey(m.Room, m.SentAt, s)

	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	b := p.db.NewBatch()
	defer b.Close()
	if err := b.Set(idx, data, nil); err != nil {
		return "", err
	}
	if err := b.Set(pointerKey(m.ID), idx, nil); err != nil {
		return "", err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("create_message_failed", "room", m.Room, "id", m.ID, "error", err)
		return "", err
	}
	logger.Debug("message_created", "room", m.Room, "id", m.ID)
	p.subs.notify(m.Room)
	return m.ID, nil
}

// resolve returns the index key for an id, or ErrNotFound.
func (p *Pebble) resolve(id string) ([]byte, error) {
	v, closer, err := p.db.Get(pointerKey(id))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// Get loads one record by id.
func (p *Pebble) Get(id string) (*models.Message, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	idx, err := p.resolve(id)
	if err != nil {
		return nil, err
	}
	v, closer, err := p.db.Get(idx)
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, fmt.Errorf("invalid record for %s: %w", id, err)
	}
	return &m, nil
}

// Apply merges u into the record under the store's write lock so concurrent
// set-union writes never lose elements.
func (p *Pebble) Apply(id string, u Update) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, err := p.resolve(id)
	if err != nil {
		return err
	}
	v, closer, err := p.db.Get(idx)
	if err == pebble.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var m models.Message
	uerr := json.Unmarshal(v, &m)
	closer.Close()
	if uerr != nil {
		return fmt.Errorf("invalid record for %s: %w", id, uerr)
	}
	u.apply(&m)
	data, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := p.db.Set(idx, data, pebble.Sync); err != nil {
		logger.Error("apply_update_failed", "id", id, "error", err)
		return err
	}
	p.subs.notify(m.Room)
	return nil
}

// ApplyBatch merges the same update into every listed record in one atomic
// pebble batch. Missing ids are skipped so a bulk tombstone can race a hard
// delete without failing.
func (p *Pebble) ApplyBatch(ids []string, u Update) error {
	if len(ids) == 0 {
		return nil
	}
	if p.closed.Load() {
		return ErrClosed
	}
	if len(ids) > maxBatch {
		return fmt.Errorf("batch of %d exceeds limit %d", len(ids), maxBatch)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := map[string]struct{}{}
	b := p.db.NewBatch()
	defer b.Close()
	for _, id := range ids {
		idx, err := p.resolve(id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		v, closer, err := p.db.Get(idx)
		if err == pebble.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		var m models.Message
		uerr := json.Unmarshal(v, &m)
		closer.Close()
		if uerr != nil {
			return fmt.Errorf("invalid record for %s: %w", id, uerr)
		}
		u.apply(&m)
		data, err := json.Marshal(&m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		if err := b.Set(idx, data, nil); err != nil {
			return err
		}
		rooms[m.Room] = struct{}{}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("apply_batch_failed", "count", len(ids), "error", err)
		return err
	}
	for r := range rooms {
		p.subs.notify(r)
	}
	return nil
}

// Delete removes one record. Missing ids are a success: expiry timers on
// several clients race to delete the same message and the loser must not
// see an error.
func (p *Pebble) Delete(id string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, err := p.resolve(id)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	room := roomOfIndexKey(idx)
	b := p.db.NewBatch()
	defer b.Close()
	_ = b.Delete(idx, nil)
	_ = b.Delete(pointerKey(id), nil)
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("delete_message_failed", "id", id, "error", err)
		return err
	}
	logger.Debug("message_deleted", "id", id, "room", room)
	if room != "" {
		p.subs.notify(room)
	}
	return nil
}

// DeleteBatch removes up to MaxBatch records in one atomic pebble batch.
// Missing ids are skipped; watchers of every touched room are notified once.
func (p *Pebble) DeleteBatch(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if p.closed.Load() {
		return ErrClosed
	}
	if len(ids) > maxBatch {
		return fmt.Errorf("batch of %d exceeds limit %d", len(ids), maxBatch)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := map[string]struct{}{}
	b := p.db.NewBatch()
	defer b.Close()
	for _, id := range ids {
		idx, err := p.resolve(id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if r := roomOfIndexKey(idx); r != "" {
			rooms[r] = struct{}{}
		}
		_ = b.Delete(idx, nil)
		_ = b.Delete(pointerKey(id), nil)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("delete_batch_failed", "count", len(ids), "error", err)
		return err
	}
	for r := range rooms {
		p.subs.notify(r)
	}
	return nil
}

// Snapshot returns the most recent records for a room, newest first.
func (p *Pebble) Snapshot(room string, limit int) ([]models.Message, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	prefix := roomPrefix(room)
	upper := append(append([]byte(nil), prefix...), 0xff)
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("snapshot_bad_record", "room", room, "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// Rooms lists the distinct room ids that currently hold records.
func (p *Pebble) Rooms() ([]string, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	prefix := []byte("room:")
	upper := []byte("room;") // ';' is ':'+1
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	seen := map[string]struct{}{}
	for ok := iter.First(); ok; ok = iter.Next() {
		if r := roomOfIndexKey(iter.Key()); r != "" {
			seen[r] = struct{}{}
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

// PutMeta stores a small out-of-band record under the meta namespace.
func (p *Pebble) PutMeta(key string, value []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.db.Set([]byte("meta:"+key), value, pebble.Sync)
}

// GetMeta returns a meta record, or ErrNotFound.
func (p *Pebble) GetMeta(key string) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	v, closer, err := p.db.Get([]byte("meta:" + key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// roomOfIndexKey extracts the room id from "room:<id>:msg:...".
func roomOfIndexKey(k []byte) string {
	s := string(k)
	const pre = "room:"
	if len(s) <= len(pre) || s[:len(pre)] != pre {
		return ""
	}
	rest := s[len(pre):]
	if i := lastIndexOfMarker(rest); i >= 0 {
		return rest[:i]
	}
	return ""
}

// lastIndexOfMarker finds the ":msg:" marker. Room ids are validated to
// [a-zA-Z0-9_-] so the marker cannot occur inside one, but scanning from the
// end keeps this safe regardless.
func lastIndexOfMarker(s string) int {
	const marker = ":msg:"
	for i := len(s) - len(marker); i >= 0; i-- {
		if s[i:i+len(marker)] == marker {
			return i
		}
	}
	return -1
}
