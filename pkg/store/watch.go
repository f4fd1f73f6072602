package store

import (
	"sync"

	"ghostchat/pkg/logger"
)

// Watcher is one live room feed. C delivers a fresh Snapshot after every
// change touching the room, coalesced: if snapshots are produced faster than
// the consumer drains them, intermediate ones are dropped and only the
// latest survives. C is closed by Cancel or when the store shuts down.
type Watcher struct {
	C chan Snapshot

	room   string
	limit  int
	kick   chan struct{}
	done   chan struct{}
	cancel func()
	once   sync.Once
}

// Cancel detaches the watcher and closes C. Safe to call more than once.
func (w *Watcher) Cancel() {
	w.once.Do(func() {
		w.cancel()
		close(w.done)
	})
}

// fanout tracks room watchers and wakes them after commits.
type fanout struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Watcher
	closed bool
}

func newFanout() *fanout {
	return &fanout{subs: map[uint64]*Watcher{}}
}

// notify kicks every watcher of the room. Non-blocking: a watcher that is
// already scheduled to resnapshot is not queued twice.
func (f *fanout) notify(room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.subs {
		if w.room != room {
			continue
		}
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	subs := make([]*Watcher, 0, len(f.subs))
	for _, w := range f.subs {
		subs = append(subs, w)
	}
	f.closed = true
	f.mu.Unlock()
	for _, w := range subs {
		w.Cancel()
	}
}

// Watch opens a live feed for one room. The first snapshot is produced
// immediately; later ones follow each change to the room.
func (p *Pebble) Watch(room string, limit int) (*Watcher, error) {
	w := &Watcher{
		C:     make(chan Snapshot, 1),
		room:  room,
		limit: limit,
		kick:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	p.subs.mu.Lock()
	if p.subs.closed {
		p.subs.mu.Unlock()
		close(w.C)
		return nil, ErrClosed
	}
	id := p.subs.nextID
	p.subs.nextID++
	p.subs.subs[id] = w
	p.subs.mu.Unlock()

	w.cancel = func() {
		p.subs.mu.Lock()
		delete(p.subs.subs, id)
		p.subs.mu.Unlock()
	}

	// initial snapshot
	w.kick <- struct{}{}

	go p.watchLoop(w)
	return w, nil
}

func (p *Pebble) watchLoop(w *Watcher) {
	defer close(w.C)
	var gen uint64
	for {
		select {
		case <-w.done:
			return
		case <-w.kick:
		}
		records, err := p.Snapshot(w.room, w.limit)
		if err != nil {
			// the store is closing or the iterator failed; end the feed
			// and let the consumer reconnect
			logger.Warn("watch_snapshot_failed", "room", w.room, "error", err)
			return
		}
		gen++
		snap := Snapshot{Room: w.room, Gen: gen, Records: records}
		// coalesce: drop a stale undelivered snapshot before queueing the
		// newer one, so consumers only ever apply the latest state
		select {
		case <-w.C:
		default:
		}
		select {
		case w.C <- snap:
		case <-w.done:
			return
		}
	}
}
