// Package stats exposes the sync core's operational counters on the
// default prometheus registry, served at /metrics by the gateway.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsApplied counts room snapshots reconciled into the local view.
	SnapshotsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ghostchat_snapshots_applied_total",
		Help: "Room snapshots reconciled into the local message list.",
	})

	// SnapshotsDiscarded counts stale snapshots dropped by the room or
	// generation guard.
	SnapshotsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ghostchat_snapshots_discarded_total",
		Help: "Stale or superseded snapshots discarded without applying.",
	})

	// Reconnects counts subscription drops that entered the reconnect path.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ghostchat_reconnects_total",
		Help: "Live feed reconnect attempts.",
	})

	// VisibleMessages is the size of the reconciled message list.
	VisibleMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ghostchat_visible_messages",
		Help: "Messages currently visible in the open room.",
	})

	// TimersArmed is the size of the expiry timer arena.
	TimersArmed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ghostchat_expiry_timers_armed",
		Help: "Disappear timers currently armed.",
	})

	// Sends counts message send outcomes.
	Sends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghostchat_sends_total",
		Help: "Message sends by outcome.",
	}, []string{"status"})

	// Receipts counts delivered/viewed receipt writes.
	Receipts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ghostchat_receipts_total",
		Help: "View receipt writes issued from snapshot observation.",
	})

	// ExpiryDeletes counts hard deletes triggered by disappear deadlines.
	ExpiryDeletes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ghostchat_expiry_deletes_total",
		Help: "Hard deletes performed when disappear deadlines elapsed.",
	})

	// WipeChunks counts panic wipe chunk commits by outcome.
	WipeChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghostchat_wipe_chunks_total",
		Help: "Panic wipe deletion chunks by outcome.",
	}, []string{"status"})

	// SweptMessages counts records reclaimed by the cleanup sweeper.
	SweptMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ghostchat_swept_messages_total",
		Help: "Records reclaimed by the background cleanup sweeper.",
	})

	// PingLatency observes connection monitor round trips.
	PingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ghostchat_ping_latency_seconds",
		Help:    "Connection monitor store round-trip latency.",
		Buckets: prometheus.DefBuckets,
	})
)
