package chat

import (
	"strconv"
	"time"

	"ghostchat/pkg/logger"
	"ghostchat/pkg/stats"
)

// Connection quality buckets, derived from ping round-trip time.
const (
	QualityExcellent    = "excellent"
	QualityGood         = "good"
	QualityPoor         = "poor"
	QualityDisconnected = "disconnected"
)

// ConnStatus is the connection monitor's latest reading.
type ConnStatus struct {
	Connected bool          `json:"connected"`
	Quality   string        `json:"quality"`
	Latency   time.Duration `json:"latency"`
	LastSeen  time.Time     `json:"last_seen,omitempty"`
}

// Connection returns the monitor's latest reading. Sessions without a
// monitor report disconnected.
func (s *Session) Connection() ConnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// monitorLoop probes the store every PingInterval with a tiny meta write and
// buckets the observed round trip into a quality reading.
func (s *Session) monitorLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PingInterval.Duration())
	defer ticker.Stop()
	key := "ping:" + s.id
	for {
		select {
		case <-ticker.C:
			s.ping(key)
		case <-s.quit:
			return
		}
	}
}

func (s *Session) ping(key string) {
	start := time.Now()
	err := s.st.PutMeta(key, []byte(strconv.FormatInt(start.UnixNano(), 10)))
	rtt := time.Since(start)

	s.mu.Lock()
	if err != nil {
		s.conn = ConnStatus{Connected: false, Quality: QualityDisconnected, LastSeen: s.conn.LastSeen}
		s.mu.Unlock()
		logger.Warn("ping_failed", "session", s.id, "error", err)
		return
	}
	s.conn = ConnStatus{
		Connected: true,
		Quality:   qualityFor(rtt),
		Latency:   rtt,
		LastSeen:  start,
	}
	s.mu.Unlock()
	stats.PingLatency.Observe(rtt.Seconds())
}

func qualityFor(rtt time.Duration) string {
	switch {
	case rtt < 100*time.Millisecond:
		return QualityExcellent
	case rtt < 300*time.Millisecond:
		return QualityGood
	default:
		return QualityPoor
	}
}
