package models

import "time"

// Visible reports whether a message may be shown to the given viewer at
// the given instant. A delete-for-everyone tombstone wins over everything;
// a per-viewer tombstone hides the message for that viewer only; an elapsed
// disappear deadline hides it for all.
func Visible(m *Message, viewer string, now time.Time) bool {
	if m.DeletedForEveryone {
		return false
	}
	if contains(m.DeletedBy, viewer) {
		return false
	}
	if m.DisappearAt != 0 && now.UnixNano() >= m.DisappearAt {
		return false
	}
	return true
}

// IsExpired reports whether the disappear deadline has passed. The check is
// deliberately independent of tombstone state so the hard-delete path still
// reclaims storage for messages that are already deleted-for-everyone.
func IsExpired(m *Message, now time.Time) bool {
	return m.DisappearAt != 0 && now.UnixNano() >= m.DisappearAt
}
