package models

// Kind discriminates message payload types.
type Kind string

const (
	KindText   Kind = "text"
	KindVoice  Kind = "voice"
	KindSystem Kind = "system"
)

// Reaction is one emoji reaction by one session. Reactions are a multiset:
// the same session may add the same emoji more than once, and rendering
// collapses duplicates by count, not the model.
type Reaction struct {
	Emoji     string `json:"emoji"`
	Reactor   string `json:"reactor"`
	ReactedAt int64  `json:"reacted_at"`
}

// Message is the stored representation of one chat event. Ciphertext holds
// the encrypted body; for voice messages it is the encrypted caption and the
// audio blob rides alongside unencrypted but opaque.
type Message struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Author string `json:"author"`
	Kind   Kind   `json:"kind"`

	Ciphertext string `json:"ciphertext,omitempty"`

	// Voice payload; BlobSeconds is the recorded duration.
	Blob        []byte `json:"blob,omitempty"`
	BlobSeconds int    `json:"blob_seconds,omitempty"`

	// SentAt is assigned by the store on creation (ns). Zero while the
	// write is still in flight.
	SentAt int64 `json:"sent_at"`

	Delivered   bool  `json:"delivered"`
	DeliveredAt int64 `json:"delivered_at,omitempty"`
	ViewedAt    int64 `json:"viewed_at,omitempty"`

	// ViewedBy always contains the author from creation onward.
	ViewedBy []string `json:"viewed_by"`
	PlayedBy []string `json:"played_by,omitempty"`

	// DisappearTimer is the requested lifetime in seconds, fixed at send
	// time. DisappearAt is the absolute deadline (ns); zero means the
	// message never expires.
	DisappearTimer int   `json:"disappear_timer,omitempty"`
	DisappearAt    int64 `json:"disappear_at,omitempty"`

	Reactions []Reaction `json:"reactions,omitempty"`

	// DeletedBy tombstones the message for individual viewers only.
	// DeletedForEveryone hides it for all participants at once.
	DeletedBy          []string `json:"deleted_by,omitempty"`
	DeletedForEveryone bool     `json:"deleted_for_everyone,omitempty"`
	// DeletedAt records when the delete-for-everyone tombstone landed (ns).
	DeletedAt int64 `json:"deleted_at,omitempty"`

	// AutoDeleteArmed guards against re-issuing the "scheduled" write on
	// every snapshot reconciliation. It is an optimization only; deletion
	// correctness never depends on it.
	AutoDeleteArmed bool `json:"auto_delete_armed,omitempty"`
}

// Viewed reports whether any session other than the author observed the
// message.
func (m *Message) Viewed() bool {
	for _, s := range m.ViewedBy {
		if s != m.Author {
			return true
		}
	}
	return false
}

// ViewedBySession reports whether the given session is in ViewedBy.
func (m *Message) ViewedBySession(session string) bool {
	return contains(m.ViewedBy, session)
}

// PlayedBySession reports whether the given session completed playback.
func (m *Message) PlayedBySession(session string) bool {
	return contains(m.PlayedBy, session)
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Union adds s to set if absent and returns the (possibly new) slice.
func Union(set []string, s string) []string {
	if contains(set, s) {
		return set
	}
	return append(set, s)
}
