package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"
)

var idSeq uint64

var roomIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// GenMessageID returns a unique message id. The trailing counter keeps ids
// unique when several messages are created in the same nanosecond.
func GenMessageID() string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("msg-%d-%d", n, s)
}

// GenRoomID returns a fresh room id, optionally carrying a caller prefix.
func GenRoomID(prefix string) string {
	return fmt.Sprintf("%sroom_%d_%s", prefix, time.Now().UTC().UnixNano(), randSuffix(4))
}

// GenSessionID returns an anonymous per-client session pseudonym. It is not
// an authenticated identity; it only distinguishes participants in a room.
func GenSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UTC().UnixNano(), randSuffix(4))
}

// ValidRoomID reports whether id is a well-formed room id.
func ValidRoomID(id string) bool {
	return len(id) >= 5 && roomIDRe.MatchString(id)
}

func randSuffix(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		// fall back to the sequence counter; uniqueness still holds
		return fmt.Sprintf("%d", atomic.AddUint64(&idSeq, 1))
	}
	return hex.EncodeToString(b)
}
