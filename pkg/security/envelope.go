package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"unicode/utf8"

	"ghostchat/pkg/logger"
)

// DecryptFailedText is returned by Decrypt for any input it cannot turn back
// into valid plaintext: truncated data, corruption, or a mismatched key. It
// is a rendered placeholder, not an error, so one bad record never takes
// down a whole room view.
const DecryptFailedText = "could not decrypt"

// Envelope is a symmetric cipher over message bodies, keyed by a single
// pre-shared secret from configuration. AES-256-CTR with a random IV
// prepended; no integrity tag is attached, so a wrong key surfaces only as
// garbage plaintext, which Decrypt maps to DecryptFailedText.
type Envelope struct {
	key []byte
}

// NewEnvelope derives the cipher key from a passphrase.
func NewEnvelope(passphrase string) (*Envelope, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	sum := sha256.Sum256([]byte(passphrase))
	return &Envelope{key: sum[:]}, nil
}

// NewEnvelopeHex builds an envelope from a 64-hex-char (32 byte) key.
func NewEnvelopeHex(hexKey string) (*Envelope, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, errors.New("encryption key must be 32 bytes (AES-256)")
	}
	return &Envelope{key: b}, nil
}

// Encrypt returns the base64 ciphertext for plaintext. On failure it returns
// "" rather than leaking plaintext; callers must treat an empty ciphertext
// as a send failure and not persist it.
func (e *Envelope) Encrypt(plaintext string) string {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		logger.Error("encrypt_cipher_init_failed", "error", err)
		return ""
	}
	buf := make([]byte, aes.BlockSize+len(plaintext))
	iv := buf[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		logger.Error("encrypt_iv_failed", "error", err)
		return ""
	}
	cipher.NewCTR(block, iv).XORKeyStream(buf[aes.BlockSize:], []byte(plaintext))
	return base64.StdEncoding.EncodeToString(buf)
}

// Decrypt reverses Encrypt. It never returns an error for malformed input;
// anything unrecoverable yields DecryptFailedText.
func (e *Envelope) Decrypt(ciphertext string) string {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) <= aes.BlockSize {
		return DecryptFailedText
	}
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return DecryptFailedText
	}
	out := make([]byte, len(raw)-aes.BlockSize)
	cipher.NewCTR(block, raw[:aes.BlockSize]).XORKeyStream(out, raw[aes.BlockSize:])
	if !plausiblePlaintext(out) {
		return DecryptFailedText
	}
	return string(out)
}

// plausiblePlaintext rejects decryptions that cannot be real message text.
// Without an integrity tag this is the only wrong-key detection available:
// CTR output under the wrong key is uniformly random and essentially never
// valid printable UTF-8.
func plausiblePlaintext(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}
