package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedHash wraps every reason a stored argon2id string is refused.
var ErrMalformedHash = errors.New("malformed argon2id hash")

// Floors below which a config, or a stored hash, is refused outright.
const (
	argon2MinMemoryKiB uint32 = 8 * 1024
	argon2MinSaltBytes        = 16
	argon2MinKeyBytes         = 16
	phcPrefix                 = "$argon2id$"
)

// Argon2Config holds argon2id cost parameters. Memory is in KiB.
// MaxPasswordBytes caps the input; zero means DefaultMaxPasswordBytes.
type Argon2Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultArgon2Config follows the OWASP argon2id baseline.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < argon2MinMemoryKiB:
		return fmt.Errorf("argon2 memory must be >= %d KiB", argon2MinMemoryKiB)
	case c.Time < 1:
		return errors.New("argon2 time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be >= 1")
	case c.SaltLength < argon2MinSaltBytes:
		return fmt.Errorf("argon2 salt length must be >= %d", argon2MinSaltBytes)
	case c.KeyLength < argon2MinKeyBytes:
		return fmt.Errorf("argon2 key length must be >= %d", argon2MinKeyBytes)
	case c.MaxPasswordBytes < 0:
		return errors.New("argon2 max password bytes must be >= 0")
	}
	return nil
}

// Argon2 hashes with argon2id and stores the result as a PHC string.
type Argon2 struct {
	cfg Argon2Config
}

func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash derives a key from the raw password bytes. No Unicode normalization
// is applied, so the directory must store what the pensioner typed.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < minPassBytes {
		return "", ErrPasswordTooShort
	}
	if len(password) > a.cfg.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	h := phcHash{
		memory:  a.cfg.Memory,
		time:    a.cfg.Time,
		threads: a.cfg.Parallelism,
		salt:    make([]byte, a.cfg.SaltLength),
	}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("argon2 salt: %w", err)
	}
	h.key = h.derive(password, a.cfg.KeyLength)
	return h.String(), nil
}

// Verify re-derives the key with the parameters recorded in encodedHash,
// not the hasher's current ones.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.cfg.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	h, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	got := h.derive(password, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash is cheaper than the current
// config, or has a different key length.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := h.memory < a.cfg.Memory ||
		h.time < a.cfg.Time ||
		h.threads < a.cfg.Parallelism
	return weaker || uint32(len(h.key)) != a.cfg.KeyLength, nil
}

// phcHash is one decoded $argon2id$ string.
type phcHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h phcHash) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, keyLen)
}

func (h phcHash) params() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", h.memory, h.time, h.threads)
}

// String renders the PHC form with unpadded base64 segments.
func (h phcHash) String() string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$%s$%s$%s",
		phcPrefix, argon2.Version, h.params(),
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func decodePHC(s string) (phcHash, error) {
	var h phcHash
	rest, ok := strings.CutPrefix(s, phcPrefix)
	if !ok {
		return h, fmt.Errorf("%w: not an argon2id string", ErrMalformedHash)
	}
	seg := strings.Split(rest, "$")
	if len(seg) != 4 {
		return h, fmt.Errorf("%w: want 4 segments after the algorithm, got %d", ErrMalformedHash, len(seg))
	}

	var version int
	if _, err := fmt.Sscanf(seg[0], "v=%d", &version); err != nil || seg[0] != fmt.Sprintf("v=%d", version) {
		return h, fmt.Errorf("%w: bad version segment %q", ErrMalformedHash, seg[0])
	}
	if version != argon2.Version {
		return h, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	// Re-rendering rejects reordered, repeated or padded parameters.
	if _, err := fmt.Sscanf(seg[1], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil || seg[1] != h.params() {
		return h, fmt.Errorf("%w: bad parameter segment %q", ErrMalformedHash, seg[1])
	}
	if h.memory < argon2MinMemoryKiB || h.time < 1 || h.threads < 1 {
		return h, fmt.Errorf("%w: parameters below floor", ErrMalformedHash)
	}

	var err error
	if h.salt, err = decodeSegment(seg[2]); err != nil || len(h.salt) < argon2MinSaltBytes {
		return h, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if h.key, err = decodeSegment(seg[3]); err != nil || len(h.key) == 0 {
		return h, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return h, nil
}

// decodeSegment accepts unpadded base64, and padded for older rows.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
