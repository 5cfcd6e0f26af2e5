package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	resetSessionVersionV1 = 1

	flagCodeVerified = 1 << 0
)

var (
	ErrSessionNotFound    = errors.New("reset session not found")
	ErrStoreUnavailable   = errors.New("reset session store unavailable")
	ErrStoreContention    = errors.New("reset session update contention")
	errSessionFieldTooBig = errors.New("reset session field too long")
)

// ResetSession is one in-progress password reset attempt. Token is the
// store key and is never part of the encoded value.
type ResetSession struct {
	Token                string
	AttemptID            string
	SubjectID            string
	ContactEmail         string
	ContactPhone         string
	Code                 string
	CodeVerified         bool
	VerificationAttempts uint16
	CreatedAt            time.Time
	ExpiresAt            time.Time
}

// SessionState is derived from the stored fields, never persisted.
type SessionState string

const (
	StateInitiated SessionState = "INITIATED"
	StateCodeSent  SessionState = "CODE_SENT"
	StateVerified  SessionState = "VERIFIED"
)

func (s *ResetSession) State() SessionState {
	switch {
	case s.CodeVerified:
		return StateVerified
	case s.Code != "":
		return StateCodeSent
	default:
		return StateInitiated
	}
}

// Expired reports whether the session deadline has passed at now.
func (s *ResetSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *ResetSession) clone() *ResetSession {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// SessionStore is the key-value contract the reset flow depends on.
// Every read treats an expired record as absent.
type SessionStore interface {
	Save(ctx context.Context, session *ResetSession, now time.Time) error
	Get(ctx context.Context, token string, now time.Time) (*ResetSession, error)
	// Update applies fn to a copy of the live record and persists the copy
	// atomically when fn returns nil. fn may run more than once.
	Update(ctx context.Context, token string, now time.Time, fn func(*ResetSession) error) (*ResetSession, error)
	// Delete removes the live record and returns it.
	Delete(ctx context.Context, token string, now time.Time) (*ResetSession, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

func encodeResetSession(s *ResetSession) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetSessionVersionV1)

	var flags byte
	if s.CodeVerified {
		flags |= flagCodeVerified
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, s.VerificationAttempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	for _, field := range []string{s.AttemptID, s.SubjectID, s.ContactEmail, s.ContactPhone, s.Code} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeResetSession(token string, data []byte) (*ResetSession, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetSessionVersionV1 {
		return nil, errors.New("invalid reset session version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	s := &ResetSession{
		Token:        token,
		CodeVerified: flags&flagCodeVerified != 0,
	}

	if err := binary.Read(reader, binary.BigEndian, &s.VerificationAttempts); err != nil {
		return nil, err
	}

	var createdMs, expiresMs int64
	if err := binary.Read(reader, binary.BigEndian, &createdMs); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresMs); err != nil {
		return nil, err
	}
	s.CreatedAt = time.UnixMilli(createdMs)
	s.ExpiresAt = time.UnixMilli(expiresMs)

	for _, field := range []*string{&s.AttemptID, &s.SubjectID, &s.ContactEmail, &s.ContactPhone, &s.Code} {
		v, err := readString(reader)
		if err != nil {
			return nil, err
		}
		*field = v
	}

	return s, nil
}

func writeString(buf *bytes.Buffer, v string) error {
	if len(v) > 65535 {
		return errSessionFieldTooBig
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
