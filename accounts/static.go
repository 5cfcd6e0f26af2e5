package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pensionportal/recovery"
	"gopkg.in/yaml.v3"
)

// StaticSubject is one YAML entry.
type StaticSubject struct {
	ID         string `yaml:"id"`
	Identifier string `yaml:"identifier"`
	Email      string `yaml:"email"`
	Phone      string `yaml:"phone"`
}

type staticFile struct {
	Subjects []StaticSubject `yaml:"subjects"`
}

// StaticDirectory is an in-memory subject table. Identifiers are matched
// after trimming and upper-casing, the same normalization the engine applies.
type StaticDirectory struct {
	mu           sync.RWMutex
	byIdentifier map[string]recovery.Subject
	hashes       map[string]string
}

func NewStaticDirectory(subjects []StaticSubject) (*StaticDirectory, error) {
	d := &StaticDirectory{
		byIdentifier: make(map[string]recovery.Subject, len(subjects)),
		hashes:       make(map[string]string),
	}

	ids := make(map[string]struct{}, len(subjects))
	for i, s := range subjects {
		key := normalizeKey(s.Identifier)
		if s.ID == "" || key == "" {
			return nil, fmt.Errorf("subject %d: id and identifier are required", i)
		}
		if s.Email == "" && s.Phone == "" {
			return nil, fmt.Errorf("subject %s: at least one contact channel is required", s.ID)
		}
		if _, dup := d.byIdentifier[key]; dup {
			return nil, fmt.Errorf("subject %s: duplicate identifier", s.ID)
		}
		if _, dup := ids[s.ID]; dup {
			return nil, fmt.Errorf("subject %s: duplicate id", s.ID)
		}
		ids[s.ID] = struct{}{}

		d.byIdentifier[key] = recovery.Subject{
			ID:         s.ID,
			Identifier: key,
			Email:      strings.TrimSpace(s.Email),
			Phone:      strings.TrimSpace(s.Phone),
		}
	}
	return d, nil
}

// LoadStaticDirectory parses a YAML document of the form
//
//	subjects:
//	  - id: p-1
//	    identifier: NSS12345678
//	    email: ana@example.org
//	    phone: "+15550100"
func LoadStaticDirectory(r io.Reader) (*StaticDirectory, error) {
	var file staticFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode subject directory: %w", err)
	}
	return NewStaticDirectory(file.Subjects)
}

func LoadStaticDirectoryFile(path string) (*StaticDirectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadStaticDirectory(f)
}

func (d *StaticDirectory) LookupSubject(ctx context.Context, identifier string) (recovery.Subject, error) {
	if err := ctx.Err(); err != nil {
		return recovery.Subject{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.byIdentifier[normalizeKey(identifier)]
	if !ok {
		return recovery.Subject{}, recovery.ErrSubjectNotFound
	}
	return s, nil
}

func (d *StaticDirectory) UpdatePasswordHash(ctx context.Context, subjectID, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range d.byIdentifier {
		if s.ID == subjectID {
			d.hashes[subjectID] = passwordHash
			return nil
		}
	}
	return recovery.ErrSubjectNotFound
}

// PasswordHash returns the last hash stored for subjectID.
func (d *StaticDirectory) PasswordHash(subjectID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.hashes[subjectID]
	return h, ok
}

// Len returns the number of subjects.
func (d *StaticDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byIdentifier)
}

func normalizeKey(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}
