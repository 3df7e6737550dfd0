// Package id generates identifiers for jobs and sessions.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces unique string identifiers.
type Generator interface {
	Generate() string
}

// ULIDGenerator generates lexicographically sortable identifiers. IDs issued
// within the same millisecond stay strictly increasing.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewULIDGenerator creates a new ULID generator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Generate creates a new ULID string.
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// UUIDGenerator generates random version 4 UUIDs.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUID generator.
func NewUUIDGenerator() UUIDGenerator {
	return UUIDGenerator{}
}

// Generate creates a new UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

var defaultULID = NewULIDGenerator()

// NewJobID returns a sortable identifier for a summarization job.
func NewJobID() string {
	return defaultULID.Generate()
}

// NewSessionID returns a random identifier for a question answering session.
func NewSessionID() string {
	return uuid.NewString()
}

// IsValidULID reports whether s parses as a ULID.
func IsValidULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// IsValidUUID reports whether s parses as a UUID.
func IsValidUUID(s string) bool {
	return uuid.Validate(s) == nil
}
