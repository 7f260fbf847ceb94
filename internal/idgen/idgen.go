// Package idgen provides injectable ID generation so that components which
// mint task and job numbers stay deterministic under test.
package idgen

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator mints unique identifiers.
type Generator interface {
	NewID() string
}

// UUID generates random (v4) UUIDs.
type UUID struct{}

// NewID returns a new random UUID string.
func (UUID) NewID() string {
	return uuid.New().String()
}

// Sequence generates monotonically increasing IDs with a fixed prefix.
// Safe for concurrent use.
type Sequence struct {
	Prefix string
	n      atomic.Int64
}

// NewSequence creates a Sequence starting at 1.
func NewSequence(prefix string) *Sequence {
	return &Sequence{Prefix: prefix}
}

// NewID returns the next ID in the sequence, e.g. "T-000001".
func (s *Sequence) NewID() string {
	return fmt.Sprintf("%s%06d", s.Prefix, s.n.Add(1))
}

// diffNamespace scopes deterministic plan diff IDs.
var diffNamespace = uuid.MustParse("6f1c9a52-3d7e-4b8a-9c11-2f5e8d0a7b43")

// DiffID derives a stable ID for the diff between two versions of a plan,
// so recomputing the same diff resolves to the same record. An empty
// fromVersionID denotes a first-version diff.
func DiffID(planID, fromVersionID, toVersionID string) string {
	key := strings.Join([]string{planID, fromVersionID, toVersionID}, "|")
	return uuid.NewSHA1(diffNamespace, []byte(key)).String()
}

// Short returns the first n characters of id with hyphens removed, used to
// build human-facing numbers from UUIDs.
func Short(id string, n int) string {
	s := strings.ReplaceAll(id, "-", "")
	if len(s) > n {
		return s[:n]
	}
	return s
}
