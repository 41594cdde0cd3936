// Package idgen generates the 26-character Crockford base32 capture
// identifiers captures are keyed by (spec §3.1: `^[0-9A-HJKMNP-TV-Z]{26}$`).
package idgen

import (
	"crypto/rand"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Pattern is the identifier validation regex from spec §3.1.
var Pattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

// Generator produces monotonic, time-sortable capture identifiers. It is
// safe for concurrent use; ULID's monotonic entropy source is serialized by
// an internal mutex so identifiers stay ordered within a single process,
// per spec §3.1 ("monotonic within a single process's ingest order").
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// New builds a Generator using crypto-strength monotonic entropy seeded
// from the real clock.
func New() *Generator {
	return NewWithClock(time.Now)
}

// NewWithClock builds a Generator whose timestamp component comes from now,
// so tests can drive it with a fixed clock.
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     now,
	}
}

// Next returns a new 26-character capture identifier.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	return id.String()
}

// Valid reports whether s matches the capture identifier shape.
func Valid(s string) bool {
	return Pattern.MatchString(s)
}
