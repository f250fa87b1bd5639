package postgres

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDGenerator hands out ids for accounts, transfers, entries and outbox
// events. Ids from one generator are strictly increasing, so ORDER BY id
// matches creation order within a process.
type ULIDGenerator struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy io.Reader
}

// NewULIDGenerator returns a generator backed by crypto/rand and the wall clock.
func NewULIDGenerator() *ULIDGenerator {
	return newULIDGenerator(time.Now, rand.Reader)
}

func newULIDGenerator(now func() time.Time, source io.Reader) *ULIDGenerator {
	return &ULIDGenerator{
		now:     now,
		entropy: ulid.Monotonic(source, 0),
	}
}

// Generate returns the next id.
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}
