// Package idgen generates sortable, monotonic ULIDs shared across
// packages that need durable, time-ordered identifiers: checkpoint IDs,
// DLQ entry IDs, and event IDs.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// ULID returns a new monotonically-increasing ULID string.
func ULID() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
