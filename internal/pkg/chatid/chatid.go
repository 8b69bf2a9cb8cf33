package chatid

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a time-ordered ULID string. Ids generated in the same millisecond
// still sort in creation order.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IsValid reports whether value is a well-formed ULID.
func IsValid(value string) bool {
	value = strings.TrimSpace(value)
	if len(value) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(value)
	return err == nil
}
