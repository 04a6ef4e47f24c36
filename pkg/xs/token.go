package xs

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

var tokenGeneration atomic.Uint64

// NewToken mints a fresh, opaque watch token embedding a caller-supplied
// label and a monotonic generation counter, disambiguated with a uuid
// fragment. The core never parses a token's structure back out — tokens
// are compared only for equality.
func NewToken(label string) string {
	gen := tokenGeneration.Add(1)
	return fmt.Sprintf("%s#%d-%s", label, gen, uuid.NewString()[:8])
}
