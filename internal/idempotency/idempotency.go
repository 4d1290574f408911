// Package idempotency tracks checkout idempotency keys.
package idempotency

import (
	"net/http"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Header carries the client-chosen idempotency key of a checkout.
const Header = "Idempotency-Key"

// MaxKeyLength bounds accepted keys.
const MaxKeyLength = 128

// Key returns the trimmed idempotency key of r, or "" when absent or longer
// than MaxKeyLength.
func Key(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get(Header))
	if len(key) > MaxKeyLength {
		return ""
	}
	return key
}

// Filter is a probabilistic set of keys committed by this process. A miss is
// definitive, so the store lookup for a fresh key can be skipped. The store's
// unique key on orders remains the source of truth.
type Filter struct {
	mu sync.RWMutex
	bf *bloom.BloomFilter
}

// NewFilter sizes the filter for capacity keys at false-positive rate fp.
func NewFilter(capacity uint, fp float64) *Filter {
	return &Filter{bf: bloom.NewWithEstimates(capacity, fp)}
}

// MaybeSeen reports whether key may have been added.
func (f *Filter) MaybeSeen(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.TestString(key)
}

// Add records key.
func (f *Filter) Add(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bf.AddString(key)
}
