// Package limiter defines the source-address blacklist consulted by the connection gateway.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Blacklist rejects source addresses for a fixed time after abuse.
// Entries expire on their own; there is no explicit removal.
type Blacklist interface {
	// Allow reports whether ip may connect now; when it may not, until is the ban expiry.
	Allow(ctx context.Context, ip string) (ok bool, until time.Time, err error)
	// Ban blocks ip for d and returns the resulting expiry. An existing longer ban is kept.
	Ban(ctx context.Context, ip string, d time.Duration) (until time.Time, err error)
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
