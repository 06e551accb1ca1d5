// Package cache stores generated layouts and rendered artifacts.
//
// A generation with an explicit seed is a pure function of the image pool,
// the options and the seed, so its layout and artifacts can be reused. The
// pipeline looks layouts up by [Keyer.LayoutKey] and artifacts by
// [Keyer.ArtifactKey]; generations with a random seed are never cached.
//
// Backends:
//   - [FileCache]: one JSON file per entry, for the CLI
//   - [RedisCache]: shared cache for the HTTP server
//   - [NullCache]: disables caching
package cache

import (
	"context"
	"fmt"
	"time"
)

// Default time-to-live values.
const (
	// LayoutTTL is how long a generated layout stays cached.
	LayoutTTL = 7 * 24 * time.Hour

	// ArtifactTTL is how long a rendered artifact stays cached.
	ArtifactTTL = 24 * time.Hour
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value for key and whether it was found. Expired and
	// unreadable entries are reported as misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend.
	Close() error
}

// LayoutKeyOpts holds every option that changes a generated layout.
type LayoutKeyOpts struct {
	Order         int     `json:"order"`
	Seed          uint64  `json:"seed"`
	PageWidth     float64 `json:"page_width"`
	PageHeight    float64 `json:"page_height"`
	Radius        float64 `json:"radius"`
	Margin        float64 `json:"margin"`
	Rotate        bool    `json:"rotate"`
	Shuffle       bool    `json:"shuffle"`
	OnFailure     string  `json:"on_failure"`
	OuterAttempts int     `json:"outer_attempts"`
	InnerAttempts int     `json:"inner_attempts"`
}

// ArtifactKeyOpts holds every option that changes a rendered artifact of a
// given layout.
type ArtifactKeyOpts struct {
	Format string  `json:"format"`
	Rotate bool    `json:"rotate"`
	DPI    float64 `json:"dpi,omitempty"`
}

// Keyer derives cache keys.
type Keyer interface {
	// LayoutKey keys a layout by the pool it was generated from.
	LayoutKey(poolHash string, opts LayoutKeyOpts) string

	// ArtifactKey keys a rendered artifact by the layout it was drawn from.
	ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer is the standard [Keyer].
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// LayoutKey implements [Keyer].
func (DefaultKeyer) LayoutKey(poolHash string, opts LayoutKeyOpts) string {
	return hashKey("layout", poolHash, opts)
}

// ArtifactKey implements [Keyer].
func (DefaultKeyer) ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", layoutHash, opts)
}

// PoolHash identifies an ordered image pool by the digests of its images.
func PoolHash(digests []string) string {
	return hashKey("pool", digests)[len("pool:"):]
}

// Describe returns a short human-readable form of a key for logs.
func Describe(key string) string {
	if len(key) > 24 {
		return fmt.Sprintf("%s…", key[:24])
	}
	return key
}
