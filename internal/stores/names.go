package stores

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/presenced/internal/kv"
)

// NameStore holds user-chosen display names for lights, keyed by light id.
// It implements the fixture client's Namer port.
type NameStore struct {
	bucket kv.Bucket
}

// NewNameStore creates a name store on the given bucket.
func NewNameStore(bucket kv.Bucket) *NameStore {
	return &NameStore{bucket: bucket}
}

// Lookup returns the override name for a light, ok=false when none is set.
// Store errors are logged, not surfaced: a broken override must not break
// listing.
func (s *NameStore) Lookup(id string) (string, bool) {
	var name string
	found, err := s.bucket.Get(id, &name)
	if err != nil {
		log.Warn().Err(err).Str("light", id).Msg("Failed to look up light name override")
		return "", false
	}
	if !found || name == "" {
		return "", false
	}
	return name, true
}

// Rename sets the override name for a light.
func (s *NameStore) Rename(id, name string) error {
	return s.bucket.Store(id, name)
}

// Forget removes the override for a light.
func (s *NameStore) Forget(id string) (bool, error) {
	return s.bucket.Delete(id)
}
