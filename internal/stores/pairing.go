// Package stores provides typed persistence on top of the KV buckets:
// the bridge pairing cache and fixture display-name overrides.
package stores

import (
	"github.com/dokzlo13/presenced/internal/kv"
)

const pairingKey = "pairing"

type pairing struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

// PairingStore persists the bridge address+token pair between runs. It
// implements the connector's cache port.
type PairingStore struct {
	bucket kv.Bucket
}

// NewPairingStore creates a pairing store on the given bucket.
func NewPairingStore(bucket kv.Bucket) *PairingStore {
	return &PairingStore{bucket: bucket}
}

// LoadPairing returns the cached address+token pair, ok=false when none is
// stored.
func (s *PairingStore) LoadPairing() (string, string, bool, error) {
	var p pairing
	found, err := s.bucket.Get(pairingKey, &p)
	if err != nil || !found {
		return "", "", false, err
	}
	return p.Address, p.Token, true, nil
}

// SavePairing stores the address+token pair.
func (s *PairingStore) SavePairing(address, token string) error {
	return s.bucket.Store(pairingKey, pairing{Address: address, Token: token})
}

// Clear forgets the stored pairing.
func (s *PairingStore) Clear() error {
	_, err := s.bucket.Delete(pairingKey)
	return err
}
