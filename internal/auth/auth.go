// Package auth validates bearer keys against configured SHA-256 hashes.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrMissingKey is returned when a request carries no credentials.
	ErrMissingKey = errors.New("missing Authorization header")
	// ErrInvalidKey is returned when a key matches no configured hash.
	ErrInvalidKey = errors.New("invalid API key")
)

// Key is a named client credential. Only its hash is kept.
type Key struct {
	Name string
	Hash string
}

// KeySet holds the accepted key hashes. An empty set accepts nothing; callers
// decide whether to install the middleware at all.
type KeySet struct {
	keys []Key
}

// NewKeySet builds a set from configured hashes. Entries may be "name:hash" or
// a bare hash, in which case the name is the hash prefix.
func NewKeySet(entries []string) (*KeySet, error) {
	ks := &KeySet{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hash, found := strings.Cut(entry, ":")
		if !found {
			hash = name
			name = ""
		}
		hash = strings.ToLower(strings.TrimSpace(hash))
		if len(hash) != sha256.Size*2 {
			return nil, fmt.Errorf("api key hash %q: want %d hex characters", entry, sha256.Size*2)
		}
		if _, err := hex.DecodeString(hash); err != nil {
			return nil, fmt.Errorf("api key hash %q: %w", entry, err)
		}
		if name == "" {
			name = "key-" + hash[:8]
		}
		ks.keys = append(ks.keys, Key{Name: name, Hash: hash})
	}
	return ks, nil
}

// Len returns the number of configured keys.
func (ks *KeySet) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.keys)
}

// Validate returns the key matching apiKey. Every configured hash is compared
// in constant time.
func (ks *KeySet) Validate(apiKey string) (*Key, error) {
	if apiKey == "" {
		return nil, ErrMissingKey
	}
	if ks == nil {
		return nil, ErrInvalidKey
	}
	hash := []byte(HashAPIKey(apiKey))

	var match *Key
	for i := range ks.keys {
		if subtle.ConstantTimeCompare(hash, []byte(ks.keys[i].Hash)) == 1 {
			match = &ks.keys[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidKey
	}
	return match, nil
}

// ExtractAPIKey extracts the key from a "Bearer <key>" Authorization header.
func ExtractAPIKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingKey
	}

	scheme, key, found := strings.Cut(header, " ")
	if !found {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	if !strings.EqualFold(scheme, "bearer") {
		return "", fmt.Errorf("unsupported authorization scheme %q", scheme)
	}
	return strings.TrimSpace(key), nil
}

// HashAPIKey returns the hex SHA-256 of a key, the form stored in config.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
