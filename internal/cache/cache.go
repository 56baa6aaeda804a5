// Package cache provides small versioned preference stores backed by JSON
// files on local disk. Every operation is fail-soft: corruption, schema
// drift, or an unavailable storage directory degrade to "absent" rather
// than surfacing an error to callers.
package cache

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// entry is the on-disk envelope around a cached value.
type entry struct {
	Version   int             `json:"version"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Store persists one logical value under a named key. A read is only valid
// while the stored version matches the store's version and the entry is
// younger than the expiry window; anything else counts as absent and the
// stale file is removed.
type Store struct {
	dir     string
	key     string
	version int
	expiry  time.Duration

	now func() time.Time
}

// New creates a store for key inside dir. An empty dir marks storage as
// unavailable; every operation then no-ops (reads absent, IsExpired true).
func New(dir, key string, version int, expiry time.Duration) *Store {
	return &Store{
		dir:     dir,
		key:     key,
		version: version,
		expiry:  expiry,
		now:     time.Now,
	}
}

// Get unmarshals the cached value into out and reports whether a valid
// entry existed. Invalid entries (parse failure, version mismatch, expiry)
// are deleted on the way out.
func (s *Store) Get(out any) bool {
	if !s.available() {
		return false
	}

	raw, err := os.ReadFile(s.path())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[cache] read %s failed: %v", s.key, err)
			s.Clear()
		}
		return false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		log.Printf("[cache] corrupt entry %s, discarding: %v", s.key, err)
		s.Clear()
		return false
	}

	if e.Version != s.version || s.aged(e.Timestamp) {
		s.Clear()
		return false
	}

	if err := json.Unmarshal(e.Data, out); err != nil {
		log.Printf("[cache] corrupt payload %s, discarding: %v", s.key, err)
		s.Clear()
		return false
	}
	return true
}

// Set serializes value under the current version and write time,
// overwriting any prior entry. Write failures are logged, never propagated.
func (s *Store) Set(value any) {
	if !s.available() {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[cache] marshal %s failed: %v", s.key, err)
		return
	}

	raw, err := json.Marshal(entry{
		Version:   s.version,
		Timestamp: s.now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		log.Printf("[cache] marshal envelope %s failed: %v", s.key, err)
		return
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		log.Printf("[cache] ensure dir for %s failed: %v", s.key, err)
		return
	}
	if err := os.WriteFile(s.path(), raw, 0644); err != nil {
		log.Printf("[cache] write %s failed: %v", s.key, err)
	}
}

// Clear removes the entry unconditionally; a missing entry is fine.
func (s *Store) Clear() {
	if !s.available() {
		return
	}
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		log.Printf("[cache] remove %s failed: %v", s.key, err)
	}
}

// IsExpired reports staleness without reading the payload or deleting
// anything. Missing or unparseable entries count as expired.
func (s *Store) IsExpired() bool {
	if !s.available() {
		return true
	}

	raw, err := os.ReadFile(s.path())
	if err != nil {
		return true
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return true
	}
	return e.Version != s.version || s.aged(e.Timestamp)
}

// ClearAll removes the entries for every named key inside dir, for bulk
// invalidation on sign-out. Missing files and an unavailable dir are fine.
func ClearAll(dir string, keys []string) {
	if dir == "" {
		return
	}
	for _, key := range keys {
		path := filepath.Join(dir, fileName(key))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("[cache] remove %s failed: %v", key, err)
		}
	}
}

func (s *Store) available() bool {
	return s.dir != ""
}

func (s *Store) aged(timestamp int64) bool {
	written := time.UnixMilli(timestamp)
	return s.now().Sub(written) > s.expiry
}

func (s *Store) path() string {
	return filepath.Join(s.dir, fileName(s.key))
}

func fileName(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return safe + ".json"
}
