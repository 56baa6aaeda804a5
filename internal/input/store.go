// Package input holds staged, not-yet-sent message state per conversation
// key: attachments, the selected persona, and sampling configuration. State
// survives navigation between conversations but is transient, it never
// reaches durable storage and is dropped once a send completes.
package input

import (
	"sync"
	"time"

	"github.com/quhan/chatdeck/internal/model/chat"
)

// MaxAttachments caps the staged attachment list per conversation key.
// Appends past the cap are truncated.
const MaxAttachments = 20

// maxTrackedKeys bounds how many conversation keys may hold staged state at
// once; beyond it the least recently touched entries are evicted so
// abandoned drafts cannot accumulate forever.
const maxTrackedKeys = 256

// StagedInput is the per-key snapshot a send consumes.
type StagedInput struct {
	Attachments     []chat.Attachment `json:"attachments"`
	PersonaID       string            `json:"personaId,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
	ReasoningConfig map[string]any    `json:"reasoningConfig,omitempty"`
}

type stagedEntry struct {
	StagedInput
	touched time.Time
}

// Store keeps staged input keyed by conversation key with strict isolation:
// operations on one key never observe or mutate another key's state.
type Store struct {
	mu     sync.Mutex
	staged map[string]*stagedEntry
}

// NewStore creates an empty staged-input store.
func NewStore() *Store {
	return &Store{staged: make(map[string]*stagedEntry)}
}

// Append adds attachments at the end of the key's sequence and returns the
// resulting length for UI feedback.
func (s *Store) Append(key string, attachments ...chat.Attachment) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryLocked(key)
	entry.Attachments = append(entry.Attachments, attachments...)
	if len(entry.Attachments) > MaxAttachments {
		entry.Attachments = entry.Attachments[:MaxAttachments]
	}
	return len(entry.Attachments)
}

// RemoveAt drops the attachment at index. An out-of-range index is an
// expected race (the UI may lag behind), not a fault: the sequence is left
// untouched. An unknown key is never allocated; removal has nothing to do.
func (s *Store) RemoveAt(key string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.staged[key]
	if !ok || index < 0 || index >= len(entry.Attachments) {
		return
	}
	entry.touched = time.Now()
	entry.Attachments = append(entry.Attachments[:index], entry.Attachments[index+1:]...)
}

// SetPersona records the persona selection for key only.
func (s *Store) SetPersona(key, personaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(key).PersonaID = personaID
}

// SetTemperature records the sampling temperature for key only.
func (s *Store) SetTemperature(key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(key).Temperature = &value
}

// SetReasoningConfig records the opaque reasoning configuration for key.
func (s *Store) SetReasoningConfig(key string, config map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(key).ReasoningConfig = config
}

// Clear resets all staged fields for key. The coordinator calls it when a
// send for the key completes successfully.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.staged, key)
}

// Snapshot returns a deep copy of the staged state for key, safe to hand to
// an asynchronous send while the user keeps editing. A read must not track
// the key: under eviction pressure, snapshotting fresh keys would otherwise
// push out real drafts.
func (s *Store) Snapshot(key string) StagedInput {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.staged[key]
	if !ok {
		return StagedInput{}
	}
	snapshot := StagedInput{PersonaID: entry.PersonaID}
	if len(entry.Attachments) > 0 {
		snapshot.Attachments = append([]chat.Attachment(nil), entry.Attachments...)
	}
	if entry.Temperature != nil {
		value := *entry.Temperature
		snapshot.Temperature = &value
	}
	if len(entry.ReasoningConfig) > 0 {
		snapshot.ReasoningConfig = make(map[string]any, len(entry.ReasoningConfig))
		for k, v := range entry.ReasoningConfig {
			snapshot.ReasoningConfig[k] = v
		}
	}
	return snapshot
}

// entryLocked lazily creates the staged entry for key and refreshes its
// recency stamp. Callers must hold s.mu.
func (s *Store) entryLocked(key string) *stagedEntry {
	entry, ok := s.staged[key]
	if !ok {
		if len(s.staged) >= maxTrackedKeys {
			s.evictOldestLocked()
		}
		entry = &stagedEntry{}
		s.staged[key] = entry
	}
	entry.touched = time.Now()
	return entry
}

func (s *Store) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range s.staged {
		if oldestKey == "" || entry.touched.Before(oldest) {
			oldestKey = key
			oldest = entry.touched
		}
	}
	if oldestKey != "" {
		delete(s.staged, oldestKey)
	}
}
