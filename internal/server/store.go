package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"hvac-scout/internal/diagnosis"
)

type Store interface {
	SaveDiagnostic(entry diagnosis.HistoryEntry) error
	GetDiagnostic(id string) (diagnosis.HistoryEntry, bool)
	// ListDiagnostics returns entries in storage order, oldest first. The
	// offline resolver depends on this ordering for its cache scan.
	ListDiagnostics(limit int) []diagnosis.HistoryEntry
	DeleteDiagnostic(id string) error
	AppendAudit(event AuditEvent) error
	ListAudit(limit int) []AuditEvent
	GetMetricsOverview() MetricsOverview
}

// MemoryFileStore keeps history in memory with an optional JSON snapshot on
// disk. With an empty path it is purely in-memory (tests, CLI dry runs).
type MemoryFileStore struct {
	mu      sync.RWMutex
	path    string
	entries []diagnosis.HistoryEntry
	audit   []AuditEvent
}

func NewMemoryFileStore(path string) (*MemoryFileStore, error) {
	store := &MemoryFileStore{
		path:    path,
		entries: []diagnosis.HistoryEntry{},
		audit:   []AuditEvent{},
	}
	if strings.TrimSpace(path) == "" {
		return store, nil
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MemoryFileStore) SaveDiagnostic(entry diagnosis.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if len(s.entries) > diagnosis.HistoryCap {
		s.entries = s.entries[len(s.entries)-diagnosis.HistoryCap:]
	}
	return s.persistLocked()
}

func (s *MemoryFileStore) GetDiagnostic(id string) (diagnosis.HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return diagnosis.HistoryEntry{}, false
}

func (s *MemoryFileStore) ListDiagnostics(limit int) []diagnosis.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]diagnosis.HistoryEntry, len(s.entries))
	copy(out, s.entries)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *MemoryFileStore) DeleteDiagnostic(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.entries {
		if entry.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return s.persistLocked()
		}
	}
	return fmt.Errorf("diagnostic not found: %s", id)
}

func (s *MemoryFileStore) AppendAudit(event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(event.Timestamp) == "" {
		event.Timestamp = nowRFC3339()
	}
	s.audit = append(s.audit, event)
	if len(s.audit) > 5000 {
		s.audit = s.audit[len(s.audit)-5000:]
	}
	return s.persistLocked()
}

func (s *MemoryFileStore) ListAudit(limit int) []AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.audit) == 0 {
		return []AuditEvent{}
	}
	out := make([]AuditEvent, len(s.audit))
	copy(out, s.audit)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFileStore) GetMetricsOverview() MetricsOverview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	overview := MetricsOverview{
		GeneratedAt: nowRFC3339(),
	}
	for _, entry := range s.entries {
		overview.TotalDiagnostics++
		switch entry.Result.Source {
		case diagnosis.SourceCached:
			overview.CachedResults++
		case diagnosis.SourcePredefined:
			overview.PredefinedHits++
		case diagnosis.SourceGeneric:
			overview.GenericFallbacks++
		default:
			overview.LiveDiagnostics++
		}
	}
	return overview
}

func (s *MemoryFileStore) load() error {
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read store snapshot: %w", err)
	}
	var snapshot struct {
		Entries []diagnosis.HistoryEntry `json:"entries"`
		Audit   []AuditEvent             `json:"audit"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode store snapshot: %w", err)
	}
	if snapshot.Entries != nil {
		s.entries = snapshot.Entries
		// an oversized snapshot (older build, hand edit) must not bypass
		// the history cap
		if len(s.entries) > diagnosis.HistoryCap {
			s.entries = s.entries[len(s.entries)-diagnosis.HistoryCap:]
		}
	}
	if snapshot.Audit != nil {
		s.audit = snapshot.Audit
	}
	return nil
}

func (s *MemoryFileStore) persistLocked() error {
	if strings.TrimSpace(s.path) == "" {
		return nil
	}
	snapshot := struct {
		Entries []diagnosis.HistoryEntry `json:"entries"`
		Audit   []AuditEvent             `json:"audit"`
	}{
		Entries: s.entries,
		Audit:   s.audit,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write store temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace store snapshot: %w", err)
	}
	return nil
}
