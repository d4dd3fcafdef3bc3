package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"hvac-scout/internal/diagnosis"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) SaveDiagnostic(entry diagnosis.HistoryEntry) error {
	info, _ := json.Marshal(entry.SystemInfo)
	result, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339, entry.Timestamp)
	if err != nil {
		createdAt = time.Now().UTC()
	}
	tx, err := s.pool.Begin(context.Background())
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())

	_, err = tx.Exec(context.Background(),
		`INSERT INTO diagnostics (id, created_at, system_type, system_info, symptoms, result)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.ID, createdAt, entry.SystemType, info, entry.Symptoms, result)
	if err != nil {
		return err
	}
	// enforce the history cap: drop oldest rows beyond it
	_, err = tx.Exec(context.Background(),
		`DELETE FROM diagnostics WHERE id IN (
			SELECT id FROM diagnostics ORDER BY created_at DESC, id OFFSET $1
		 )`, diagnosis.HistoryCap)
	if err != nil {
		return err
	}
	return tx.Commit(context.Background())
}

func (s *PgStore) GetDiagnostic(id string) (diagnosis.HistoryEntry, bool) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT id, created_at, system_type, system_info, symptoms, result
		 FROM diagnostics WHERE id=$1`, id)
	entry, err := scanHistoryEntry(row)
	if err != nil {
		return diagnosis.HistoryEntry{}, false
	}
	return entry, true
}

func (s *PgStore) ListDiagnostics(limit int) []diagnosis.HistoryEntry {
	if limit <= 0 {
		limit = diagnosis.HistoryCap
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, created_at, system_type, system_info, symptoms, result
		 FROM diagnostics ORDER BY created_at ASC, id LIMIT $1`, limit)
	if err != nil {
		return []diagnosis.HistoryEntry{}
	}
	defer rows.Close()
	var out []diagnosis.HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	if out == nil {
		return []diagnosis.HistoryEntry{}
	}
	return out
}

func (s *PgStore) DeleteDiagnostic(id string) error {
	tag, err := s.pool.Exec(context.Background(),
		`DELETE FROM diagnostics WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("diagnostic not found: %s", id)
	}
	return nil
}

func (s *PgStore) AppendAudit(event AuditEvent) error {
	if strings.TrimSpace(event.Timestamp) == "" {
		event.Timestamp = nowRFC3339()
	}
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO audit_events (timestamp, entry_id, actor_type, actor_sub, action, result, ip_hash, ua_hash, detail)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		event.Timestamp, nullStr(event.EntryID), event.ActorType, nullStr(event.ActorSub),
		event.Action, event.Result, nullStr(event.IPHash), nullStr(event.UAHash), nullStr(event.Detail))
	return err
}

func (s *PgStore) ListAudit(limit int) []AuditEvent {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT timestamp, entry_id, actor_type, actor_sub, action, result, ip_hash, ua_hash, detail
		 FROM audit_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return []AuditEvent{}
	}
	defer rows.Close()
	var out []AuditEvent
	for rows.Next() {
		var a AuditEvent
		var ts time.Time
		var entryID, actorSub, ipHash, uaHash, detail *string
		if err := rows.Scan(&ts, &entryID, &a.ActorType, &actorSub, &a.Action, &a.Result, &ipHash, &uaHash, &detail); err != nil {
			continue
		}
		a.Timestamp = ts.UTC().Format(time.RFC3339)
		a.EntryID = deref(entryID)
		a.ActorSub = deref(actorSub)
		a.IPHash = deref(ipHash)
		a.UAHash = deref(uaHash)
		a.Detail = deref(detail)
		out = append(out, a)
	}
	if out == nil {
		return []AuditEvent{}
	}
	return out
}

func (s *PgStore) GetMetricsOverview() MetricsOverview {
	overview := MetricsOverview{GeneratedAt: nowRFC3339()}
	_ = s.pool.QueryRow(context.Background(),
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE result->>'source' IS NULL),
			COUNT(*) FILTER (WHERE result->>'source'='cached'),
			COUNT(*) FILTER (WHERE result->>'source'='predefined'),
			COUNT(*) FILTER (WHERE result->>'source'='generic')
		 FROM diagnostics`).Scan(
		&overview.TotalDiagnostics, &overview.LiveDiagnostics,
		&overview.CachedResults, &overview.PredefinedHits, &overview.GenericFallbacks)
	return overview
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanHistoryEntry(row scannable) (diagnosis.HistoryEntry, error) {
	var entry diagnosis.HistoryEntry
	var ts time.Time
	var infoJSON, resultJSON []byte
	if err := row.Scan(&entry.ID, &ts, &entry.SystemType, &infoJSON, &entry.Symptoms, &resultJSON); err != nil {
		return diagnosis.HistoryEntry{}, err
	}
	entry.Timestamp = ts.UTC().Format(time.RFC3339)
	if len(infoJSON) > 0 {
		_ = json.Unmarshal(infoJSON, &entry.SystemInfo)
	}
	if err := json.Unmarshal(resultJSON, &entry.Result); err != nil {
		return diagnosis.HistoryEntry{}, err
	}
	return entry, nil
}

func nullStr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ensure PgStore implements Store at compile time.
var _ Store = (*PgStore)(nil)
