package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hvac-scout/internal/diagnosis"
	"hvac-scout/internal/llm"

	"github.com/google/uuid"
)

// ErrRateLimited is returned when a caller exceeds the per-IP diagnose rate.
var ErrRateLimited = errors.New("diagnose rate limit reached")

// UpstreamError wraps a completion-provider failure so the router can map it
// to a 500 with details.
type UpstreamError struct {
	Details string
	Err     error
}

func (e *UpstreamError) Error() string {
	return "completion provider failed: " + e.Details
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// DiagnoserService is the surface the router talks to; it exists so tests
// can swap in a fake.
type DiagnoserService interface {
	Diagnose(ctx context.Context, req DiagnoseRequest, ipHash, uaHash string) (diagnosis.DiagnosisResult, error)
	ResolveOffline(req DiagnoseRequest) diagnosis.DiagnosisResult
}

// Diagnoser runs live diagnoses through the completion provider and offline
// ones through the local resolver. Requests are independent: no dedup, no
// cross-request coordination.
type Diagnoser struct {
	cfg     ServerConfig
	store   Store
	client  *llm.Client
	obs     *Observability
	limiter *ipRateLimiter
}

func NewDiagnoser(cfg ServerConfig, store Store, client *llm.Client, obs *Observability) *Diagnoser {
	return &Diagnoser{
		cfg:     cfg,
		store:   store,
		client:  client,
		obs:     obs,
		limiter: newIPRateLimiter(cfg.Limits.DiagnoseRPM),
	}
}

func (d *Diagnoser) Diagnose(ctx context.Context, req DiagnoseRequest, ipHash, uaHash string) (diagnosis.DiagnosisResult, error) {
	if !d.limiter.Allow(ipHash) {
		d.obs.MarkRateLimited(ctx)
		_ = d.store.AppendAudit(AuditEvent{
			ActorType: "user",
			Action:    "diagnose.reject",
			Result:    "rate_limited",
			IPHash:    ipHash,
			UAHash:    uaHash,
		})
		return diagnosis.DiagnosisResult{}, ErrRateLimited
	}

	timeout := time.Duration(d.cfg.Completion.TimeoutSec) * time.Second
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	system, user := diagnosis.BuildPrompt(req.SystemType, req.SystemInfo, req.Symptoms)
	start := time.Now()
	resp, raw, err := d.client.CreateChatCompletion(callCtx, llm.ChatRequest{
		MaxTokens: d.cfg.Completion.MaxTokens,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		kind := "transport"
		if apiErr, ok := llm.IsAPIError(err); ok {
			kind = fmt.Sprintf("status_%d", apiErr.StatusCode)
		}
		d.obs.MarkUpstreamError(ctx, kind)
		_ = d.store.AppendAudit(AuditEvent{
			ActorType: "user",
			Action:    "diagnose.create",
			Result:    "upstream_error",
			IPHash:    ipHash,
			UAHash:    uaHash,
			Detail:    kind,
		})
		slog.Warn("completion request failed", "kind", kind, "error", err)
		return diagnosis.DiagnosisResult{}, &UpstreamError{Details: err.Error(), Err: err}
	}

	result := diagnosis.Normalize(resp.Content())
	cost := diagnosis.EstimateCost(result)
	result.CostEstimates = &cost

	entry := diagnosis.HistoryEntry{
		ID:         uuid.NewString(),
		Timestamp:  nowRFC3339(),
		SystemType: req.SystemType,
		SystemInfo: req.SystemInfo,
		Symptoms:   req.Symptoms,
		Result:     result,
	}
	if err := d.store.SaveDiagnostic(entry); err != nil {
		// the diagnosis is still good; history is best-effort
		slog.Warn("save diagnostic failed", "entry_id", entry.ID, "error", err)
	}
	_ = d.store.AppendAudit(AuditEvent{
		EntryID:   entry.ID,
		ActorType: "user",
		Action:    "diagnose.create",
		Result:    "ok",
		IPHash:    ipHash,
		UAHash:    uaHash,
		Detail:    fmt.Sprintf("system_type=%s duration_ms=%d", req.SystemType, raw.Duration.Milliseconds()),
	})
	d.obs.MarkDiagnose(ctx, "live", time.Since(start).Milliseconds())
	d.obs.MarkTokens(ctx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return result, nil
}

func (d *Diagnoser) ResolveOffline(req DiagnoseRequest) diagnosis.DiagnosisResult {
	history := d.store.ListDiagnostics(0)
	result := diagnosis.ResolveOffline(history, req.SystemType, req.Symptoms)
	d.obs.MarkDiagnose(context.Background(), string(result.Source), 0)
	return result
}

type ipRateLimiter struct {
	mu      sync.Mutex
	rpm     int
	records map[string][]time.Time
}

func newIPRateLimiter(rpm int) *ipRateLimiter {
	if rpm <= 0 {
		rpm = 10
	}
	return &ipRateLimiter{
		rpm:     rpm,
		records: map[string][]time.Time{},
	}
}

func (l *ipRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	now := time.Now()
	cutoff := now.Add(-1 * time.Minute)
	items := filterRecentTime(l.records[key], cutoff)
	if len(items) >= l.rpm {
		l.records[key] = items
		return false
	}
	items = append(items, now)
	l.records[key] = items
	return true
}

func filterRecentTime(items []time.Time, cutoff time.Time) []time.Time {
	if len(items) == 0 {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if item.After(cutoff) {
			out = append(out, item)
		}
	}
	return out
}

func hashString(input string) string {
	sum := sha256Sum(input)
	return sum[:16]
}

func sha256Sum(input string) string {
	hash := sha256.New()
	_, _ = hash.Write([]byte(input))
	return hex.EncodeToString(hash.Sum(nil))
}
