package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hvac-scout/internal/diagnosis"
	"hvac-scout/internal/llm"
)

func newCompletionBackend(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status >= 400 {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"type": "server_error", "message": "backend unavailable"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-test",
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
			},
			"usage": map[string]any{"prompt_tokens": 80, "completion_tokens": 120, "total_tokens": 200},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestDiagnoser(t *testing.T, backend *httptest.Server, rpm int) (*Diagnoser, *MemoryFileStore) {
	t.Helper()
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	cfg := DefaultServerConfig()
	cfg.Limits.DiagnoseRPM = rpm
	client := llm.NewClient(llm.Config{BaseURL: backend.URL, APIKey: "test", Model: "gpt-4o-mini"})
	return NewDiagnoser(cfg, store, client, nil), store
}

func TestDiagnoseLiveSavesHistory(t *testing.T) {
	payload := `{
		"primaryIssue": "Refrigerant leak",
		"possibleIssues": [{"issue": "Leak at coil", "severity": "High", "description": "slow leak", "likelihood": 70}],
		"troubleshooting": ["Check pressures"],
		"requiredItems": ["Gauge set"],
		"repairComplexity": "Complex"
	}`
	backend := newCompletionBackend(t, http.StatusOK, payload)
	diagnoser, store := newTestDiagnoser(t, backend, 10)

	result, err := diagnoser.Diagnose(context.Background(), DiagnoseRequest{
		SystemType: "central-ac",
		Symptoms:   "warm air from vents",
	}, "ip", "ua")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if result.PrimaryIssue != "Refrigerant leak" {
		t.Fatalf("primary issue = %q", result.PrimaryIssue)
	}
	if result.CostEstimates == nil {
		t.Fatal("expected cost estimate attached to live result")
	}
	if result.CostEstimates.TotalEstimate != (diagnosis.CostRange{Min: 700, Max: 2500}) {
		t.Fatalf("total = %+v", result.CostEstimates.TotalEstimate)
	}
	if result.Source != "" {
		t.Fatalf("live result must not carry a source tag, got %q", result.Source)
	}

	entries := store.ListDiagnostics(0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	if entries[0].Symptoms != "warm air from vents" {
		t.Fatalf("entry = %+v", entries[0])
	}
}

func TestDiagnoseUpstreamFailure(t *testing.T) {
	backend := newCompletionBackend(t, http.StatusInternalServerError, "")
	diagnoser, store := newTestDiagnoser(t, backend, 10)

	_, err := diagnoser.Diagnose(context.Background(), DiagnoseRequest{
		SystemType: "furnace",
		Symptoms:   "no heat",
	}, "ip", "ua")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Details == "" {
		t.Fatal("expected details on upstream error")
	}
	if entries := store.ListDiagnostics(0); len(entries) != 0 {
		t.Fatalf("failed diagnosis must not be saved, got %d entries", len(entries))
	}
}

func TestDiagnoseMalformedContentFallsBackToDefaults(t *testing.T) {
	backend := newCompletionBackend(t, http.StatusOK, "the model rambled on without structure")
	diagnoser, _ := newTestDiagnoser(t, backend, 10)

	result, err := diagnoser.Diagnose(context.Background(), DiagnoseRequest{
		SystemType: "heat-pump",
		Symptoms:   "iced over",
	}, "ip", "ua")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if result.PrimaryIssue != "Could not determine primary issue" {
		t.Fatalf("primary issue = %q", result.PrimaryIssue)
	}
	if result.CostEstimates == nil {
		t.Fatal("defaults still get a cost estimate")
	}
}

func TestDiagnoseRateLimitPerIP(t *testing.T) {
	payload := `{"primaryIssue": "x", "possibleIssues": [], "troubleshooting": [], "requiredItems": [], "repairComplexity": "Easy"}`
	backend := newCompletionBackend(t, http.StatusOK, payload)
	diagnoser, _ := newTestDiagnoser(t, backend, 1)

	req := DiagnoseRequest{SystemType: "central-ac", Symptoms: "not cooling"}
	if _, err := diagnoser.Diagnose(context.Background(), req, "ip-a", "ua"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := diagnoser.Diagnose(context.Background(), req, "ip-a", "ua"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	// a different IP still has budget
	if _, err := diagnoser.Diagnose(context.Background(), req, "ip-b", "ua"); err != nil {
		t.Fatalf("other ip: %v", err)
	}
}

func TestResolveOfflinePrefersCachedHistory(t *testing.T) {
	backend := newCompletionBackend(t, http.StatusOK, "")
	diagnoser, store := newTestDiagnoser(t, backend, 10)

	_ = store.SaveDiagnostic(diagnosis.HistoryEntry{
		ID:         "past",
		Timestamp:  nowRFC3339(),
		SystemType: "furnace",
		Symptoms:   "no heat coming from vents at all",
		Result:     diagnosis.DiagnosisResult{PrimaryIssue: "Cracked ignitor"},
	})

	result := diagnoser.ResolveOffline(DiagnoseRequest{
		SystemType: "furnace",
		Symptoms:   "no heat",
	})
	if result.Source != diagnosis.SourceCached {
		t.Fatalf("source = %q", result.Source)
	}
	if result.PrimaryIssue != "Cracked ignitor" {
		t.Fatalf("primary issue = %q", result.PrimaryIssue)
	}
}
