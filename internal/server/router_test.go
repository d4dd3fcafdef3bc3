package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"

	"hvac-scout/internal/diagnosis"
	"hvac-scout/internal/fieldservice"
)

type fakeDiagnoser struct {
	err error
}

func (f fakeDiagnoser) Diagnose(ctx context.Context, req DiagnoseRequest, ipHash, uaHash string) (diagnosis.DiagnosisResult, error) {
	if f.err != nil {
		return diagnosis.DiagnosisResult{}, f.err
	}
	return diagnosis.DiagnosisResult{
		PrimaryIssue:     "Fake live diagnosis",
		PossibleIssues:   []diagnosis.Issue{{Issue: "X", Severity: diagnosis.SeverityLow}},
		Troubleshooting:  []string{"step"},
		RequiredItems:    []string{},
		RepairComplexity: diagnosis.ComplexityEasy,
	}, nil
}

func (f fakeDiagnoser) ResolveOffline(req DiagnoseRequest) diagnosis.DiagnosisResult {
	return diagnosis.ResolveOffline(nil, req.SystemType, req.Symptoms)
}

func newTestAPI(t *testing.T, fake DiagnoserService) *httptest.Server {
	t.Helper()
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	auth := NewAuth(nil, ServerConfig{
		Security: SecurityConfig{AdminToken: "secret-token"},
	})
	api := NewAPI(auth, store, fake, nil, nil)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestRouterHealthz(t *testing.T) {
	server := newTestAPI(t, fakeDiagnoser{})
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRouterDiagnoseMissingSymptoms(t *testing.T) {
	server := newTestAPI(t, fakeDiagnoser{})
	resp := postJSON(t, server.URL+"/api/diagnose", map[string]any{
		"systemType": "central-ac",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] == "" {
		t.Fatal("expected error message in body")
	}
}

func TestRouterDiagnoseSuccess(t *testing.T) {
	server := newTestAPI(t, fakeDiagnoser{})
	resp := postJSON(t, server.URL+"/api/diagnose", map[string]any{
		"systemType": "central-ac",
		"symptoms":   "not cooling",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result diagnosis.DiagnosisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.PrimaryIssue != "Fake live diagnosis" {
		t.Fatalf("result = %+v", result)
	}
	if result.Source != "" {
		t.Fatalf("live results must not carry a source tag, got %q", result.Source)
	}
}

func TestRouterDiagnoseUpstreamFailure(t *testing.T) {
	server := newTestAPI(t, fakeDiagnoser{err: &UpstreamError{Details: "provider timeout"}})
	resp := postJSON(t, server.URL+"/api/diagnose", map[string]any{
		"systemType": "central-ac",
		"symptoms":   "not cooling",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["details"] != "provider timeout" {
		t.Fatalf("body = %v", body)
	}
}

func TestRouterDiagnoseRateLimited(t *testing.T) {
	server := newTestAPI(t, fakeDiagnoser{err: ErrRateLimited})
	resp := postJSON(t, server.URL+"/api/diagnose", map[string]any{
		"symptoms": "not cooling",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestRouterDiagnoseOffline(t *testing.T) {
	server := newTestAPI(t, fakeDiagnoser{err: errors.New("should not be used")})
	resp := postJSON(t, server.URL+"/api/diagnose/offline", map[string]any{
		"systemType": "central-ac",
		"symptoms":   "system is not cooling at all",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result diagnosis.DiagnosisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Source != diagnosis.SourcePredefined {
		t.Fatalf("source = %q", result.Source)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	server := newTestAPI(t, fakeDiagnoser{})
	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/api/diagnose", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	for _, header := range []string{
		"Access-Control-Allow-Origin",
		"Access-Control-Allow-Headers",
		"Access-Control-Allow-Methods",
	} {
		if resp.Header.Get(header) == "" {
			t.Fatalf("missing %s on preflight response", header)
		}
	}
}

func TestRouterFieldServiceProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"customer_id": "cust-42"},
		})
	}))
	t.Cleanup(upstream.Close)

	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore: %v", err)
	}
	auth := NewAuth(nil, ServerConfig{
		Security: SecurityConfig{AdminToken: "secret-token"},
	})
	field := fieldservice.NewClient(fieldservice.Config{BaseURL: upstream.URL})
	calls, _ := otel.Meter("router-test").Int64Counter("hvac_fieldservice_total")
	obs := &Observability{FieldServiceCalls: calls}
	api := NewAPI(auth, store, fakeDiagnoser{}, field, obs)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/fieldservice/customers",
		bytes.NewReader([]byte(`{"name":"Jo Doe"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", "secret-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST customers: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var record fieldservice.Record
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.ID != "cust-42" {
		t.Fatalf("record ID = %q", record.ID)
	}

	audit := store.ListAudit(10)
	if len(audit) != 1 || audit[0].Action != "fieldservice.customer" || audit[0].Result != "ok" {
		t.Fatalf("audit = %+v", audit)
	}
}

func TestRouterHistoryDeleteRequiresAuth(t *testing.T) {
	server := newTestAPI(t, fakeDiagnoser{})
	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/history/some-id", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	req2, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/history/some-id", nil)
	req2.Header.Set("X-Admin-Token", "secret-token")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("DELETE with token: %v", err)
	}
	resp2.Body.Close()
	// entry does not exist, so authenticated delete reports not found
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp2.StatusCode)
	}
}
