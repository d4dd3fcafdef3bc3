package fieldservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractID(t *testing.T) {
	cases := []struct {
		name string
		body string
		keys []string
		want string
	}{
		{"top level id", `{"id": "cust_123"}`, []string{"customerId"}, "cust_123"},
		{"preferred key wins", `{"id": "generic", "customerId": "cust_9"}`, []string{"customerId"}, "cust_9"},
		{"numeric id", `{"id": 42}`, nil, "42"},
		{"nested data", `{"data": {"id": "job_7"}}`, []string{"jobId"}, "job_7"},
		{"nested result", `{"result": {"jobId": "job_8"}}`, []string{"jobId"}, "job_8"},
		{"nothing found", `{"status": "created"}`, []string{"assetId"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body map[string]any
			if err := json.Unmarshal([]byte(tc.body), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := ExtractID(body, tc.keys...); got != tc.want {
				t.Fatalf("ExtractID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCreateCustomer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customers" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["name"] != "Ada" {
			t.Errorf("payload passed through wrong: %v", payload)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data": {"customer_id": "cust_55", "name": "Ada"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	record, err := client.CreateCustomer(context.Background(), map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if record.ID != "cust_55" {
		t.Fatalf("record ID = %q", record.ID)
	}
}

func TestCreateJobUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if _, err := client.CreateJob(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}
