package server

import "time"

type Principal struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// DiagnoseRequest is the body of POST /api/diagnose and its offline
// counterpart. SystemInfo is an opaque key/value bag (equipment details,
// photo-analysis output) forwarded to the completion provider.
type DiagnoseRequest struct {
	SystemType string         `json:"systemType"`
	SystemInfo map[string]any `json:"systemInfo,omitempty"`
	Symptoms   string         `json:"symptoms"`
}

type AuditEvent struct {
	Timestamp string `json:"timestamp"`
	EntryID   string `json:"entry_id,omitempty"`
	ActorType string `json:"actor_type"`
	ActorSub  string `json:"actor_sub,omitempty"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	IPHash    string `json:"ip_hash,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type MetricsOverview struct {
	GeneratedAt      string `json:"generated_at"`
	TotalDiagnostics int    `json:"total_diagnostics"`
	LiveDiagnostics  int    `json:"live_diagnostics"`
	CachedResults    int    `json:"cached_results"`
	PredefinedHits   int    `json:"predefined_hits"`
	GenericFallbacks int    `json:"generic_fallbacks"`
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
