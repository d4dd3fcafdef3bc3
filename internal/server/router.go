package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"hvac-scout/internal/fieldservice"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type API struct {
	auth      *Auth
	store     Store
	diagnoser DiagnoserService
	field     *fieldservice.Client
	obs       *Observability
}

func NewAPI(auth *Auth, store Store, diagnoser DiagnoserService, field *fieldservice.Client, obs *Observability) *API {
	return &API{
		auth:      auth,
		store:     store,
		diagnoser: diagnoser,
		field:     field,
		obs:       obs,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)

	mux.HandleFunc("POST /api/auth/login", a.auth.HandleLogin)
	mux.HandleFunc("POST /api/auth/logout", a.auth.HandleLogout)
	mux.HandleFunc("GET /api/auth/me", a.auth.HandleMe)

	mux.HandleFunc("POST /api/diagnose", a.handleDiagnose)
	mux.HandleFunc("POST /api/diagnose/offline", a.handleDiagnoseOffline)

	mux.HandleFunc("GET /api/history", a.handleListHistory)
	mux.HandleFunc("GET /api/history/{id}", a.handleGetHistory)
	mux.Handle("DELETE /api/history/{id}", a.auth.Require(http.HandlerFunc(a.handleDeleteHistory)))

	mux.Handle("GET /api/metrics/overview", a.auth.Require(http.HandlerFunc(a.handleOverview)))
	mux.Handle("GET /api/audit", a.auth.Require(http.HandlerFunc(a.handleAudit)))

	mux.Handle("POST /api/fieldservice/customers", a.auth.Require(http.HandlerFunc(a.handleCreateCustomer)))
	mux.Handle("POST /api/fieldservice/properties", a.auth.Require(http.HandlerFunc(a.handleCreateProperty)))
	mux.Handle("POST /api/fieldservice/assets", a.auth.Require(http.HandlerFunc(a.handleCreateAsset)))
	mux.Handle("POST /api/fieldservice/jobs", a.auth.Require(http.HandlerFunc(a.handleCreateJob)))

	wrapped := otelhttp.NewHandler(mux, "diag-api-http")
	return withCORS(wrapped)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": nowRFC3339(),
	})
}

func (a *API) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("diag-api").Start(r.Context(), "diagnose.live")
	defer span.End()
	var req DiagnoseRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Symptoms) == "" {
		writeError(w, http.StatusBadRequest, "symptoms is required")
		return
	}
	span.SetAttributes(attribute.String("hvac.system_type", req.SystemType))
	ipHash, uaHash := actorHashes(r)
	result, err := a.diagnoser.Diagnose(ctx, req, ipHash, uaHash)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			writeErrorDetails(w, http.StatusInternalServerError, "diagnosis failed", upstream.Details)
			return
		}
		writeErrorDetails(w, http.StatusInternalServerError, "diagnosis failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleDiagnoseOffline(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("diag-api").Start(r.Context(), "diagnose.offline")
	defer span.End()
	var req DiagnoseRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Symptoms) == "" {
		writeError(w, http.StatusBadRequest, "symptoms is required")
		return
	}
	writeJSON(w, http.StatusOK, a.diagnoser.ResolveOffline(req))
}

func (a *API) handleListHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": a.store.ListDiagnostics(0),
	})
}

func (a *API) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing entry id")
		return
	}
	entry, ok := a.store.GetDiagnostic(id)
	if !ok {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing entry id")
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	if err := a.store.DeleteDiagnostic(id); err != nil {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	_ = a.store.AppendAudit(AuditEvent{
		EntryID:   id,
		ActorType: "user",
		ActorSub:  principal.Subject,
		Action:    "history.delete",
		Result:    "ok",
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.GetMetricsOverview())
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"audit": a.store.ListAudit(200),
	})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	a.proxyFieldService(w, r, "fieldservice.customer", a.field.CreateCustomer)
}

func (a *API) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	a.proxyFieldService(w, r, "fieldservice.property", a.field.CreateProperty)
}

func (a *API) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	a.proxyFieldService(w, r, "fieldservice.asset", a.field.CreateAsset)
}

func (a *API) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	a.proxyFieldService(w, r, "fieldservice.job", a.field.CreateJob)
}

func (a *API) proxyFieldService(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	create func(ctx context.Context, payload map[string]any) (fieldservice.Record, error),
) {
	if a.field == nil {
		writeError(w, http.StatusServiceUnavailable, "field service not configured")
		return
	}
	var payload map[string]any
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	record, err := create(r.Context(), payload)
	if err != nil {
		a.obs.MarkFieldService(r.Context(), action, "error")
		_ = a.store.AppendAudit(AuditEvent{
			ActorType: "user",
			ActorSub:  principal.Subject,
			Action:    action,
			Result:    "error",
			Detail:    err.Error(),
		})
		writeErrorDetails(w, http.StatusBadGateway, "field service request failed", err.Error())
		return
	}
	a.obs.MarkFieldService(r.Context(), action, "ok")
	_ = a.store.AppendAudit(AuditEvent{
		ActorType: "user",
		ActorSub:  principal.Subject,
		Action:    action,
		Result:    "ok",
		Detail:    record.ID,
	})
	writeJSON(w, http.StatusOK, record)
}

// withCORS answers preflight for every route and stamps the CORS headers on
// all responses.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorHashes(r *http.Request) (string, string) {
	ip, _, _ := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if ip == "" {
		ip = strings.TrimSpace(r.RemoteAddr)
	}
	return hashString(ip), hashString(r.UserAgent())
}
