// Package v1 provides the status, version record and manual reconcile endpoints.
package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/manifest-sync/internal/api/common"
	"github.com/stacklok/manifest-sync/internal/manifest"
	"github.com/stacklok/manifest-sync/internal/status"
	"github.com/stacklok/manifest-sync/internal/store"
	"github.com/stacklok/manifest-sync/internal/sync"
	"github.com/stacklok/manifest-sync/internal/sync/coordinator"
)

// PassRunner runs manual passes and reports the latest pass status
type PassRunner interface {
	Trigger(ctx context.Context) (*sync.Result, error)
	Status() status.PassStatus
}

// RecordLister reads version records
type RecordLister interface {
	Get(ctx context.Context, repoKey string) (*store.Record, error)
	List(ctx context.Context) ([]store.Record, error)
}

// VersionsResponse lists the version records
type VersionsResponse struct {
	Records []store.Record `json:"records"`
	Total   int            `json:"total"`
}

// ReconcileResponse is returned after a manual pass
type ReconcileResponse struct {
	// Success reports whether the pass completed without a pass level failure
	Success bool `json:"success"`

	// Reason is the failure reason when Success is false
	Reason string `json:"reason,omitempty"`

	// Message describes the failure when Success is false
	Message string `json:"message,omitempty"`

	// Result is the pass outcome. It is omitted when the pass failed before reconciling.
	Result *sync.Result `json:"result,omitempty"`
}

// Routes holds the dependencies of the v1 handlers
type Routes struct {
	passes  PassRunner
	records RecordLister
}

// NewRoutes creates a new Routes instance
func NewRoutes(passes PassRunner, records RecordLister) *Routes {
	return &Routes{
		passes:  passes,
		records: records,
	}
}

// Router creates a new router for the v1 API
func Router(passes PassRunner, records RecordLister) http.Handler {
	routes := NewRoutes(passes, records)

	r := chi.NewRouter()
	r.Get("/status", routes.getStatus)
	r.Get("/versions", routes.listVersions)
	r.Get("/versions/{workspace}/{repoSlug}", routes.getVersion)
	r.Post("/reconcile", routes.reconcile)

	return r
}

// getStatus handles GET /v1/status
func (rr *Routes) getStatus(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, rr.passes.Status(), http.StatusOK)
}

// listVersions handles GET /v1/versions
func (rr *Routes) listVersions(w http.ResponseWriter, r *http.Request) {
	records, err := rr.records.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list version records", "error", err)
		common.WriteErrorResponse(w, "Failed to list version records", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.Record{}
	}

	common.WriteJSONResponse(w, VersionsResponse{Records: records, Total: len(records)}, http.StatusOK)
}

// getVersion handles GET /v1/versions/{workspace}/{repoSlug}
func (rr *Routes) getVersion(w http.ResponseWriter, r *http.Request) {
	repoKey := manifest.RepoKey(chi.URLParam(r, "workspace"), chi.URLParam(r, "repoSlug"))

	record, err := rr.records.Get(r.Context(), repoKey)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to get version record", "repo", repoKey, "error", err)
		common.WriteErrorResponse(w, "Failed to get version record", http.StatusInternalServerError)
		return
	}
	if record == nil {
		common.WriteErrorResponse(w, "No version record for "+repoKey, http.StatusNotFound)
		return
	}

	common.WriteJSONResponse(w, record, http.StatusOK)
}

// reconcile handles POST /v1/reconcile
func (rr *Routes) reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := rr.passes.Trigger(r.Context())

	var syncErr *sync.Error
	switch {
	case err == nil:
		common.WriteJSONResponse(w, ReconcileResponse{Success: true, Result: result}, http.StatusAccepted)
	case errors.Is(err, coordinator.ErrPassInProgress):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.As(err, &syncErr):
		common.WriteJSONResponse(w, ReconcileResponse{
			Success: false,
			Reason:  syncErr.Reason,
			Message: syncErr.Message,
			Result:  result,
		}, http.StatusAccepted)
	default:
		slog.ErrorContext(r.Context(), "Manual reconciliation failed", "error", err)
		common.WriteErrorResponse(w, "Failed to run reconciliation pass", http.StatusInternalServerError)
	}
}
