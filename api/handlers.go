/*
handlers.go - HTTP API handlers for the budget engine

PURPOSE:
  Exposes stage snapshots, planned/actual monthly values, progress events
  and the S-curve via REST API. Handles HTTP request/response and JSON
  serialization, and delegates to the budget package.

ENDPOINTS:
  Stages:
    GET    /api/stages                        List stages with derived fields
    PUT    /api/stages/{id}                   Upsert a stage snapshot
    DELETE /api/stages/{id}                   Remove a stage and its planned rows
    POST   /api/stages/import                 Import a budget document
    GET    /api/stages/{id}/monthly-values    Stored rows of one stage
    POST   /api/stages/{id}/recompute         Immediate planned recompute
    POST   /api/stages/{id}/progress          Record a progress event

  Progress:
    POST   /api/progress/{id}/reverse         Reverse an event

  Curve:
    GET    /api/scurve                        Planned vs actual S-curve

  Admin:
    POST   /api/admin/sweep                   Full recompute now
    GET    /api/admin/sweeps                  Recent sweep runs

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: snapshot, monthly value, event and sweep persistence
  - Distributor / Aggregator: the recompute engines
  - Coalescer: debounces stage edits into one planned recompute
  - Notifier: optional AMQP publisher of actual recompute notices

RECOMPUTE TRIGGERS:
  A stage upsert schedules a coalesced recompute of the stage, of its new
  parent (which stops being a leaf) and of its previous parent (which may
  become one). An explicit recompute cancels the pending task and runs now.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, unknown enum tags
  - 404: Stage or event not found
  - 409: Conflict (duplicate event, already reversed)
  - 500: Store failures

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/factory"
	"github.com/warp/budget-engine/generic"
	"github.com/warp/budget-engine/messaging"
	"golang.org/x/sync/singleflight"
)

// maxImportBytes bounds bulk document uploads.
const maxImportBytes = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the API persists. Both store/memory and store/sqlite
// implement it.
type Store interface {
	budget.StageStore
	budget.TxMonthlyValueStore
	budget.EventStore
	budget.SweepLog
	Reset(ctx context.Context) error
}

type Options struct {
	// Debounce is the per-stage quiescence window before a planned recompute.
	Debounce time.Duration
	// Notifier receives one notice per recomputed actual month. Optional.
	Notifier messaging.Notifier
	Logger   *slog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       Store
	Factory     *factory.BudgetFactory
	Distributor *budget.Distributor
	Aggregator  *budget.Aggregator
	Sweeper     *Sweeper

	coalescer *budget.Coalescer
	notifier  messaging.Notifier
	logger    *slog.Logger
	curves    singleflight.Group

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the engines around store. Close stops pending recomputes.
func NewHandler(store Store, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		Store:       store,
		Factory:     factory.NewBudgetFactory(),
		Distributor: budget.NewDistributor(store, store, logger),
		Aggregator:  budget.NewAggregator(store, store, store, logger),
		notifier:    opts.Notifier,
		logger:      logger.With("component", "api"),
	}
	h.Sweeper = NewSweeper(h.Distributor, h.Aggregator, store, logger)
	h.coalescer = budget.NewCoalescer(opts.Debounce, h.recomputePlanned, logger)
	return h
}

func (h *Handler) recomputePlanned(ctx context.Context, id budget.StageID) error {
	_, err := h.Distributor.Recompute(ctx, id)
	if errors.Is(err, generic.ErrStageNotFound) {
		// Deleted inside the window; its rows were removed on delete.
		return nil
	}
	return err
}

// Flush runs every pending recompute now.
func (h *Handler) Flush(ctx context.Context) error {
	return h.coalescer.Flush(ctx)
}

// Close cancels pending recomputes and waits for running ones.
func (h *Handler) Close() {
	h.coalescer.Stop()
}

// =============================================================================
// STAGE HANDLERS
// =============================================================================

// ListStages returns all stages with leaf flag and effective range/total.
// GET /api/stages
func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request) {
	stages, err := h.Store.ListStages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list stages", err)
		return
	}
	hier := budget.NewHierarchy(stages)
	dtos := make([]StageDTO, len(stages))
	for i, s := range stages {
		dtos[i] = toStageDTO(s, hier)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutStage upserts a stage snapshot and schedules recomputes.
// PUT /api/stages/{id}
func (h *Handler) PutStage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req factory.StageJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = id

	stage, err := h.Factory.StageFromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stage", err)
		return
	}

	ctx := r.Context()
	previous, err := h.Store.GetStage(ctx, stage.ID)
	existed := err == nil
	if err != nil && !errors.Is(err, generic.ErrStageNotFound) {
		writeDomainError(w, "Failed to load stage", err)
		return
	}

	stage.UpdatedAt = time.Now().UTC()
	if err := h.Store.SaveStage(ctx, stage); err != nil {
		writeDomainError(w, "Failed to save stage", err)
		return
	}

	h.coalescer.Schedule(stage.ID)
	if stage.HasParent() {
		h.coalescer.Schedule(*stage.ParentID)
	}
	if existed && previous.HasParent() && (!stage.HasParent() || *previous.ParentID != *stage.ParentID) {
		h.coalescer.Schedule(*previous.ParentID)
	}

	status := http.StatusOK
	if !existed {
		status = http.StatusCreated
	}
	writeJSON(w, status, factory.StageToJSON(stage))
}

// DeleteStage removes a stage snapshot and its planned rows.
// DELETE /api/stages/{id}
func (h *Handler) DeleteStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := budget.StageID(chi.URLParam(r, "id"))

	stage, err := h.Store.GetStage(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to load stage", err)
		return
	}

	h.coalescer.Cancel(id)
	if err := h.Store.DeleteStage(ctx, id); err != nil {
		writeDomainError(w, "Failed to delete stage", err)
		return
	}
	if err := h.Distributor.Forget(ctx, id); err != nil {
		writeDomainError(w, "Failed to remove planned rows", err)
		return
	}
	if stage.HasParent() {
		h.coalescer.Schedule(*stage.ParentID)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetMonthlyValues returns the stored rows of one stage.
// GET /api/stages/{id}/monthly-values
func (h *Handler) GetMonthlyValues(w http.ResponseWriter, r *http.Request) {
	id := budget.StageID(chi.URLParam(r, "id"))
	rows, err := h.Store.ListStageValues(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list monthly values", err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthlyValueDTOs(rows))
}

// RecomputeStage runs the planned recompute now, bypassing the debounce.
// POST /api/stages/{id}/recompute
func (h *Handler) RecomputeStage(w http.ResponseWriter, r *http.Request) {
	id := budget.StageID(chi.URLParam(r, "id"))
	h.coalescer.Cancel(id)

	res, err := h.Distributor.Recompute(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to recompute stage", err)
		return
	}
	writeJSON(w, http.StatusOK, DistributionDTO{
		StageID: string(res.StageID),
		Cleared: res.Cleared,
		Rows:    toMonthlyValueDTOs(res.Rows),
	})
}

// ImportBudget saves every stage and event of a document, then sweeps.
// POST /api/stages/import
func (h *Handler) ImportBudget(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}
	doc, err := h.Factory.ParseBudget(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid budget document", err)
		return
	}

	resp, err := h.ImportDocument(r.Context(), doc)
	if err != nil {
		writeDomainError(w, "Failed to import budget", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ImportDocument saves a parsed document, records its events and sweeps.
func (h *Handler) ImportDocument(ctx context.Context, doc *factory.Budget) (ImportResponse, error) {
	now := time.Now().UTC()
	for _, s := range doc.Stages {
		s.UpdatedAt = now
		if err := h.Store.SaveStage(ctx, s); err != nil {
			return ImportResponse{}, fmt.Errorf("stage %s: %w", s.ID, err)
		}
		h.coalescer.Cancel(s.ID)
	}
	for _, e := range doc.Events {
		if _, _, err := h.Aggregator.Record(ctx, e); err != nil {
			return ImportResponse{}, fmt.Errorf("progress for stage %s: %w", e.StageID, err)
		}
	}

	run, err := h.Sweeper.Run(ctx, TriggerImport)
	if err != nil {
		return ImportResponse{}, err
	}
	return ImportResponse{
		Name:   doc.Name,
		Stages: len(doc.Stages),
		Events: len(doc.Events),
		Sweep:  ToSweepRunDTO(run),
	}, nil
}

// =============================================================================
// PROGRESS HANDLERS
// =============================================================================

// RecordProgress appends a progress event and recomputes its month.
// POST /api/stages/{id}/progress
func (h *Handler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	var req factory.EventJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.StageID = chi.URLParam(r, "id")

	event, err := h.Factory.EventFromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid progress event", err)
		return
	}

	stored, results, err := h.Aggregator.Record(r.Context(), event)
	if err != nil {
		writeDomainError(w, "Failed to record progress", err)
		return
	}
	h.notify(r.Context(), stored.ID, results)
	writeJSON(w, http.StatusCreated, ProgressResponse{
		Event:   toProgressEventDTO(stored),
		Actuals: toActualResultDTOs(results),
	})
}

// ReverseProgress appends a reversal of an event.
// POST /api/progress/{id}/reverse
func (h *Handler) ReverseProgress(w http.ResponseWriter, r *http.Request) {
	var req ReverseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	stored, results, err := h.Aggregator.Reverse(r.Context(), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		writeDomainError(w, "Failed to reverse progress", err)
		return
	}
	h.notify(r.Context(), stored.ID, results)
	writeJSON(w, http.StatusCreated, ProgressResponse{
		Event:   toProgressEventDTO(stored),
		Actuals: toActualResultDTOs(results),
	})
}

func (h *Handler) notify(ctx context.Context, eventID string, results []budget.ActualResult) {
	if h.notifier == nil {
		return
	}
	for _, res := range results {
		if err := h.notifier.PublishRecompute(ctx, messaging.NewRecomputeNotice(eventID, res)); err != nil {
			h.logger.WarnContext(ctx, "failed to publish recompute notice",
				"stage_id", res.StageID, "month_key", res.Month.Key(), "error", err)
		}
	}
}

// =============================================================================
// S-CURVE
// =============================================================================

// GetSCurve builds the curve from the current store contents. Concurrent
// requests share one build. ?flush=true runs pending recomputes first.
// GET /api/scurve
func (h *Handler) GetSCurve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.URL.Query().Get("flush") == "true" {
		if err := h.coalescer.Flush(ctx); err != nil {
			writeDomainError(w, "Failed to flush pending recomputes", err)
			return
		}
	}

	curve, err := h.sharedSCurve(ctx)
	if err != nil {
		writeDomainError(w, "Failed to build S-curve", err)
		return
	}
	writeJSON(w, http.StatusOK, toSCurveDTO(curve))
}

// sharedSCurve joins concurrent builds. The build outlives the caller that
// started it, since other callers may be waiting on the same result.
func (h *Handler) sharedSCurve(ctx context.Context) (budget.SCurve, error) {
	ctx = context.WithoutCancel(ctx)
	v, err, _ := h.curves.Do("scurve", func() (any, error) {
		return h.buildSCurve(ctx)
	})
	if err != nil {
		return budget.SCurve{}, err
	}
	return v.(budget.SCurve), nil
}

func (h *Handler) buildSCurve(ctx context.Context) (budget.SCurve, error) {
	stages, err := h.Store.ListStages(ctx)
	if err != nil {
		return budget.SCurve{}, &generic.StoreError{Op: "list_stages", Err: err}
	}
	values, err := h.Store.ListMonthlyValues(ctx)
	if err != nil {
		return budget.SCurve{}, &generic.StoreError{Op: "list_monthly_values", Err: err}
	}
	return budget.BuildSCurve(stages, values, h.logger), nil
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerSweep runs a full recompute now.
// POST /api/admin/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	run, err := h.Sweeper.Run(r.Context(), TriggerManual)
	if err != nil {
		writeDomainError(w, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ToSweepRunDTO(run))
}

// ListSweepRuns returns recent sweeps, newest first. ?limit= defaults to 20.
// GET /api/admin/sweeps
func (h *Handler) ListSweepRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListSweepRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sweep runs", err)
		return
	}
	dtos := make([]SweepRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = ToSweepRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health reports liveness, pinging the store when it supports it.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error's category.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

var errUnknownScenario = errors.New("scenario not found")

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err), errors.Is(err, errUnknownScenario):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
