/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built budgets that populate the store with realistic data
	for demos. Each scenario is a budget document in the same JSON form the
	import endpoint accepts, so loading one exercises the whole pipeline:
	factory validation, progress recording, planned distribution and a
	sweep.

AVAILABLE SCENARIOS:

	small-house:  Nested stages, a fee, quantity-priced progress
	late-project: Actuals behind plan, a reversal and a cross-month rectification

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Parse the scenario document via factory
 3. Save stages, record progress events
 4. Sweep to produce planned and actual rows

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-house"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add the document to scenarioDocuments

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ImportDocument
  - factory/budget.go: Document format
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-house",
		Name:        "Small House",
		Description: "Two-level budget with a permit fee; progress partly priced by quantity",
	},
	{
		ID:          "late-project",
		Name:        "Late Project",
		Description: "Actuals trailing the plan, with a reversed entry and a rectification of an earlier month",
	},
}

var scenarioDocuments = map[string]string{
	"small-house": `{
  "name": "Small house",
  "stages": [
    {"id": "1", "code": "1", "name": "Structure", "kind": "service"},
    {"id": "1.1", "parent_id": "1", "code": "1.1", "name": "Foundations", "kind": "material",
     "start": "2024-01-15", "end": "2024-03-10", "total": "10000.00", "unit_price": "95.00"},
    {"id": "1.2", "parent_id": "1", "code": "1.2", "name": "Walls", "kind": "labor",
     "start": "2024-03-01", "end": "2024-05-31", "total": "18000.00"},
    {"id": "2", "code": "2", "name": "Building permit", "kind": "fee",
     "start": "2024-01-05", "total": "800.00"},
    {"id": "3", "code": "3", "name": "Finishes", "kind": "service"},
    {"id": "3.1", "parent_id": "3", "code": "3.1", "name": "Painting", "kind": "labor",
     "start": "2024-06-01", "end": "2024-06-30", "total": "3000.00"}
  ],
  "progress": [
    {"id": "sh-1", "stage_id": "1.1", "date": "2024-01-31", "type": "inclusion", "amount": "3000.00"},
    {"id": "sh-2", "stage_id": "1.1", "date": "2024-02-20", "type": "inclusion", "amount": "4000.00"},
    {"id": "sh-3", "stage_id": "1.1", "date": "2024-03-05", "type": "inclusion", "quantity": "30", "note": "m3 poured"},
    {"id": "sh-4", "stage_id": "2", "date": "2024-01-05", "type": "inclusion", "amount": "800.00"},
    {"id": "sh-5", "stage_id": "1.2", "date": "2024-03-28", "type": "inclusion", "amount": "5000.00"}
  ]
}`,
	"late-project": `{
  "name": "Late project",
  "stages": [
    {"id": "ep", "code": "01", "name": "Earthworks", "kind": "equipment",
     "start": "2024-02-01", "end": "2024-04-30", "total": "12000.00"},
    {"id": "cc", "code": "02", "name": "Concrete", "kind": "material",
     "start": "2024-04-01", "end": "2024-07-31", "total": "40000.00", "unit_price": "150.00"},
    {"id": "df", "code": "03", "name": "Design fee", "kind": "fee",
     "start": "2024-01-10", "total": "2500.00"}
  ],
  "progress": [
    {"id": "lp-1", "stage_id": "df", "date": "2024-01-10", "type": "inclusion", "amount": "2500.00"},
    {"id": "lp-2", "stage_id": "ep", "date": "2024-02-28", "type": "inclusion", "amount": "2000.00"},
    {"id": "lp-3", "stage_id": "ep", "date": "2024-03-31", "type": "inclusion", "amount": "1500.00"},
    {"id": "lp-4", "stage_id": "ep", "date": "2024-03-15", "type": "inclusion", "amount": "9000.00", "note": "typed an extra zero"},
    {"stage_id": "ep", "date": "2024-03-15", "type": "reversal", "reference_id": "lp-4", "note": "entry error"},
    {"id": "lp-5", "stage_id": "ep", "date": "2024-04-22", "type": "inclusion", "amount": "3000.00"},
    {"id": "lp-6", "stage_id": "ep", "date": "2024-04-10", "type": "rectification", "amount": "-500.00",
     "reference_id": "lp-2", "note": "February overmeasured"},
    {"id": "lp-7", "stage_id": "cc", "date": "2024-05-20", "type": "inclusion", "quantity": "40"}
  ]
}`,
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario id, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario resets the store and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	resp, err := h.loadScenario(r.Context(), req.ScenarioID)
	if err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) loadScenario(ctx context.Context, id string) (ImportResponse, error) {
	raw, ok := scenarioDocuments[id]
	if !ok {
		return ImportResponse{}, fmt.Errorf("%w: unknown scenario %q", errUnknownScenario, id)
	}
	doc, err := h.Factory.ParseBudget([]byte(raw))
	if err != nil {
		return ImportResponse{}, err
	}
	if err := h.reset(ctx); err != nil {
		return ImportResponse{}, err
	}
	resp, err := h.ImportDocument(ctx, doc)
	if err != nil {
		return ImportResponse{}, err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.logger.InfoContext(ctx, "scenario loaded", "scenario_id", id, "stages", resp.Stages, "events", resp.Events)
	return resp, nil
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}
