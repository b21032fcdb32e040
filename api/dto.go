/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Money is always
  rendered as a string with two decimals so clients never see float drift.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Stages:
    StageDTO (request bodies reuse factory.StageJSON)

  Values:
    MonthlyValueDTO, DistributionDTO, ActualResultDTO

  Progress:
    ProgressEventDTO, ProgressResponse, ReverseRequest

  Curve:
    SCurveDTO, CurvePointDTO, DiagnosticsDTO

  Admin / scenarios:
    SweepRunDTO, ImportResponse, ScenarioDTO, LoadScenarioRequest

SEE ALSO:
  - handlers.go: Uses these types
  - factory/budget.go: StageJSON and EventJSON request shapes
*/
package api

import (
	"time"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/generic"
)

// =============================================================================
// STAGES
// =============================================================================

// StageDTO is a stage plus what the hierarchy derives for it.
type StageDTO struct {
	ID        string  `json:"id"`
	ParentID  string  `json:"parent_id,omitempty"`
	Code      string  `json:"code,omitempty"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Start     string  `json:"start,omitempty"`
	End       string  `json:"end,omitempty"`
	Total     string  `json:"total"`
	UnitPrice *string `json:"unit_price,omitempty"`

	IsLeaf         bool    `json:"is_leaf"`
	EffectiveStart string  `json:"effective_start,omitempty"`
	EffectiveEnd   string  `json:"effective_end,omitempty"`
	EffectiveTotal *string `json:"effective_total,omitempty"`
}

func toStageDTO(s budget.Stage, h *budget.Hierarchy) StageDTO {
	dto := StageDTO{
		ID:     string(s.ID),
		Code:   s.Code,
		Name:   s.Name,
		Kind:   string(s.Kind),
		Total:  s.TotalValue.String(),
		IsLeaf: h.IsLeaf(s.ID),
	}
	if s.HasParent() {
		dto.ParentID = string(*s.ParentID)
	}
	dto.Start = dateString(s.Start)
	dto.End = dateString(s.End)
	if s.UnitPrice != nil {
		dto.UnitPrice = strPtr(s.UnitPrice.String())
	}

	r := h.EffectiveDateRange(s.ID)
	dto.EffectiveStart = dateString(r.Start)
	dto.EffectiveEnd = dateString(r.End)
	if total, ok := h.EffectiveTotal(s.ID); ok {
		dto.EffectiveTotal = strPtr(total.String())
	}
	return dto
}

// =============================================================================
// MONTHLY VALUES
// =============================================================================

type MonthlyValueDTO struct {
	StageID   string `json:"stage_id"`
	MonthKey  string `json:"month_key"`
	Value     string `json:"value"`
	ValueType string `json:"value_type"`
}

func toMonthlyValueDTOs(rows []budget.MonthlyValue) []MonthlyValueDTO {
	dtos := make([]MonthlyValueDTO, len(rows))
	for i, r := range rows {
		dtos[i] = MonthlyValueDTO{
			StageID:   string(r.StageID),
			MonthKey:  r.MonthKey,
			Value:     r.Value.String(),
			ValueType: string(r.ValueType),
		}
	}
	return dtos
}

// DistributionDTO is the outcome of an immediate planned recompute.
type DistributionDTO struct {
	StageID string            `json:"stage_id"`
	Cleared bool              `json:"cleared"`
	Rows    []MonthlyValueDTO `json:"rows"`
}

// ActualResultDTO reports what happened to one actual row.
type ActualResultDTO struct {
	StageID  string `json:"stage_id"`
	MonthKey string `json:"month_key"`
	Value    string `json:"value"`
	Action   string `json:"action"`
}

func toActualResultDTOs(results []budget.ActualResult) []ActualResultDTO {
	dtos := make([]ActualResultDTO, len(results))
	for i, r := range results {
		dtos[i] = ActualResultDTO{
			StageID:  string(r.StageID),
			MonthKey: r.Month.Key(),
			Value:    r.Value.String(),
			Action:   string(r.Action),
		}
	}
	return dtos
}

// =============================================================================
// PROGRESS
// =============================================================================

type ProgressEventDTO struct {
	ID          string  `json:"id"`
	StageID     string  `json:"stage_id"`
	Date        string  `json:"date"`
	Type        string  `json:"type"`
	Amount      *string `json:"amount,omitempty"`
	Quantity    *string `json:"quantity,omitempty"`
	UnitPrice   *string `json:"unit_price,omitempty"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Note        string  `json:"note,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func toProgressEventDTO(e budget.ProgressEvent) ProgressEventDTO {
	dto := ProgressEventDTO{
		ID:          e.ID,
		StageID:     string(e.StageID),
		Date:        e.Date.String(),
		Type:        string(e.Type),
		ReferenceID: e.ReferenceID,
		Note:        e.Note,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	if e.Amount != nil {
		dto.Amount = strPtr(e.Amount.String())
	}
	if e.Quantity != nil {
		dto.Quantity = strPtr(e.Quantity.String())
	}
	if e.UnitPrice != nil {
		dto.UnitPrice = strPtr(e.UnitPrice.String())
	}
	return dto
}

// ProgressResponse is returned when an event is recorded or reversed.
type ProgressResponse struct {
	Event   ProgressEventDTO  `json:"event"`
	Actuals []ActualResultDTO `json:"actuals"`
}

type ReverseRequest struct {
	Note string `json:"note"`
}

// =============================================================================
// S-CURVE
// =============================================================================

type CurvePointDTO struct {
	MonthKey            string `json:"month_key"`
	Label               string `json:"label"`
	PlannedMonthly      string `json:"planned_monthly"`
	ActualMonthly       string `json:"actual_monthly"`
	PlannedCumulative   string `json:"planned_cumulative"`
	ActualCumulative    string `json:"actual_cumulative"`
	DeviationCumulative string `json:"deviation_cumulative"`
}

type DiagnosticsDTO struct {
	Rows          int `json:"rows"`
	Orphans       int `json:"orphans"`
	MalformedKeys int `json:"malformed_keys"`
	NonLeaf       int `json:"non_leaf"`
	UnknownType   int `json:"unknown_type"`
	Used          int `json:"used"`
}

// SCurveDTO carries either a status marker with no points, or the series.
type SCurveDTO struct {
	Status      string          `json:"status"`
	Points      []CurvePointDTO `json:"points"`
	Diagnostics DiagnosticsDTO  `json:"diagnostics"`
}

func toSCurveDTO(c budget.SCurve) SCurveDTO {
	points := make([]CurvePointDTO, len(c.Points))
	for i, p := range c.Points {
		points[i] = CurvePointDTO{
			MonthKey:            p.MonthKey,
			Label:               p.Label,
			PlannedMonthly:      p.PlannedMonthly.String(),
			ActualMonthly:       p.ActualMonthly.String(),
			PlannedCumulative:   p.PlannedCumulative.String(),
			ActualCumulative:    p.ActualCumulative.String(),
			DeviationCumulative: p.DeviationCumulative.String(),
		}
	}
	d := c.Diagnostics
	return SCurveDTO{
		Status: string(c.Status),
		Points: points,
		Diagnostics: DiagnosticsDTO{
			Rows:          d.Rows,
			Orphans:       d.Orphans,
			MalformedKeys: d.MalformedKeys,
			NonLeaf:       d.NonLeaf,
			UnknownType:   d.UnknownType,
			Used:          d.Used,
		},
	}
}

// =============================================================================
// ADMIN
// =============================================================================

type SweepRunDTO struct {
	ID            string `json:"id"`
	Trigger       string `json:"trigger"`
	StartedAt     string `json:"started_at"`
	FinishedAt    string `json:"finished_at,omitempty"`
	StagesPlanned int    `json:"stages_planned"`
	StagesCleared int    `json:"stages_cleared"`
	ActualMonths  int    `json:"actual_months"`
	Error         string `json:"error,omitempty"`
}

// ToSweepRunDTO converts a sweep record for JSON and CLI output.
func ToSweepRunDTO(run budget.SweepRun) SweepRunDTO {
	dto := SweepRunDTO{
		ID:            run.ID,
		Trigger:       run.Trigger,
		StartedAt:     run.StartedAt.Format(time.RFC3339),
		StagesPlanned: run.StagesPlanned,
		StagesCleared: run.StagesCleared,
		ActualMonths:  run.ActualMonths,
		Error:         run.Error,
	}
	if !run.FinishedAt.IsZero() {
		dto.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	return dto
}

// ImportResponse summarizes a bulk document import.
type ImportResponse struct {
	Name   string      `json:"name,omitempty"`
	Stages int         `json:"stages"`
	Events int         `json:"events"`
	Sweep  SweepRunDTO `json:"sweep"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func dateString(tp *generic.TimePoint) string {
	if tp == nil {
		return ""
	}
	return tp.String()
}

func strPtr(s string) *string {
	return &s
}
