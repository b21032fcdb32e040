package budget

import (
	"github.com/warp/budget-engine/generic"
)

// =============================================================================
// HIERARCHY - Read-only view over a flat stage collection
// =============================================================================

// Hierarchy indexes a stage snapshot once: parent -> children adjacency,
// leaf flags, and bottom-up effective totals and date ranges. It is
// immutable after construction and safe for concurrent reads.
//
// Dangling parent references make a stage a root. Parent cycles do not
// recurse forever: a stage already on the current walk contributes nothing.
type Hierarchy struct {
	order    []StageID
	stages   map[StageID]Stage
	children map[StageID][]StageID
	ranges   map[StageID]DateRange
	totals   map[StageID]totalMemo
}

// DateRange is an effective date range. Either bound may be missing.
type DateRange struct {
	Start *generic.TimePoint
	End   *generic.TimePoint
}

// Defined reports whether both bounds are present.
func (r DateRange) Defined() bool {
	return r.Start != nil && r.End != nil
}

type totalMemo struct {
	value generic.Amount
	ok    bool
}

const (
	unvisited = iota
	visiting
	visited
)

func NewHierarchy(stages []Stage) *Hierarchy {
	h := &Hierarchy{
		order:    make([]StageID, 0, len(stages)),
		stages:   make(map[StageID]Stage, len(stages)),
		children: make(map[StageID][]StageID),
		ranges:   make(map[StageID]DateRange, len(stages)),
		totals:   make(map[StageID]totalMemo, len(stages)),
	}
	for _, s := range stages {
		if _, dup := h.stages[s.ID]; !dup {
			h.order = append(h.order, s.ID)
		}
		h.stages[s.ID] = s
	}
	for _, id := range h.order {
		s := h.stages[id]
		if s.HasParent() {
			h.children[*s.ParentID] = append(h.children[*s.ParentID], id)
		}
	}

	state := make(map[StageID]int, len(h.order))
	for _, id := range h.order {
		h.resolve(id, state)
	}
	return h
}

// resolve computes the effective range and total of id after its children.
func (h *Hierarchy) resolve(id StageID, state map[StageID]int) (DateRange, totalMemo) {
	switch state[id] {
	case visited:
		return h.ranges[id], h.totals[id]
	case visiting:
		return DateRange{}, totalMemo{}
	}
	state[id] = visiting

	s := h.stages[id]
	kids := h.children[id]
	var r DateRange
	var t totalMemo

	if len(kids) == 0 {
		r = DateRange{Start: s.Start, End: s.End}
		t = totalMemo{value: s.TotalValue, ok: true}
	} else {
		sum := generic.Amount{}
		for _, kid := range kids {
			kr, kt := h.resolve(kid, state)
			if kr.Start != nil && (r.Start == nil || kr.Start.Before(*r.Start)) {
				r.Start = kr.Start
			}
			if kr.End != nil && (r.End == nil || kr.End.After(*r.End)) {
				r.End = kr.End
			}
			if kt.ok {
				sum = sum.Add(kt.value)
				t.ok = true
			}
		}
		t.value = sum
	}

	h.ranges[id] = r
	h.totals[id] = t
	state[id] = visited
	return r, t
}

// =============================================================================
// QUERIES
// =============================================================================

func (h *Hierarchy) Len() int { return len(h.order) }

func (h *Hierarchy) Stage(id StageID) (Stage, bool) {
	s, ok := h.stages[id]
	return s, ok
}

// Contains reports whether id is part of the snapshot.
func (h *Hierarchy) Contains(id StageID) bool {
	_, ok := h.stages[id]
	return ok
}

// IsLeaf is true iff the stage exists and no stage names it as parent.
func (h *Hierarchy) IsLeaf(id StageID) bool {
	_, ok := h.stages[id]
	return ok && len(h.children[id]) == 0
}

// Leaves returns leaf stages in snapshot order.
func (h *Hierarchy) Leaves() []Stage {
	var out []Stage
	for _, id := range h.order {
		if len(h.children[id]) == 0 {
			out = append(out, h.stages[id])
		}
	}
	return out
}

func (h *Hierarchy) Children(id StageID) []Stage {
	kids := h.children[id]
	out := make([]Stage, 0, len(kids))
	for _, k := range kids {
		out = append(out, h.stages[k])
	}
	return out
}

// Roots returns stages without a parent or whose parent is not in the snapshot.
func (h *Hierarchy) Roots() []Stage {
	var out []Stage
	for _, id := range h.order {
		s := h.stages[id]
		if !s.HasParent() || !h.Contains(*s.ParentID) {
			out = append(out, s)
		}
	}
	return out
}

// EffectiveDateRange is the stage's own range for a leaf, or the earliest
// start and latest end over its descendants. Undefined bounds are ignored;
// a parent with no dated descendant gets an empty range.
func (h *Hierarchy) EffectiveDateRange(id StageID) DateRange {
	return h.ranges[id]
}

// EffectiveTotal is the stage's own total for a leaf, or the sum of the
// leaf totals beneath it. ok is false when there is nothing to sum, which
// is distinct from a zero total.
func (h *Hierarchy) EffectiveTotal(id StageID) (generic.Amount, bool) {
	t := h.totals[id]
	return t.value, t.ok
}

// =============================================================================
// ONE-SHOT HELPERS - Build a throwaway index
// =============================================================================

func IsLeaf(stage Stage, all []Stage) bool {
	for _, s := range all {
		if s.HasParent() && *s.ParentID == stage.ID {
			return false
		}
	}
	return true
}

func EffectiveDateRange(stage Stage, all []Stage) DateRange {
	return NewHierarchy(withStage(stage, all)).EffectiveDateRange(stage.ID)
}

func EffectiveTotal(stage Stage, all []Stage) (generic.Amount, bool) {
	return NewHierarchy(withStage(stage, all)).EffectiveTotal(stage.ID)
}

// withStage makes sure stage itself is present in the snapshot.
func withStage(stage Stage, all []Stage) []Stage {
	for _, s := range all {
		if s.ID == stage.ID {
			return all
		}
	}
	return append(append(make([]Stage, 0, len(all)+1), all...), stage)
}
