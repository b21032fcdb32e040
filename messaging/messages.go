package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/factory"
)

// ProgressAction selects what a progress message asks for.
type ProgressAction string

const (
	ActionRecord  ProgressAction = "record"
	ActionReverse ProgressAction = "reverse"
)

// ProgressMessage is consumed from the progress queue. Record carries an
// event in document form; reverse names the event to undo.
type ProgressMessage struct {
	Action    ProgressAction     `json:"action"`
	Event     *factory.EventJSON `json:"event,omitempty"`
	EventID   string             `json:"event_id,omitempty"`
	Note      string             `json:"note,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func (m *ProgressMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ProgressMessageFromJSON decodes and shape-checks a message. Field
// validation happens when the event is converted.
func ProgressMessageFromJSON(data []byte) (*ProgressMessage, error) {
	var msg ProgressMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Action {
	case ActionRecord:
		if msg.Event == nil {
			return nil, fmt.Errorf("record message without event")
		}
	case ActionReverse:
		if msg.EventID == "" {
			return nil, fmt.Errorf("reverse message without event_id")
		}
	default:
		return nil, fmt.Errorf("unknown progress action %q", msg.Action)
	}
	return &msg, nil
}

// RecomputeNotice is published after an actual row was recomputed.
type RecomputeNotice struct {
	StageID   string    `json:"stage_id"`
	MonthKey  string    `json:"month_key"`
	Value     string    `json:"value"`
	Action    string    `json:"action"`
	EventID   string    `json:"event_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecomputeNotice renders one aggregator result.
func NewRecomputeNotice(eventID string, r budget.ActualResult) *RecomputeNotice {
	return &RecomputeNotice{
		StageID:   string(r.StageID),
		MonthKey:  r.Month.Key(),
		Value:     r.Value.String(),
		Action:    string(r.Action),
		EventID:   eventID,
		Timestamp: time.Now(),
	}
}

func (n *RecomputeNotice) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}
