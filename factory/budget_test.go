package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/factory"
	"github.com/warp/budget-engine/generic"
)

const smallHouse = `{
  "name": "Small house",
  "stages": [
    {"id": "1", "code": "1", "name": "Structure", "kind": "service"},
    {"id": "1.1", "parent_id": "1", "code": "1.1", "name": "Foundations",
     "kind": "material", "start": "2024-01-15", "end": "2024-03-10",
     "total": "10000.00", "unit_price": 95},
    {"id": "2", "code": "2", "name": "Permit", "kind": "fee",
     "start": "2024-01-05", "end": "2023-12-01", "total": 800}
  ],
  "progress": [
    {"stage_id": "1.1", "date": "2024-02-10", "type": "inclusion", "amount": "1200.00"},
    {"stage_id": "1.1", "date": "2024-03-02", "type": "inclusion", "quantity": "12", "note": "rebar"}
  ]
}`

func TestParseBudget_SmallHouse(t *testing.T) {
	// GIVEN: A document with a parent, a dated leaf, a fee and two events
	// WHEN: It is parsed
	// THEN: Stages and events carry the typed values

	doc, err := factory.NewBudgetFactory().ParseBudget([]byte(smallHouse))
	require.NoError(t, err)

	assert.Equal(t, "Small house", doc.Name)
	require.Len(t, doc.Stages, 3)

	root := doc.Stages[0]
	assert.False(t, root.HasParent())
	assert.Nil(t, root.Start)
	assert.True(t, root.TotalValue.IsZero())

	leaf := doc.Stages[1]
	require.True(t, leaf.HasParent())
	assert.Equal(t, budget.StageID("1"), *leaf.ParentID)
	assert.Equal(t, budget.KindMaterial, leaf.Kind)
	assert.Equal(t, "2024-01-15", leaf.Start.String())
	assert.Equal(t, "2024-03-10", leaf.End.String())
	assert.Equal(t, "10000.00", leaf.TotalValue.String())
	require.NotNil(t, leaf.UnitPrice)
	assert.Equal(t, "95.00", leaf.UnitPrice.String())

	// A fee ignores its end date, so an end before start is accepted.
	fee := doc.Stages[2]
	period, ok := fee.Schedule()
	require.True(t, ok)
	assert.Equal(t, 1, period.Days())

	require.Len(t, doc.Events, 2)
	assert.Equal(t, budget.EventInclusion, doc.Events[0].Type)
	require.NotNil(t, doc.Events[0].Amount)
	assert.Equal(t, "1200.00", doc.Events[0].Amount.String())
	assert.Nil(t, doc.Events[1].Amount)
	require.NotNil(t, doc.Events[1].Quantity)

	v, err := doc.Events[1].Value(leaf.UnitPrice)
	require.NoError(t, err)
	assert.Equal(t, "1140.00", v.String())
	assert.Equal(t, "rebar", doc.Events[1].Note)
}

func TestParseBudget_Rejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "unknown kind",
			doc:  `{"stages":[{"id":"a","name":"A","kind":"magic"}]}`,
			want: generic.ErrUnknownKind,
		},
		{
			name: "end before start",
			doc:  `{"stages":[{"id":"a","name":"A","kind":"labor","start":"2024-03-01","end":"2024-02-01"}]}`,
			want: generic.ErrInvalidPeriod,
		},
		{
			name: "negative total",
			doc:  `{"stages":[{"id":"a","name":"A","kind":"labor","total":"-1"}]}`,
			want: generic.ErrInvalidAmount,
		},
		{
			name: "unknown event type",
			doc:  `{"stages":[{"id":"a","name":"A","kind":"labor"}],"progress":[{"stage_id":"a","date":"2024-01-01","type":"bonus","amount":1}]}`,
			want: generic.ErrUnknownEventType,
		},
		{
			name: "event without value",
			doc:  `{"stages":[{"id":"a","name":"A","kind":"labor"}],"progress":[{"stage_id":"a","date":"2024-01-01","type":"inclusion"}]}`,
			want: generic.ErrInvalidAmount,
		},
		{
			name: "event for unknown stage",
			doc:  `{"stages":[{"id":"a","name":"A","kind":"labor"}],"progress":[{"stage_id":"b","date":"2024-01-01","type":"inclusion","amount":1}]}`,
			want: generic.ErrStageNotFound,
		},
	}

	f := factory.NewBudgetFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseBudget([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseBudget_StructuralErrors(t *testing.T) {
	f := factory.NewBudgetFactory()

	_, err := f.ParseBudget([]byte(`{"stages":[`))
	assert.Error(t, err)

	_, err = f.ParseBudget([]byte(`{"stages":[{"id":"a","name":"A","kind":"labor"},{"id":"a","name":"B","kind":"fee"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")

	_, err = f.ParseBudget([]byte(`{"stages":[{"id":"a","name":"A","kind":"labor","start":"15/01/2024"}]}`))
	assert.Error(t, err)
}

func TestStageToJSON_RoundTrip(t *testing.T) {
	f := factory.NewBudgetFactory()
	doc, err := f.ParseBudget([]byte(smallHouse))
	require.NoError(t, err)

	back, err := f.StageFromJSON(factory.StageToJSON(doc.Stages[1]))
	require.NoError(t, err)
	assert.Equal(t, doc.Stages[1].ID, back.ID)
	assert.Equal(t, *doc.Stages[1].ParentID, *back.ParentID)
	assert.True(t, doc.Stages[1].TotalValue.Equal(back.TotalValue))
	assert.Equal(t, doc.Stages[1].Start.String(), back.Start.String())
}
