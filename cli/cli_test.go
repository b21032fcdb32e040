package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/generic"
	"github.com/warp/budget-engine/logging"
)

const houseDocument = `{
  "name": "Garage",
  "stages": [
    {"id": "1", "code": "1", "name": "Garage", "kind": "service"},
    {"id": "1.1", "parent_id": "1", "code": "1.1", "name": "Slab", "kind": "labor",
     "start": "2024-01-15", "end": "2024-03-10", "total": "10000.00"},
    {"id": "2", "code": "2", "name": "Permit", "kind": "fee",
     "start": "2024-01-05", "total": "800.00"}
  ],
  "progress": [
    {"id": "g-1", "stage_id": "1.1", "date": "2024-01-31", "type": "inclusion", "amount": "2500.00"}
  ]
}`

func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := &App{Out: &out, Format: Formatter{}, Logger: logging.Discard(), DBPath: dbPath}
	root := NewRootCmd(app)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestDistribute_ResidualInLastMonth(t *testing.T) {
	// GIVEN: 10000.00 over Jan 15 - Mar 10 2024 (17 + 29 + 10 days)
	// WHEN: distribute runs
	// THEN: March absorbs the rounding residual

	out, err := run(t, "", "distribute", "--start", "2024-01-15", "--end", "2024-03-10", "--total", "10000")
	require.NoError(t, err)

	assert.Contains(t, out, "2024-01  3035.71")
	assert.Contains(t, out, "2024-02  5178.57")
	assert.Contains(t, out, "2024-03  1785.72")
}

func TestDistribute_FeeCollapsesToStart(t *testing.T) {
	out, err := run(t, "", "distribute", "--kind", "fee", "--start", "2024-01-05", "--total", "800")
	require.NoError(t, err)

	assert.Regexp(t, `2024-01 +800\.00`, out)
	assert.NotContains(t, out, "2024-02")
}

func TestDistribute_Rejections(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing end", []string{"--start", "2024-01-01", "--total", "100"}},
		{"end before start", []string{"--start", "2024-02-01", "--end", "2024-01-01", "--total", "100"}},
		{"bad kind", []string{"--kind", "robot", "--start", "2024-01-01", "--end", "2024-01-31", "--total", "100"}},
		{"negative total", []string{"--start", "2024-01-01", "--end", "2024-01-31", "--total", "-1"}},
		{"bad date", []string{"--start", "2024-1-1", "--end", "2024-01-31", "--total", "100"}},
		{"missing total", []string{"--start", "2024-01-01", "--end", "2024-01-31"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "", append([]string{"distribute"}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestDistribute_ZeroTotal(t *testing.T) {
	out, err := run(t, "", "distribute", "--start", "2024-01-01", "--end", "2024-01-31", "--total", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to distribute")
}

func TestImportThenSCurve(t *testing.T) {
	// GIVEN: An empty database file
	// WHEN: A document is imported and the curve printed
	// THEN: Both commands share the file and the curve ends on the totals

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "budget.db")
	docPath := filepath.Join(dir, "garage.json")
	require.NoError(t, os.WriteFile(docPath, []byte(houseDocument), 0o644))

	out, err := run(t, dbPath, "scurve")
	require.NoError(t, err)
	assert.Contains(t, out, "no-leaves")

	out, err = run(t, dbPath, "import", docPath)
	require.NoError(t, err)
	assert.Contains(t, out, `imported "Garage": 3 stages, 1 events`)
	assert.Contains(t, out, "sweep import")

	out, err = run(t, dbPath, "scurve")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4) // header + Jan..Mar
	assert.True(t, strings.HasPrefix(lines[1], "Jan 2024"))
	assert.Contains(t, lines[1], "3835.71")
	assert.Contains(t, lines[3], "10800.00")
	assert.Contains(t, lines[3], "-8300.00")

	out, err = run(t, dbPath, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "sweep manual: 2 planned, 1 cleared")
}

func TestImport_InvalidDocument(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(docPath, []byte(`{"stages": [{"id": "x", "kind": "robot"}]}`), 0o644))

	_, err := run(t, filepath.Join(dir, "budget.db"), "import", docPath)
	assert.ErrorIs(t, err, generic.ErrUnknownKind)
}

func TestFormatter_SCurveMarkers(t *testing.T) {
	f := Formatter{}
	assert.Contains(t, f.SCurve(budget.SCurve{Status: budget.CurveNoValues}), "no-values")

	curve := budget.SCurve{
		Status: budget.CurveOK,
		Points: []budget.CurvePoint{{
			MonthKey:            "2024-05",
			Label:               "May 2024",
			PlannedMonthly:      generic.MustParseAmount("100"),
			PlannedCumulative:   generic.MustParseAmount("100"),
			DeviationCumulative: generic.MustParseAmount("-100"),
		}},
		Diagnostics: budget.Diagnostics{Rows: 3, Orphans: 2, Used: 1},
	}
	out := f.SCurve(curve)
	assert.Contains(t, out, "May 2024")
	assert.Contains(t, out, "-100.00")
	assert.Contains(t, out, "2 of 3 rows skipped")
	assert.NotContains(t, out, "\x1b[")
}
