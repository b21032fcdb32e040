package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/budget"
)

// Gruvbox-inspired color palette.
var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorRed    = lipgloss.Color("#fb4934")
	ColorDim    = lipgloss.Color("#928374")
	ColorFg     = lipgloss.Color("#ebdbb2")
	ColorHeader = lipgloss.Color("#fe8019")
)

var (
	StyleGreen  = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleRed    = lipgloss.NewStyle().Foreground(ColorRed)
	StyleDim    = lipgloss.NewStyle().Foreground(ColorDim)
	StyleHeader = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
)

// Formatter renders command output. With Color off every string is plain,
// which keeps piped output and tests free of escape codes.
type Formatter struct {
	Color bool
}

func (f Formatter) render(s lipgloss.Style, text string) string {
	if !f.Color {
		return text
	}
	return s.Render(text)
}

// Header renders an upper-cased title with an underline.
func (f Formatter) Header(text string) string {
	upper := strings.ToUpper(text)
	line := strings.Repeat("─", len(upper))
	return f.render(StyleHeader, upper) + "\n" + f.render(StyleDim, line)
}

// Table right-aligns every column except the first.
func (f Formatter) Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(c))
			if i == 0 {
				parts[i] = c + pad
			} else {
				parts[i] = pad + c
			}
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	var b strings.Builder
	b.WriteString(f.render(StyleHeader, line(headers)))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(line(row))
		b.WriteString("\n")
	}
	return b.String()
}

// Deviation colors a cumulative deviation: red behind plan, green otherwise.
func (f Formatter) Deviation(p budget.CurvePoint) string {
	text := p.DeviationCumulative.String()
	if p.DeviationCumulative.IsNegative() {
		return f.render(StyleRed, text)
	}
	return f.render(StyleGreen, text)
}

// Allocations renders the output of the distribute command.
func (f Formatter) Allocations(allocs []budget.Allocation) string {
	if len(allocs) == 0 {
		return f.render(StyleDim, "nothing to distribute") + "\n"
	}
	rows := make([][]string, len(allocs))
	for i, a := range allocs {
		rows[i] = []string{a.Month.Key(), a.Value.String()}
	}
	return f.Table([]string{"Month", "Planned"}, rows)
}

// SCurve renders a curve as a table, or its status marker when there is
// nothing to plot.
func (f Formatter) SCurve(c budget.SCurve) string {
	switch c.Status {
	case budget.CurveNoLeaves:
		return f.render(StyleYellow, "● no-leaves") + "  " + f.render(StyleDim, "the budget has no leaf stages") + "\n"
	case budget.CurveNoValues:
		return f.render(StyleYellow, "● no-values") + "  " + f.render(StyleDim, "no planned or actual values yet") + "\n"
	}

	rows := make([][]string, len(c.Points))
	for i, p := range c.Points {
		rows[i] = []string{
			p.Label,
			p.PlannedMonthly.String(),
			p.ActualMonthly.String(),
			p.PlannedCumulative.String(),
			p.ActualCumulative.String(),
			f.Deviation(p),
		}
	}
	out := f.Table([]string{"Month", "Planned", "Actual", "Planned Cum.", "Actual Cum.", "Deviation"}, rows)
	if skipped := c.Diagnostics.Rows - c.Diagnostics.Used; skipped > 0 {
		out += f.render(StyleDim, fmt.Sprintf("%d of %d rows skipped", skipped, c.Diagnostics.Rows)) + "\n"
	}
	return out
}

// SweepRun renders a one-line sweep summary.
func (f Formatter) SweepRun(run api.SweepRunDTO) string {
	marker := f.render(StyleGreen, "●")
	if run.Error != "" {
		marker = f.render(StyleRed, "●")
	}
	line := fmt.Sprintf("%s sweep %s: %d planned, %d cleared, %d actual months",
		marker, run.Trigger, run.StagesPlanned, run.StagesCleared, run.ActualMonths)
	if run.Error != "" {
		line += "\n  " + f.render(StyleRed, run.Error)
	}
	return line + "\n"
}
