package annotations

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-traversal/traversal"
)

// PlanRenderer formats fragment sequences as markdown tables
type PlanRenderer struct {
	// MaxWidth is the maximum width for the fragment column
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewPlanRenderer creates a renderer with default settings
func NewPlanRenderer() *PlanRenderer {
	return &PlanRenderer{
		MaxWidth:       60,
		TruncateString: "...",
	}
}

// RenderFragments formats the fragments in plan order
func (r *PlanRenderer) RenderFragments(frags []traversal.Fragment) string {
	if len(frags) == 0 {
		return "_Empty plan_"
	}

	tableString := &strings.Builder{}

	headers := []string{"#", "Fragment", "Start", "End", "Cost", "Fixed"}
	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)

	for i, f := range frags {
		fixed := ""
		if f.HasFixedCost() {
			fixed = "yes"
		}
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			r.truncate(f.String()),
			string(f.Start()),
			string(f.End()),
			fmt.Sprintf("%.4g", f.Cost()),
			fixed,
		})
	}

	table.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d fragments_\n", len(frags)))
	return tableString.String()
}

// RenderOrder formats a node visitation order as "?a → ?b → ?c"
func (r *PlanRenderer) RenderOrder(order []*traversal.Node) string {
	parts := make([]string, len(order))
	for i, n := range order {
		parts[i] = n.String()
	}
	return strings.Join(parts, " → ")
}

func (r *PlanRenderer) truncate(s string) string {
	if r.MaxWidth <= 0 || len(s) <= r.MaxWidth {
		return s
	}
	cut := r.MaxWidth - len(r.TruncateString)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + r.TruncateString
}
