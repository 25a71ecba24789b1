package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valora-io/valora/internal/interfaces"
)

// composeMarkdown assembles the report document from whatever sections
// are present. Absent sections are omitted entirely.
func composeMarkdown(content interfaces.ReportContent) string {
	var b strings.Builder

	title := content.Title
	if title == "" {
		title = fmt.Sprintf("%s Report", content.ReportType)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if content.OrgName != "" {
		fmt.Fprintf(&b, "Prepared for **%s**\n\n", content.OrgName)
	}

	if content.PreAnalysis != nil {
		writePreAnalysis(&b, content.PreAnalysis)
	}

	if content.Supplement != "" {
		b.WriteString("## Competitive Comparison\n\n")
		b.WriteString(content.Supplement)
		b.WriteString("\n\n")
	}

	if content.Valuation != nil {
		v := content.Valuation
		b.WriteString("## Data Valuation\n\n")
		b.WriteString("| Measure | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Total yearly value | %.2f |\n", v.TotalValue)
		fmt.Fprintf(&b, "| Reliance-adjusted value | %.2f |\n", v.RelianceValue)
		fmt.Fprintf(&b, "| Value after decay | %.2f |\n", v.ValueAfterDecay)
		fmt.Fprintf(&b, "| Estimated range (lower) | %.0f |\n", v.LowerBound)
		fmt.Fprintf(&b, "| Estimated range (upper) | %.0f |\n", v.UpperBound)
		b.WriteString("\n")
		fmt.Fprintf(&b, "Quality factors: scarcity %.0f%%, ownership %.0f%%, uniqueness %.0f%%\n\n",
			v.Quality.Scarcity, v.Quality.Ownership, v.Quality.Uniqueness)
	}

	return b.String()
}

func writePreAnalysis(b *strings.Builder, data map[string]any) {
	b.WriteString("## Analysis\n\n")

	if summary, ok := data["summary"].(string); ok && summary != "" {
		b.WriteString(summary)
		b.WriteString("\n\n")
	}

	if metrics, ok := data["metrics"].(map[string]float64); ok && len(metrics) > 0 {
		names := make([]string, 0, len(metrics))
		for name := range metrics {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("| Metric | Score |\n|---|---|\n")
		for _, name := range names {
			fmt.Fprintf(b, "| %s | %.0f%% |\n", name, metrics[name])
		}
		b.WriteString("\n")
	}

	if advantages, ok := data["competitiveAdvantages"].([]string); ok && len(advantages) > 0 {
		b.WriteString("### Competitive Advantages\n\n")
		for _, a := range advantages {
			fmt.Fprintf(b, "- %s\n", a)
		}
		b.WriteString("\n")
	}

	if methods, ok := data["collectionMethods"].(string); ok && methods != "" {
		b.WriteString("### Collection Methods\n\n")
		b.WriteString(methods)
		b.WriteString("\n\n")
	}
}
