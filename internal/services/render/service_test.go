package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
)

func TestService_RenderFullReport(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	content := interfaces.ReportContent{
		Title:      "Data Valuation Report",
		OrgName:    "Acme Corp",
		ReportType: models.ReportTypePreADV,
		PreAnalysis: map[string]any{
			"summary": "Acme collects operational telemetry at scale.",
			"metrics": map[string]float64{
				"scarcity":  60,
				"ownership": 80,
			},
			"competitiveAdvantages": []string{"exclusive sources", "long history"},
		},
		Supplement: "Competitors hold less granular datasets.",
		Valuation: &models.ValuationResult{
			TotalValue:      600,
			RelianceValue:   480,
			ValueAfterDecay: 420,
			UpperBound:      252,
			LowerBound:      176,
			Quality:         models.QualityMetrics{Scarcity: 50, Ownership: 80, Uniqueness: 50},
		},
	}

	data, err := svc.Render(content)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Greater(t, len(data), 500)
}

func TestService_RenderOmitsAbsentSections(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	// Only pre-analysis present; supplement and valuation absent
	content := interfaces.ReportContent{
		Title:      "Partial Report",
		OrgName:    "Acme Corp",
		ReportType: models.ReportTypeSupplement,
		PreAnalysis: map[string]any{
			"summary": "Partial run.",
		},
	}

	data, err := svc.Render(content)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestComposeMarkdown_SectionOmission(t *testing.T) {
	md := composeMarkdown(interfaces.ReportContent{
		Title:      "T",
		OrgName:    "Acme",
		ReportType: models.ReportTypePDV,
	})

	assert.Contains(t, md, "# T")
	assert.NotContains(t, md, "Data Valuation")
	assert.NotContains(t, md, "Competitive Comparison")
	assert.NotContains(t, md, "## Analysis")
}

func TestComposeMarkdown_ValuationTable(t *testing.T) {
	md := composeMarkdown(interfaces.ReportContent{
		Title: "T",
		Valuation: &models.ValuationResult{
			TotalValue: 600,
			UpperBound: 252,
			LowerBound: 176,
		},
	})

	assert.Contains(t, md, "Data Valuation")
	assert.Contains(t, md, "| Total yearly value | 600.00 |")
	assert.Contains(t, md, "| Estimated range (lower) | 176 |")
	assert.True(t, strings.Contains(md, "252"))
}
