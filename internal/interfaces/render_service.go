package interfaces

import "github.com/valora-io/valora/internal/models"

// ReportContent carries the rendered sections of a report. Nil section
// data means the stage that produces it did not run or failed; the
// renderer omits that section.
type ReportContent struct {
	Title       string
	OrgName     string
	ReportType  models.ReportType
	PreAnalysis map[string]any
	Supplement  string
	Valuation   *models.ValuationResult
}

// RenderService produces the PDF artifact for a report
type RenderService interface {
	Render(content ReportContent) ([]byte, error)
}
