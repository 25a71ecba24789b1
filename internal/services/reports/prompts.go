package reports

import (
	"fmt"
	"strings"

	"github.com/valora-io/valora/internal/models"
)

const systemPrompt = "You are a data valuation analyst. Answer concisely and " +
	"ground every estimate in the organization profile you are given. " +
	"When asked for JSON, return only the JSON object."

// metricNames are the percentage metrics produced during pre-analysis.
// attributable and reliance double as sanitization fallbacks for the
// valuation stage; scarcity, ownership and uniqueness feed the quality
// multiplier.
var metricNames = []string{
	"accuracy",
	"attributable",
	"reliance",
	"scarcity",
	"ownership",
	"uniqueness",
}

func formatAnswers(answers []models.Answer) string {
	if len(answers) == 0 {
		return "(no intake answers provided)"
	}
	var b strings.Builder
	for _, a := range answers {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", a.Question, a.Answer)
	}
	return b.String()
}

func overviewPrompt(job *models.ReportJob) string {
	return fmt.Sprintf(
		"Write a short overview of the data assets held by %s, based on the intake answers below.\n\n%s",
		job.OrgName, formatAnswers(job.PDVAnswers))
}

// metricPrompt is seeded with the accumulated prior answers so the
// estimates stay mutually consistent across metrics
func metricPrompt(job *models.ReportJob, metric, priorContext string) string {
	return fmt.Sprintf(
		"Given this organization profile:\n\n%s\n\nEstimate the %s of %s's data as a single percentage between 1 and 99. Answer with the percentage and one sentence of justification.",
		priorContext, metric, job.OrgName)
}

func collectionMethodsPrompt(job *models.ReportJob, priorContext string) string {
	return fmt.Sprintf(
		"Based on this profile:\n\n%s\n\nDescribe how %s collects and maintains its data. Two or three paragraphs.",
		priorContext, job.OrgName)
}

func summaryPrompt(job *models.ReportJob, priorContext string) string {
	return fmt.Sprintf(
		"Summarize the data profile of %s as JSON with this exact shape:\n"+
			`{"summary": "...", "competitiveAdvantages": ["..."], "dataProfileTable": [["Category", "Detail"], ["...", "..."]]}`+
			"\n\nProfile:\n\n%s",
		job.OrgName, priorContext)
}

func supplementPrompt(job *models.ReportJob, metrics map[string]float64) string {
	var seed strings.Builder
	for name, value := range metrics {
		fmt.Fprintf(&seed, "%s: %.0f%%\n", name, value)
	}
	return fmt.Sprintf(
		"Write a competitive comparison for %s against typical organizations in its sector. "+
			"Keep the organization's own column consistent with these established metrics:\n\n%s\n\nIntake answers:\n\n%s",
		job.OrgName, seed.String(), formatAnswers(job.PDVAnswers))
}

func valuationParsePrompt(job *models.ReportJob) string {
	return fmt.Sprintf(
		"Extract the valuation inputs from these intake answers as JSON with this exact shape:\n"+
			`{"yearsCollecting": 0, "attributablePercent": 0, "reliancePercent": 0, "currentValue": 0, "yearlyValuations": [0]}`+
			"\nUse numbers only. yearlyValuations lists the organization's estimated yearly data value, oldest first.\n\nAnswers:\n\n%s",
		formatAnswers(job.PDVAnswers))
}
