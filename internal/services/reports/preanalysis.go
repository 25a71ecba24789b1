package reports

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/valora-io/valora/internal/models"
	"github.com/valora-io/valora/internal/services/llm"
)

// summaryData is the JSON-structured summary at the end of stage 1.
// Garbage model output collapses to the empty-but-valid form so
// downstream consumers never see nil collections.
type summaryData struct {
	Summary               string     `json:"summary"`
	CompetitiveAdvantages []string   `json:"competitiveAdvantages"`
	DataProfileTable      [][]string `json:"dataProfileTable"`
}

func emptySummary() summaryData {
	return summaryData{
		Summary:               "",
		CompetitiveAdvantages: []string{},
		DataProfileTable:      [][]string{},
	}
}

// preAnalysisResult is the persisted stage-1 artifact
type preAnalysisResult struct {
	Overview          string             `json:"overview"`
	Metrics           map[string]float64 `json:"metrics"`
	CollectionMethods string             `json:"collectionMethods"`
	Summary           summaryData        `json:"summary"`
}

// runPreAnalysis builds the structured organization profile. The
// overview runs first because every later prompt is seeded with it;
// metric prompts are independent of each other and run concurrently.
// Each generation failure degrades its own section only; the result
// is never nil.
func (s *Service) runPreAnalysis(ctx context.Context, job *models.ReportJob) *preAnalysisResult {
	overview, err := s.generate(ctx, overviewPrompt(job))
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("report_id", job.ReportID).
			Msg("Overview generation failed, proceeding without it")
		overview = ""
	}

	priorContext := overview + "\n\n" + formatAnswers(job.PDVAnswers)

	metrics := make(map[string]float64, len(metricNames))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, metric := range metricNames {
		wg.Add(1)
		go func(metric string) {
			defer wg.Done()

			response, err := s.generate(ctx, metricPrompt(job, metric, priorContext))
			if err != nil {
				s.logger.Warn().
					Err(err).
					Str("report_id", job.ReportID).
					Str("metric", metric).
					Msg("Metric generation failed, using default")
				return
			}

			value := llm.ExtractPercent(response, defaultMetricPercent)
			mu.Lock()
			metrics[metric] = value
			mu.Unlock()
		}(metric)
	}
	wg.Wait()

	methods, err := s.generate(ctx, collectionMethodsPrompt(job, priorContext))
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("report_id", job.ReportID).
			Msg("Collection methods generation failed")
		methods = ""
	}

	summary := emptySummary()
	summaryResponse, err := s.generate(ctx, summaryPrompt(job, priorContext))
	if err == nil {
		raw := llm.ExtractJSON(summaryResponse)
		var parsed summaryData
		if raw != "" && json.Unmarshal([]byte(raw), &parsed) == nil {
			if parsed.CompetitiveAdvantages == nil {
				parsed.CompetitiveAdvantages = []string{}
			}
			if parsed.DataProfileTable == nil {
				parsed.DataProfileTable = [][]string{}
			}
			summary = parsed
		} else {
			s.logger.Warn().
				Str("report_id", job.ReportID).
				Msg("Summary JSON did not parse, substituting empty structure")
		}
	}

	return &preAnalysisResult{
		Overview:          overview,
		Metrics:           metrics,
		CollectionMethods: methods,
		Summary:           summary,
	}
}

// runSupplement generates the competitive comparison. Independent of
// stage 1's success: a failure yields the empty comparison rather than
// aborting the pipeline.
func (s *Service) runSupplement(ctx context.Context, job *models.ReportJob, metrics map[string]float64) string {
	response, err := s.generate(ctx, supplementPrompt(job, metrics))
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("report_id", job.ReportID).
			Msg("Supplement generation failed, proceeding with empty comparison")
		return ""
	}
	return response
}

// runValuation parses the intake answers into valuation inputs and runs
// the arithmetic. Any parse failure skips the valuation entirely: the
// report proceeds without the section, absent rather than zero.
func (s *Service) runValuation(ctx context.Context, job *models.ReportJob, metrics map[string]float64) *models.ValuationResult {
	response, err := s.generate(ctx, valuationParsePrompt(job))
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("report_id", job.ReportID).
			Msg("Valuation input generation failed, skipping valuation")
		return nil
	}

	raw := llm.ExtractJSON(response)
	if raw == "" {
		s.logger.Warn().
			Str("report_id", job.ReportID).
			Msg("No valuation JSON in response, skipping valuation")
		return nil
	}

	var input models.ValuationInput
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		s.logger.Warn().
			Err(err).
			Str("report_id", job.ReportID).
			Msg("Valuation input did not parse, skipping valuation")
		return nil
	}

	input.AttributablePercent = sanitizePercent(input.AttributablePercent, metricOr(metrics, "attributable", defaultMetricPercent))
	input.ReliancePercent = sanitizePercent(input.ReliancePercent, metricOr(metrics, "reliance", defaultMetricPercent))

	quality := models.QualityMetrics{
		Scarcity:   metricOr(metrics, "scarcity", defaultScarcityPercent),
		Ownership:  metricOr(metrics, "ownership", defaultOwnershipPercent),
		Uniqueness: metricOr(metrics, "uniqueness", defaultUniquenessPercent),
	}

	result := computeValuation(input, quality)
	return &result
}
