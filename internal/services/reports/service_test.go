package reports

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
	"github.com/valora-io/valora/internal/queue"
	"github.com/valora-io/valora/internal/services/events"
	badgerstore "github.com/valora-io/valora/internal/storage/badger"
)

// scriptedLLM returns canned responses keyed by a prompt substring;
// failures take precedence over responses
type scriptedLLM struct {
	responses map[string]string
	failures  map[string]error
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	for key, err := range s.failures {
		if strings.Contains(prompt, key) {
			return "", err
		}
	}
	for key, response := range s.responses {
		if strings.Contains(prompt, key) {
			return response, nil
		}
	}
	return "Roughly 60% by most measures.", nil
}

func (s *scriptedLLM) Provider() string { return "scripted" }

// captureRenderer records the content it was asked to render
type captureRenderer struct {
	content interfaces.ReportContent
	output  []byte
	err     error
	called  bool
}

func (r *captureRenderer) Render(content interfaces.ReportContent) ([]byte, error) {
	r.called = true
	r.content = content
	return r.output, r.err
}

type pipelineEnv struct {
	svc           *Service
	manager       *badgerstore.Manager
	deliveryQueue *queue.BadgerQueue
	bus           *events.Service
	renderer      *captureRenderer
}

func setupPipeline(t *testing.T, llmStub *scriptedLLM, renderer *captureRenderer) *pipelineEnv {
	logger := arbor.NewLogger()

	manager, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir() + "/db"})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	deliveryQueue, err := queue.NewBadgerQueue(manager.DB().Badger(), "delivery", time.Minute, 3)
	require.NoError(t, err)

	bus := events.NewService(logger)

	config := common.NewDefaultConfig()
	config.Delivery.Delay = "100ms"
	config.Reports.StageTimeout = "5s"

	svc := NewService(
		manager.ReportStorage(),
		manager.NotificationStorage(),
		bus,
		llmStub,
		renderer,
		deliveryQueue,
		config,
		logger,
	)

	return &pipelineEnv{
		svc:           svc,
		manager:       manager,
		deliveryQueue: deliveryQueue,
		bus:           bus,
		renderer:      renderer,
	}
}

func testJob(enableADV bool) *models.ReportJob {
	return &models.ReportJob{
		ReportID:       "rpt_test",
		OrgName:        "Acme Corp",
		ReportType:     models.ReportTypePreADV,
		UserEmail:      "user@acme.test",
		PlatformID:     "p1",
		OrganizationID: "o1",
		EnableADV:      enableADV,
		PDVAnswers: []models.Answer{
			{Question: "How long have you collected data?", Answer: "5 years"},
		},
	}
}

func TestPipeline_EndToEndWithoutADV(t *testing.T) {
	llmStub := &scriptedLLM{responses: map[string]string{
		"Write a short overview": "Acme holds telemetry data.",
		"Summarize the data":     `{"summary":"solid profile","competitiveAdvantages":["history"],"dataProfileTable":[["Category","Detail"]]}`,
		"competitive comparison": "Acme leads its sector.",
	}}
	renderer := &captureRenderer{output: []byte("%PDF-1.4 doc")}
	env := setupPipeline(t, llmStub, renderer)
	ctx := context.Background()

	job := testJob(false)
	require.NoError(t, env.svc.Run(ctx, job))

	// Valuation skipped entirely, renderer saw nil
	require.True(t, renderer.called)
	assert.Nil(t, renderer.content.Valuation)

	report, err := env.manager.ReportStorage().Get(ctx, "rpt_test")
	require.NoError(t, err)
	assert.NotEmpty(t, report.PreAnalysisData)
	assert.Empty(t, report.ADVData)
	assert.True(t, report.HasDocument())
	assert.Equal(t, models.DeliveryStatusPending, report.DeliveryStatus)
	assert.NotEmpty(t, report.DeliveryJobID)

	// Exactly one delivery job, scheduled with a delay
	stats, err := env.deliveryQueue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Scheduled)

	// Success notification persisted for the tenant
	notifications, err := env.manager.NotificationStorage().ListByTopic(ctx, "p1", "o1", 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "Report completed", notifications[0].Title)
}

func TestPipeline_OverviewFailureStillRendersAndPersists(t *testing.T) {
	llmStub := &scriptedLLM{
		responses: map[string]string{
			"competitive comparison": "Acme leads its sector.",
		},
		failures: map[string]error{
			"Write a short overview": errors.New("provider temporarily unavailable"),
		},
	}
	renderer := &captureRenderer{output: []byte("%PDF-1.4 doc")}
	env := setupPipeline(t, llmStub, renderer)
	ctx := context.Background()

	// A transient overview failure degrades stage 1, not the pipeline
	require.NoError(t, env.svc.Run(ctx, testJob(false)))
	require.True(t, renderer.called)

	report, err := env.manager.ReportStorage().Get(ctx, "rpt_test")
	require.NoError(t, err)

	var pre preAnalysisResult
	require.NoError(t, json.Unmarshal(report.PreAnalysisData, &pre))
	assert.Empty(t, pre.Overview)

	// Supplement ran independently and its artifact persisted
	assert.NotEmpty(t, report.SupplementData)
	assert.Equal(t, "Acme leads its sector.", renderer.content.Supplement)

	// Render and delivery scheduling proceeded as usual
	assert.True(t, report.HasDocument())
	assert.Equal(t, models.DeliveryStatusPending, report.DeliveryStatus)
	assert.NotEmpty(t, report.DeliveryJobID)

	notifications, err := env.manager.NotificationStorage().ListByTopic(ctx, "p1", "o1", 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "Report completed", notifications[0].Title)
}

func TestPipeline_GarbageSummaryJSONStillPersists(t *testing.T) {
	llmStub := &scriptedLLM{responses: map[string]string{
		"Summarize the data": "I could not produce JSON, sorry!",
	}}
	renderer := &captureRenderer{output: []byte("%PDF-1.4 doc")}
	env := setupPipeline(t, llmStub, renderer)
	ctx := context.Background()

	require.NoError(t, env.svc.Run(ctx, testJob(false)))

	report, err := env.manager.ReportStorage().Get(ctx, "rpt_test")
	require.NoError(t, err)

	var pre preAnalysisResult
	require.NoError(t, json.Unmarshal(report.PreAnalysisData, &pre))
	assert.Empty(t, pre.Summary.Summary)
	assert.NotNil(t, pre.Summary.CompetitiveAdvantages)
	assert.Empty(t, pre.Summary.CompetitiveAdvantages)
	assert.NotNil(t, pre.Summary.DataProfileTable)
}

func TestPipeline_RenderFailureSkipsDelivery(t *testing.T) {
	llmStub := &scriptedLLM{responses: map[string]string{}}
	renderer := &captureRenderer{err: errors.New("render exploded")}
	env := setupPipeline(t, llmStub, renderer)
	ctx := context.Background()

	require.NoError(t, env.svc.Run(ctx, testJob(false)))

	report, err := env.manager.ReportStorage().Get(ctx, "rpt_test")
	require.NoError(t, err)
	assert.False(t, report.HasDocument())
	assert.Empty(t, report.DeliveryJobID)
	assert.NotEmpty(t, report.PreAnalysisData)

	stats, err := env.deliveryQueue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestPipeline_NoRecipientSkipsDelivery(t *testing.T) {
	llmStub := &scriptedLLM{responses: map[string]string{}}
	renderer := &captureRenderer{output: []byte("%PDF-1.4 doc")}
	env := setupPipeline(t, llmStub, renderer)
	ctx := context.Background()

	job := testJob(false)
	job.UserEmail = ""
	require.NoError(t, env.svc.Run(ctx, job))

	report, err := env.manager.ReportStorage().Get(ctx, "rpt_test")
	require.NoError(t, err)
	assert.True(t, report.HasDocument())
	assert.Empty(t, report.DeliveryJobID)

	stats, err := env.deliveryQueue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestPipeline_ValuationComputedWhenEnabled(t *testing.T) {
	llmStub := &scriptedLLM{responses: map[string]string{
		"Extract the valuation inputs": `{"yearsCollecting":3,"attributablePercent":40,"reliancePercent":80,"currentValue":1000,"yearlyValuations":[100,200,300]}`,
		"scarcity":                     "around 60%",
		"ownership":                    "around 60%",
		"uniqueness":                   "around 60%",
	}}
	renderer := &captureRenderer{output: []byte("%PDF-1.4 doc")}
	env := setupPipeline(t, llmStub, renderer)
	ctx := context.Background()

	require.NoError(t, env.svc.Run(ctx, testJob(true)))

	require.NotNil(t, renderer.content.Valuation)
	assert.Equal(t, 600.0, renderer.content.Valuation.TotalValue)
	assert.Equal(t, 480.0, renderer.content.Valuation.RelianceValue)
	assert.Equal(t, 420.0, renderer.content.Valuation.ValueAfterDecay)
	assert.Equal(t, 252.0, renderer.content.Valuation.UpperBound)
	assert.Equal(t, 176.0, renderer.content.Valuation.LowerBound)

	report, err := env.manager.ReportStorage().Get(ctx, "rpt_test")
	require.NoError(t, err)
	assert.NotEmpty(t, report.ADVData)
}

func TestPipeline_ValuationParseFailureMeansAbsent(t *testing.T) {
	llmStub := &scriptedLLM{responses: map[string]string{
		"Extract the valuation inputs": "no structured data available",
	}}
	renderer := &captureRenderer{output: []byte("%PDF-1.4 doc")}
	env := setupPipeline(t, llmStub, renderer)
	ctx := context.Background()

	require.NoError(t, env.svc.Run(ctx, testJob(true)))

	assert.Nil(t, renderer.content.Valuation)

	report, err := env.manager.ReportStorage().Get(ctx, "rpt_test")
	require.NoError(t, err)
	assert.Empty(t, report.ADVData)
	assert.True(t, report.HasDocument())
}

func TestPipeline_UnrealisticPercentFallsBack(t *testing.T) {
	llmStub := &scriptedLLM{responses: map[string]string{
		// reliancePercent 0 is unrealistic; stage-1 reliance metric (60) applies
		"Extract the valuation inputs": `{"yearsCollecting":1,"attributablePercent":100,"reliancePercent":0,"currentValue":0,"yearlyValuations":[100]}`,
	}}
	renderer := &captureRenderer{output: []byte("%PDF-1.4 doc")}
	env := setupPipeline(t, llmStub, renderer)
	ctx := context.Background()

	require.NoError(t, env.svc.Run(ctx, testJob(true)))

	require.NotNil(t, renderer.content.Valuation)
	// Default stub answer yields 60% for every metric prompt
	assert.Equal(t, 60.0, renderer.content.Valuation.Input.ReliancePercent)
	assert.Equal(t, 60.0, renderer.content.Valuation.Input.AttributablePercent)
}

func TestPipeline_BusReceivesOutcome(t *testing.T) {
	llmStub := &scriptedLLM{responses: map[string]string{}}
	renderer := &captureRenderer{output: []byte("%PDF-1.4 doc")}
	env := setupPipeline(t, llmStub, renderer)
	ctx := context.Background()

	var received []models.Notification
	env.bus.Subscribe("p1_o1", func(n models.Notification) {
		received = append(received, n)
	})

	require.NoError(t, env.svc.Run(ctx, testJob(false)))

	require.Len(t, received, 1)
	assert.Equal(t, "Report completed", received[0].Title)
}
