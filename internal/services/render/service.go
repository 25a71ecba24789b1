package render

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/valora-io/valora/internal/interfaces"
)

// Service implements interfaces.RenderService. The report sections are
// composed into a markdown document and rendered page by page; sections
// whose data is absent are left out rather than rendered empty.
type Service struct {
	logger arbor.ILogger
}

var _ interfaces.RenderService = (*Service)(nil)

// NewService creates a new render service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// Render produces the PDF artifact for a report
func (s *Service) Render(content interfaces.ReportContent) ([]byte, error) {
	markdown := composeMarkdown(content)

	s.logger.Debug().
		Str("title", content.Title).
		Int("markdown_len", len(markdown)).
		Msg("Rendering report PDF")

	data, err := s.markdownToPDF(markdown, content.Title)
	if err != nil {
		return nil, err
	}

	// Structural validation before the bytes are persisted or mailed
	if err := api.Validate(bytes.NewReader(data), nil); err != nil {
		return nil, fmt.Errorf("generated PDF failed validation: %w", err)
	}

	s.logger.Debug().Int("pdf_size", len(data)).Msg("Report PDF generated")
	return data, nil
}

// markdownToPDF converts markdown content to a PDF byte slice
func (s *Service) markdownToPDF(markdown, title string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.SetTitle(title, true)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 9)

	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	renderer := &pdfRenderer{
		pdf:    pdf,
		source: source,
		font:   "Arial",
		size:   9,
	}

	if err := renderer.render(doc); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	return buf.Bytes(), nil
}
