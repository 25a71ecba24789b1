package mailer

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valora-io/valora/internal/models"
)

func TestBuildMessage_HeadersAndBodies(t *testing.T) {
	job := &models.EmailJob{
		ToEmail:  "user@acme.test",
		Subject:  "Your report is ready",
		TextBody: "The report is attached.",
		HTMLBody: "<p>The report is attached.</p>",
	}

	msgID, raw, err := buildMessage(job, "reports@valora.local", "Valora Reports")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msgID, "<"))
	assert.True(t, strings.HasSuffix(msgID, "@valora>"))

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Your report is ready", subject)

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "reports@valora.local", from[0].Address)

	var bodies []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			data, err := io.ReadAll(part.Body)
			require.NoError(t, err)
			bodies = append(bodies, string(data))
		}
	}
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], "The report is attached.")
	assert.Contains(t, bodies[1], "<p>")
}

func TestBuildMessage_AttachmentRoundTrip(t *testing.T) {
	pdfBytes := []byte("%PDF-1.4 test document")

	job := &models.EmailJob{
		ToEmail:  "user@acme.test",
		Subject:  "Report",
		TextBody: "See attachment.",
		Attachments: []models.EmailAttachment{
			{
				Name:          "report.pdf",
				ContentBase64: base64.StdEncoding.EncodeToString(pdfBytes),
				MimeType:      "application/pdf",
			},
		},
	}

	_, raw, err := buildMessage(job, "reports@valora.local", "")
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	var found bool
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if ah, ok := part.Header.(*mail.AttachmentHeader); ok {
			filename, err := ah.Filename()
			require.NoError(t, err)
			assert.Equal(t, "report.pdf", filename)

			data, err := io.ReadAll(part.Body)
			require.NoError(t, err)
			assert.Equal(t, pdfBytes, data)
			found = true
		}
	}
	assert.True(t, found, "attachment part not found")
}

func TestBuildMessage_BadAttachmentEncoding(t *testing.T) {
	job := &models.EmailJob{
		ToEmail: "user@acme.test",
		Subject: "Report",
		Attachments: []models.EmailAttachment{
			{Name: "x.bin", ContentBase64: "!!not-base64!!"},
		},
	}

	_, _, err := buildMessage(job, "reports@valora.local", "")
	assert.Error(t, err)
}
