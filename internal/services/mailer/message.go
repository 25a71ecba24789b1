package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/valora-io/valora/internal/models"
)

// buildMessage assembles the full MIME message for an email job and
// returns the generated Message-ID together with the raw bytes.
// Attachments arrive base64-encoded on the wire payload and are decoded
// here so the MIME writer applies its own transfer encoding.
func buildMessage(job *models.EmailJob, from, fromName string) (string, []byte, error) {
	msgID := fmt.Sprintf("%s@valora", uuid.New().String())

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: fromName, Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: job.ToEmail}})
	h.SetSubject(job.Subject)
	h.SetMessageID(msgID)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create mail writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return "", nil, fmt.Errorf("failed to create inline writer: %w", err)
	}

	if job.TextBody != "" {
		var th mail.InlineHeader
		th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(th)
		if err != nil {
			return "", nil, fmt.Errorf("failed to create text part: %w", err)
		}
		if _, err := io.WriteString(pw, job.TextBody); err != nil {
			return "", nil, err
		}
		pw.Close()
	}

	if job.HTMLBody != "" {
		var hh mail.InlineHeader
		hh.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(hh)
		if err != nil {
			return "", nil, fmt.Errorf("failed to create html part: %w", err)
		}
		if _, err := io.WriteString(pw, job.HTMLBody); err != nil {
			return "", nil, err
		}
		pw.Close()
	}

	if err := iw.Close(); err != nil {
		return "", nil, err
	}

	for _, att := range job.Attachments {
		content, err := base64.StdEncoding.DecodeString(att.ContentBase64)
		if err != nil {
			return "", nil, fmt.Errorf("failed to decode attachment %q: %w", att.Name, err)
		}

		mimeType := att.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		var ah mail.AttachmentHeader
		ah.SetFilename(att.Name)
		ah.SetContentType(mimeType, nil)
		if att.ContentID != "" {
			ah.Set("Content-Id", fmt.Sprintf("<%s>", att.ContentID))
		}

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return "", nil, fmt.Errorf("failed to create attachment %q: %w", att.Name, err)
		}
		if _, err := aw.Write(content); err != nil {
			return "", nil, err
		}
		aw.Close()
	}

	if err := mw.Close(); err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("<%s>", msgID), buf.Bytes(), nil
}
