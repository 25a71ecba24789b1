package interfaces

import (
	"context"

	"github.com/valora-io/valora/internal/models"
)

// MailService sends email jobs over SMTP
type MailService interface {
	// Send transmits the email and returns the generated Message-ID
	Send(ctx context.Context, job *models.EmailJob) (string, error)
}
