package models

// EmailAttachment is one base64-encoded attachment on an email job
type EmailAttachment struct {
	Name          string `json:"name"`
	ContentBase64 string `json:"contentBase64"`
	ContentID     string `json:"contentId,omitempty"`
	MimeType      string `json:"mimeType"`
}

// EmailJob is the wire payload for the delivery queue. CorrelationID
// links the job back to the report record it delivers, when there is one;
// ad-hoc emails leave it empty and skip record updates on completion.
type EmailJob struct {
	FromEmail     string            `json:"fromEmail"`
	ToEmail       string            `json:"toEmail" validate:"required,email"`
	Subject       string            `json:"subject" validate:"required"`
	HTMLBody      string            `json:"htmlBody"`
	TextBody      string            `json:"textBody"`
	Attachments   []EmailAttachment `json:"attachments,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
}
