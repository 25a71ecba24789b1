package models

import (
	"encoding/json"
	"time"
)

// ReportType identifies which document a report job produces
type ReportType string

const (
	ReportTypePreADV     ReportType = "PRE_ADV"
	ReportTypePDV        ReportType = "PDV"
	ReportTypeSupplement ReportType = "SUPPLEMENT"
)

// DeliveryStatus tracks the outcome of a report's scheduled delivery.
// A report that never reached the scheduling stage keeps the empty value.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "delivery_failed"
)

// Answer is one structured question/answer pair from the intake workflow
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ReportJob is the wire payload for the report queue. Immutable once
// enqueued; workers must treat it as read-only.
type ReportJob struct {
	ReportID       string     `json:"reportId" validate:"required"`
	OrgName        string     `json:"orgName" validate:"required"`
	WorkflowID     string     `json:"workflowId"`
	ReportType     ReportType `json:"reportType" validate:"required,oneof=PRE_ADV PDV SUPPLEMENT"`
	UserEmail      string     `json:"userEmail" validate:"omitempty,email"`
	PlatformID     string     `json:"platformId" validate:"required"`
	OrganizationID string     `json:"organizationId" validate:"required"`
	OrgWorkflowID  string     `json:"orgWorkflowId"`
	Subdomain      string     `json:"subdomain"`
	EnableADV      bool       `json:"enableADV"`
	PDVAnswers     []Answer   `json:"pdvAnswers"`
}

// TopicKey returns the notification topic for this job's tenant
func (j *ReportJob) TopicKey() string {
	return j.PlatformID + "_" + j.OrganizationID
}

// Report is the persisted record mutated incrementally by pipeline stages.
// Any of the artifact fields may be absent; downstream consumers must
// tolerate the missing subset.
type Report struct {
	ID             string          `json:"id" badgerhold:"key"`
	OrgName        string          `json:"org_name"`
	ReportType     ReportType      `json:"report_type"`
	PlatformID     string          `json:"platform_id"`
	OrganizationID string          `json:"organization_id"`
	UserEmail      string          `json:"user_email"`

	PreAnalysisData json.RawMessage `json:"pre_analysis_data,omitempty"`
	SupplementData  json.RawMessage `json:"supplement_data,omitempty"`
	ADVData         json.RawMessage `json:"adv_data,omitempty"`
	PDFDocument     []byte          `json:"pdf_document,omitempty"`

	DeliveryStatus DeliveryStatus `json:"delivery_status,omitempty"`
	DeliveryError  string         `json:"delivery_error,omitempty"`
	DeliveryJobID  string         `json:"delivery_job_id,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDocument reports whether the render stage produced an artifact
func (r *Report) HasDocument() bool {
	return len(r.PDFDocument) > 0
}
