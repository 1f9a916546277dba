package handler

import (
	"time"

	"inbox-triage-go/internal/model"
	"inbox-triage-go/internal/triage"
)

// MessageResponse represents the response structure for a message
type MessageResponse struct {
	ID                uint           `json:"id"`
	ExternalID        string         `json:"external_id"`
	ThreadID          *string        `json:"thread_id"`
	Sender            string         `json:"sender"`
	Recipients        []string       `json:"recipients"`
	CC                []string       `json:"cc"`
	Subject           string         `json:"subject"`
	Snippet           string         `json:"snippet"`
	Body              string         `json:"body"`
	ReceivedAt        time.Time      `json:"received_at"`
	Status            model.Status   `json:"status"`
	LeadFlag          bool           `json:"lead_flag"`
	Category          *string        `json:"category"`
	Priority          *string        `json:"priority"`
	ExtractedEntities map[string]any `json:"extracted_entities"`
	SuggestedReply    *string        `json:"suggested_reply"`
	ReplyGeneratedAt  *time.Time     `json:"reply_generated_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func toMessageResponse(m *model.Message) MessageResponse {
	var entities map[string]any
	if len(m.ExtractedEntities) > 0 {
		entities = m.ExtractedEntities
	}
	return MessageResponse{
		ID:                m.ID,
		ExternalID:        m.ExternalID,
		ThreadID:          m.ThreadID,
		Sender:            m.Sender,
		Recipients:        nonNil(m.Recipients),
		CC:                nonNil(m.CC),
		Subject:           m.Subject,
		Snippet:           m.Snippet,
		Body:              m.Body,
		ReceivedAt:        m.ReceivedAt,
		Status:            m.Status,
		LeadFlag:          m.LeadFlag,
		Category:          m.Category,
		Priority:          m.Priority,
		ExtractedEntities: entities,
		SuggestedReply:    m.SuggestedReply,
		ReplyGeneratedAt:  m.ReplyGeneratedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// MessageListResponse wraps a list of messages
type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// MessageEnvelope wraps a single message after a pipeline operation
type MessageEnvelope struct {
	Message MessageResponse `json:"message"`
}

// SendReplyRequest accepts the reply body as JSON or form data
type SendReplyRequest struct {
	ReplyBody string `json:"reply_body" form:"reply_body"`
}

// SendReplyResponse is returned after a reply is sent
type SendReplyResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Email   MessageResponse `json:"email"`
}

// SyncResponse is returned by the sync endpoint
type SyncResponse struct {
	Success bool `json:"success"`
	triage.Result
}

// ResetResponse is returned by the reset endpoint
type ResetResponse struct {
	Success bool  `json:"success"`
	Deleted int64 `json:"deleted"`
}

// ProviderStatus describes one configured provider
type ProviderStatus struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Details map[string]string `json:"details,omitempty"`
}

// ProvidersResponse lists the mailbox and language-model providers
type ProvidersResponse struct {
	Providers []ProviderStatus `json:"providers"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Mailbox   string            `json:"mailbox"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
