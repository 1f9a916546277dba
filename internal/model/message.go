package model

import (
	"time"

	"gorm.io/datatypes"
)

// Status is the triage lifecycle state of a message
type Status string

const (
	StatusPending        Status = "pending"
	StatusClassified     Status = "classified"
	StatusNoReplyNeeded  Status = "no_reply_needed"
	StatusReplyGenerated Status = "reply_generated"
	StatusReplySent      Status = "reply_sent"
)

// Rank orders statuses along the lifecycle. The two outcomes of reply
// drafting share a rank. Unknown statuses rank below pending.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusClassified:
		return 1
	case StatusNoReplyNeeded, StatusReplyGenerated:
		return 2
	case StatusReplySent:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// CanAdvance reports whether moving from one status to another keeps the
// lifecycle non-decreasing. Re-triage bypasses this check on purpose.
func CanAdvance(from, to Status) bool {
	return to.Valid() && to.Rank() >= from.Rank()
}

// Classification categories
const (
	CategorySalesLead      = "SALES_LEAD"
	CategorySupportRequest = "SUPPORT_REQUEST"
	CategoryInternal       = "INTERNAL"
	CategoryOther          = "OTHER"
)

// Priorities
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"
)

// Categories lists the accepted category values
var Categories = []string{CategorySalesLead, CategorySupportRequest, CategoryInternal, CategoryOther}

// Priorities lists the accepted priority values
var Priorities = []string{PriorityHigh, PriorityMedium, PriorityLow}

// Message is one ingested inbox message and its triage state
type Message struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ExternalID string    `json:"external_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ThreadID   *string   `json:"thread_id" gorm:"type:varchar(255)"`
	Sender     string    `json:"sender" gorm:"type:varchar(512);not null"`
	Recipients []string  `json:"recipients" gorm:"type:text;serializer:json"`
	CC         []string  `json:"cc" gorm:"column:cc;type:text;serializer:json"`
	Subject    string    `json:"subject" gorm:"type:varchar(1024)"`
	Snippet    string    `json:"snippet" gorm:"type:text"`
	Body       string    `json:"body" gorm:"type:text"`
	ReceivedAt time.Time `json:"received_at" gorm:"not null;index"`

	Status            Status            `json:"status" gorm:"type:varchar(32);not null;default:pending;index"`
	LeadFlag          bool              `json:"lead_flag" gorm:"not null;default:false;index"`
	Category          *string           `json:"category" gorm:"type:varchar(32);index"`
	Priority          *string           `json:"priority" gorm:"type:varchar(16);index"`
	ExtractedEntities datatypes.JSONMap `json:"extracted_entities"`
	SuggestedReply    *string           `json:"suggested_reply" gorm:"type:text"`
	ReplyGeneratedAt  *time.Time        `json:"reply_generated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Classification is the output of classifying one message
type Classification struct {
	LeadFlag bool           `json:"lead_flag"`
	Category string         `json:"category"`
	Priority string         `json:"priority"`
	Entities map[string]any `json:"entities"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "messages"
}

// PriorityValue returns the priority or an empty string when unset
func (m *Message) PriorityValue() string {
	if m.Priority == nil {
		return ""
	}
	return *m.Priority
}

// ThreadValue returns the thread id or an empty string when unset
func (m *Message) ThreadValue() string {
	if m.ThreadID == nil {
		return ""
	}
	return *m.ThreadID
}

// NeedsReply applies the drafting rule: leads and HIGH or MEDIUM priority
// messages get a reply.
func (m *Message) NeedsReply() bool {
	if m.LeadFlag {
		return true
	}
	switch m.PriorityValue() {
	case PriorityHigh, PriorityMedium:
		return true
	}
	return false
}
