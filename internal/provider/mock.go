package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMockRecipient is used when no mailbox address is configured
const DefaultMockRecipient = "triage@example.com"

type mockTemplate struct {
	sender  string
	subject string
	snippet string
	body    string
}

// mockCatalog mixes sales leads, support requests, internal mail and noise.
var mockCatalog = []mockTemplate{
	{"prospect@example.com", "Demo inquiry", "Interested in automation services",
		"Hello, we would like to learn more about your AI automation offerings. Can we schedule a demo?"},
	{"buyer@company.com", "Pricing information request", "Looking for pricing details",
		"Hi, I'm interested in your product. Could you send me pricing information?"},
	{"customer@example.com", "Issue with my account", "Having trouble logging in",
		"I'm having trouble logging into my account. Can you help me reset my password?"},
	{"user@example.com", "Bug report", "Found a bug in the system",
		"I found a bug when trying to export data. The export button doesn't work."},
	{"colleague@company.com", "Team meeting tomorrow", "Reminder about the meeting",
		"Just a reminder that we have a team meeting tomorrow at 2 PM."},
	{"manager@company.com", "Weekly report", "Please review the report",
		"Please review the weekly report and provide feedback by Friday."},
	{"newsletter@example.com", "Weekly newsletter", "Your weekly digest",
		"Here's your weekly newsletter with the latest updates."},
	{"noreply@example.com", "Your order has shipped", "Order confirmation",
		"Your order #12345 has been shipped and will arrive in 3-5 business days."},
	{"decision-maker@bigcorp.com", "Enterprise inquiry", "Interested in enterprise solution",
		"We're evaluating solutions for our enterprise. Can we discuss your enterprise features?"},
	{"startup@newco.io", "Partnership opportunity", "Interested in partnership",
		"We're a startup looking for partners. Would you be interested in a partnership?"},
}

// MockCatalogSize is the number of distinct templates the generator cycles through
var MockCatalogSize = len(mockCatalog)

// MockProvider generates deterministic sample messages. Each call continues
// the sequence where the previous one stopped until Reset rewinds it.
type MockProvider struct {
	recipient string
	now       func() time.Time

	mu   sync.Mutex
	next int
}

// NewMockProvider creates a generator addressed to recipient
func NewMockProvider(recipient string) *MockProvider {
	if recipient == "" {
		recipient = DefaultMockRecipient
	}
	return &MockProvider{recipient: recipient, now: time.Now}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) IsConfigured() bool { return true }

// ListRecentMessages returns the next limit messages of the sequence.
// Within one call the first message is the most recent.
func (m *MockProvider) ListRecentMessages(_ context.Context, limit int) ([]RawMessage, error) {
	if limit <= 0 {
		return []RawMessage{}, nil
	}

	m.mu.Lock()
	start := m.next
	m.next += limit
	m.mu.Unlock()

	now := m.now()
	messages := make([]RawMessage, 0, limit)
	for offset := 0; offset < limit; offset++ {
		messages = append(messages, m.message(start+offset, now.Add(-time.Duration(offset)*time.Second)))
	}
	return messages, nil
}

func (m *MockProvider) message(index int, receivedAt time.Time) RawMessage {
	tpl := mockCatalog[index%len(mockCatalog)]
	return RawMessage{
		ExternalID: fmt.Sprintf("mock-%d", index),
		ThreadID:   fmt.Sprintf("thread-%d", index),
		Sender:     tpl.sender,
		Recipients: []string{m.recipient},
		CC:         []string{},
		Subject:    fmt.Sprintf("%s #%d", tpl.subject, index),
		Snippet:    tpl.snippet,
		Body:       tpl.body,
		ReceivedAt: receivedAt,
	}
}

// SendReply only logs; nothing leaves the process.
func (m *MockProvider) SendReply(_ context.Context, reply Reply) error {
	logrus.WithFields(logrus.Fields{
		"to":        reply.To,
		"thread_id": reply.ThreadID,
	}).Infof("[MOCK] Would send reply: %s", truncate(reply.Subject, 50))
	return nil
}

// Reset rewinds the sequence to mock-0
func (m *MockProvider) Reset() {
	m.mu.Lock()
	m.next = 0
	m.mu.Unlock()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
