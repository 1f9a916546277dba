package triage

import (
	"context"
	"sort"
	"sync"
	"time"

	"inbox-triage-go/internal/llm"
	"inbox-triage-go/internal/model"
	"inbox-triage-go/internal/provider"
	"inbox-triage-go/internal/repository"
)

// memStore is an in-memory repository.Store
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	messages map[uint]model.Message
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{messages: make(map[uint]model.Message)}
}

func (s *memStore) UpsertByExternalID(_ context.Context, messages []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, in := range messages {
		existing, ok := s.findByExternalID(in.ExternalID)
		if ok {
			existing.ThreadID = in.ThreadID
			existing.Sender = in.Sender
			existing.Recipients = in.Recipients
			existing.CC = in.CC
			existing.Subject = in.Subject
			existing.Snippet = in.Snippet
			existing.Body = in.Body
			existing.ReceivedAt = in.ReceivedAt
			existing.UpdatedAt = now
			s.messages[existing.ID] = existing
			continue
		}
		s.nextID++
		in.ID = s.nextID
		in.Status = model.StatusPending
		in.CreatedAt = now
		in.UpdatedAt = now
		s.messages[in.ID] = in
	}
	return nil
}

func (s *memStore) findByExternalID(externalID string) (model.Message, bool) {
	for _, m := range s.messages {
		if m.ExternalID == externalID {
			return m, true
		}
	}
	return model.Message{}, false
}

func (s *memStore) Get(_ context.Context, id uint) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (s *memStore) sorted() []model.Message {
	out := make([]model.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *memStore) List(_ context.Context, filter repository.Filter) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.sorted() {
		if filter.IsLead != nil && m.LeadFlag != *filter.IsLead {
			continue
		}
		if filter.Category != "" && (m.Category == nil || *m.Category != filter.Category) {
			continue
		}
		if filter.Priority != "" && m.PriorityValue() != filter.Priority {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *memStore) ListByStatus(_ context.Context, status model.Status, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.sorted() {
		if m.Status != status {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) modify(id uint, fn func(m *model.Message)) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	fn(&m)
	m.UpdatedAt = time.Now()
	s.messages[id] = m
	return &m, nil
}

func (s *memStore) SaveClassification(_ context.Context, msg *model.Message, c model.Classification) (*model.Message, error) {
	return s.modify(msg.ID, func(m *model.Message) {
		category, priority := c.Category, c.Priority
		m.LeadFlag = c.LeadFlag
		m.Category = &category
		m.Priority = &priority
		m.ExtractedEntities = c.Entities
		m.SuggestedReply = nil
		m.ReplyGeneratedAt = nil
		m.Status = model.StatusClassified
	})
}

func (s *memStore) SaveReply(_ context.Context, msg *model.Message, body string) (*model.Message, error) {
	return s.modify(msg.ID, func(m *model.Message) {
		now := time.Now()
		m.SuggestedReply = &body
		m.ReplyGeneratedAt = &now
		m.Status = model.StatusReplyGenerated
	})
}

func (s *memStore) UpdateStatus(_ context.Context, msg *model.Message, status model.Status) (*model.Message, error) {
	return s.modify(msg.ID, func(m *model.Message) {
		m.Status = status
	})
}

func (s *memStore) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.messages))
	s.messages = make(map[uint]model.Message)
	return n, nil
}

func (s *memStore) CountByStatus(_ context.Context) (map[model.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.Status]int64)
	for _, m := range s.messages {
		counts[m.Status]++
	}
	return counts, nil
}

func (s *memStore) Ping(context.Context) error { return nil }

// fakeMailbox serves the mock catalog and records sends
type fakeMailbox struct {
	mock *provider.MockProvider

	mu     sync.Mutex
	sendOK bool
	sent   []provider.Reply
	resets int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{mock: provider.NewMockProvider(""), sendOK: true}
}

func (f *fakeMailbox) ListRecentMessages(ctx context.Context, limit int) []provider.RawMessage {
	messages, _ := f.mock.ListRecentMessages(ctx, limit)
	return messages
}

func (f *fakeMailbox) SendReply(_ context.Context, reply provider.Reply) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sendOK {
		return false
	}
	f.sent = append(f.sent, reply)
	return true
}

func (f *fakeMailbox) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	f.mock.Reset()
}

// scriptedBackend answers each request kind with a canned function
type scriptedBackend struct {
	classify func(in llm.Input) (string, error)
	reply    func(in llm.Input) (string, error)

	mu       sync.Mutex
	requests []llm.Request
}

func (b *scriptedBackend) Name() string  { return "scripted" }
func (b *scriptedBackend) Model() string { return "test" }

func (b *scriptedBackend) Complete(_ context.Context, req llm.Request) (string, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	switch req.Kind {
	case llm.KindClassify:
		return b.classify(req.Input)
	default:
		return b.reply(req.Input)
	}
}

func (b *scriptedBackend) count(kind llm.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func fixed(s string) func(llm.Input) (string, error) {
	return func(llm.Input) (string, error) { return s, nil }
}
