package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"inbox-triage-go/internal/metrics"
	"inbox-triage-go/internal/model"
	"inbox-triage-go/internal/provider"
	"inbox-triage-go/internal/repository"
)

const (
	defaultSyncLimit   = 10
	defaultBatchSize   = 5
	defaultCallTimeout = 30 * time.Second
)

// Mailbox is the part of the provider adapter the service needs
type Mailbox interface {
	ListRecentMessages(ctx context.Context, limit int) []provider.RawMessage
	SendReply(ctx context.Context, reply provider.Reply) bool
	Reset()
}

// Options tunes a bulk run
type Options struct {
	SyncLimit   int
	BatchSize   int
	CallTimeout time.Duration
}

// Result summarises one bulk run
type Result struct {
	RunID            string `json:"run_id"`
	Synced           int    `json:"synced"`
	Classified       int    `json:"classified"`
	RepliesGenerated int    `json:"replies_generated"`
	NoReplyNeeded    int    `json:"no_reply_needed"`
	Failed           int    `json:"failed"`
}

// Service drives messages through
// pending -> classified -> {no_reply_needed | reply_generated} -> reply_sent.
type Service struct {
	store      repository.Store
	mailbox    Mailbox
	classifier *Classifier
	drafter    *Drafter
	metrics    *metrics.Metrics
	opts       Options
	runs       singleflight.Group
}

// NewService creates a triage service. Zero options fall back to defaults and
// a nil metrics set is replaced by one on a private registry.
func NewService(store repository.Store, mailbox Mailbox, classifier *Classifier, drafter *Drafter, m *metrics.Metrics, opts Options) *Service {
	if opts.SyncLimit <= 0 {
		opts.SyncLimit = defaultSyncLimit
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry())
	}

	return &Service{
		store:      store,
		mailbox:    mailbox,
		classifier: classifier,
		drafter:    drafter,
		metrics:    m,
		opts:       opts,
	}
}

// Sync fetches up to limit recent messages and upserts them by external id.
// The adapter never fails, so only persistence errors are returned.
func (s *Service) Sync(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = s.opts.SyncLimit
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	raws := s.mailbox.ListRecentMessages(fetchCtx, limit)
	cancel()

	if len(raws) == 0 {
		return 0, nil
	}

	messages := make([]model.Message, 0, len(raws))
	for _, raw := range raws {
		messages = append(messages, toMessage(raw))
	}

	if err := s.store.UpsertByExternalID(ctx, messages); err != nil {
		return 0, fmt.Errorf("failed to store synced messages: %w", err)
	}

	s.metrics.MessagesIngested.Add(float64(len(messages)))
	logrus.Infof("Synced %d messages", len(messages))
	return len(messages), nil
}

func toMessage(raw provider.RawMessage) model.Message {
	msg := model.Message{
		ExternalID: raw.ExternalID,
		Sender:     raw.Sender,
		Recipients: raw.Recipients,
		CC:         raw.CC,
		Subject:    raw.Subject,
		Snippet:    raw.Snippet,
		Body:       raw.Body,
		ReceivedAt: raw.ReceivedAt,
		Status:     model.StatusPending,
	}
	if raw.ThreadID != "" {
		thread := raw.ThreadID
		msg.ThreadID = &thread
	}
	return msg
}

// Classify labels msg and persists the result with status classified
func (s *Service) Classify(ctx context.Context, msg *model.Message) (*model.Message, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	c, err := s.classifier.Classify(callCtx, msg.Subject, msg.Body)
	if err != nil {
		s.metrics.ClassificationFailure.Inc()
		return nil, err
	}

	updated, err := s.store.SaveClassification(ctx, msg, c)
	if err != nil {
		return nil, fmt.Errorf("failed to save classification: %w", err)
	}

	s.metrics.Classified.Inc()
	return updated, nil
}

// EnsureReply drafts a reply when the message needs one and marks the rest
// no_reply_needed. The returned message carries the new status.
func (s *Service) EnsureReply(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if !msg.NeedsReply() {
		if err := checkTransition(msg, model.StatusNoReplyNeeded); err != nil {
			return nil, err
		}
		updated, err := s.store.UpdateStatus(ctx, msg, model.StatusNoReplyNeeded)
		if err != nil {
			return nil, fmt.Errorf("failed to update status: %w", err)
		}
		s.metrics.NoReplyNeeded.Inc()
		return updated, nil
	}
	return s.draft(ctx, msg)
}

func (s *Service) draft(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := checkTransition(msg, model.StatusReplyGenerated); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	body, err := s.drafter.Draft(callCtx, msg.Subject, msg.Body, msg.Snippet)
	if err != nil {
		s.metrics.ReplyFailures.Inc()
		return nil, err
	}

	updated, err := s.store.SaveReply(ctx, msg, body)
	if err != nil {
		return nil, fmt.Errorf("failed to save reply: %w", err)
	}

	s.metrics.RepliesGenerated.Inc()
	return updated, nil
}

func checkTransition(msg *model.Message, to model.Status) error {
	if !model.CanAdvance(msg.Status, to) {
		return &TransitionError{MessageID: msg.ID, From: msg.Status, To: to}
	}
	return nil
}

// Retriage classifies one message again and re-applies the reply rule.
// Classification resets the status, so any message can be retriaged.
func (s *Service) Retriage(ctx context.Context, id uint) (*model.Message, error) {
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	classified, err := s.Classify(ctx, msg)
	if err != nil {
		return nil, err
	}
	return s.EnsureReply(ctx, classified)
}

// DraftReply generates a reply regardless of the reply rule
func (s *Service) DraftReply(ctx context.Context, id uint) (*model.Message, error) {
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.draft(ctx, msg)
}

// SendReply sends body, or the stored suggested reply when body is blank,
// to the original sender and marks the message reply_sent.
func (s *Service) SendReply(ctx context.Context, id uint, body string) (*model.Message, error) {
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	body = strings.TrimSpace(body)
	if body == "" && msg.SuggestedReply != nil {
		body = strings.TrimSpace(*msg.SuggestedReply)
	}
	if body == "" {
		return nil, &SendError{MessageID: id, Reason: SendMissingBody}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	ok := s.mailbox.SendReply(sendCtx, provider.Reply{
		To:       msg.Sender,
		Subject:  ReplySubject(msg.Subject),
		Body:     body,
		ThreadID: msg.ThreadValue(),
	})
	if !ok {
		s.metrics.SendFailures.Inc()
		return nil, &SendError{MessageID: id, Reason: SendProviderFailure}
	}

	updated, err := s.store.UpdateStatus(ctx, msg, model.StatusReplySent)
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	s.metrics.SendSuccesses.Inc()
	logrus.Infof("Sent reply for message %d to %s", id, msg.Sender)
	return updated, nil
}

// RunTriage syncs and then processes up to BatchSize pending messages in
// order. Per-message failures are counted and skipped. Concurrent callers
// asking for the same limit share one run.
func (s *Service) RunTriage(ctx context.Context, limit int) (Result, error) {
	key := fmt.Sprintf("triage:%d", limit)
	v, err, shared := s.runs.Do(key, func() (interface{}, error) {
		return s.runTriage(ctx, limit)
	})
	if shared {
		logrus.Debug("Joined an in-flight triage run")
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (s *Service) runTriage(ctx context.Context, limit int) (Result, error) {
	result := Result{RunID: uuid.NewString()}
	log := logrus.WithField("run_id", result.RunID)
	log.Info("Starting triage run")

	startTime := time.Now()
	s.metrics.SyncRuns.Inc()
	defer func() {
		s.metrics.ProcessingTime.Observe(time.Since(startTime).Seconds())
	}()

	synced, err := s.Sync(ctx, limit)
	if err != nil {
		return result, err
	}
	result.Synced = synced

	pending, err := s.store.ListByStatus(ctx, model.StatusPending, s.opts.BatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list pending messages: %w", err)
	}

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s.processMessage(ctx, log, &pending[i], &result)
	}

	log.WithFields(logrus.Fields{
		"synced":            result.Synced,
		"classified":        result.Classified,
		"replies_generated": result.RepliesGenerated,
		"no_reply_needed":   result.NoReplyNeeded,
		"failed":            result.Failed,
		"duration":          time.Since(startTime).String(),
	}).Info("Triage run completed")
	return result, nil
}

func (s *Service) processMessage(ctx context.Context, log *logrus.Entry, msg *model.Message, result *Result) {
	log = log.WithField("message_id", msg.ID)

	classified, err := s.Classify(ctx, msg)
	if err != nil {
		result.Failed++
		log.Warnf("Failed to classify message: %v", err)
		return
	}
	result.Classified++

	updated, err := s.EnsureReply(ctx, classified)
	if err != nil {
		result.Failed++
		log.Warnf("Failed to draft reply: %v", err)
		return
	}

	switch updated.Status {
	case model.StatusReplyGenerated:
		result.RepliesGenerated++
	case model.StatusNoReplyNeeded:
		result.NoReplyNeeded++
	}
}

// Get returns one message
func (s *Service) Get(ctx context.Context, id uint) (*model.Message, error) {
	return s.store.Get(ctx, id)
}

// List returns messages newest first
func (s *Service) List(ctx context.Context, filter repository.Filter) ([]model.Message, error) {
	return s.store.List(ctx, filter)
}

// Stats returns message counts per status
func (s *Service) Stats(ctx context.Context) (map[model.Status]int64, error) {
	return s.store.CountByStatus(ctx)
}

// Reset deletes every stored message and rewinds the mock catalog
func (s *Service) Reset(ctx context.Context) (int64, error) {
	deleted, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	s.mailbox.Reset()
	logrus.Infof("Reset removed %d messages", deleted)
	return deleted, nil
}

// IsNotFound reports whether err means the message does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// Ping checks that the store is reachable
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
