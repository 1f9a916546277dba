package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inbox-triage-go/internal/model"
)

// ErrNotFound is returned when a message id does not exist
var ErrNotFound = errors.New("message not found")

// envelopeColumns are replaced on re-ingest; triage columns are left alone.
var envelopeColumns = []string{
	"thread_id", "sender", "recipients", "cc", "subject", "snippet", "body", "received_at", "updated_at",
}

// Filter narrows List results. Nil or empty fields do not filter.
type Filter struct {
	IsLead   *bool
	Category string
	Priority string
}

// Store is the persistence contract the triage service depends on.
type Store interface {
	UpsertByExternalID(ctx context.Context, messages []model.Message) error
	Get(ctx context.Context, id uint) (*model.Message, error)
	List(ctx context.Context, filter Filter) ([]model.Message, error)
	ListByStatus(ctx context.Context, status model.Status, limit int) ([]model.Message, error)
	SaveClassification(ctx context.Context, msg *model.Message, c model.Classification) (*model.Message, error)
	SaveReply(ctx context.Context, msg *model.Message, body string) (*model.Message, error)
	UpdateStatus(ctx context.Context, msg *model.Message, status model.Status) (*model.Message, error)
	DeleteAll(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[model.Status]int64, error)
	Ping(ctx context.Context) error
}

// Repository implements Store on top of gorm
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertByExternalID inserts new messages as pending and refreshes the
// envelope of ones already stored, all in a single transaction.
func (r *Repository) UpsertByExternalID(ctx context.Context, messages []model.Message) error {
	rows := dedupeByExternalID(messages)
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].ID = 0
		rows[i].Status = model.StatusPending
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(envelopeColumns),
		}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert messages: %w", err)
	}
	return nil
}

// dedupeByExternalID keeps the last occurrence of each external id, in
// first-seen order. A single INSERT cannot touch the same conflict row twice.
func dedupeByExternalID(messages []model.Message) []model.Message {
	index := make(map[string]int, len(messages))
	out := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if i, ok := index[m.ExternalID]; ok {
			out[i] = m
			continue
		}
		index[m.ExternalID] = len(out)
		out = append(out, m)
	}
	return out
}

func (r *Repository) Get(ctx context.Context, id uint) (*model.Message, error) {
	var msg model.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &msg, nil
}

// List returns messages matching the filter, most recently received first
func (r *Repository) List(ctx context.Context, filter Filter) ([]model.Message, error) {
	q := r.db.WithContext(ctx).Model(&model.Message{})
	if filter.IsLead != nil {
		q = q.Where("lead_flag = ?", *filter.IsLead)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", filter.Priority)
	}

	var messages []model.Message
	if err := q.Order("received_at DESC").Order("id DESC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// ListByStatus returns up to limit messages in the given status, in List order.
// A non-positive limit returns all of them.
func (r *Repository) ListByStatus(ctx context.Context, status model.Status, limit int) ([]model.Message, error) {
	q := r.db.WithContext(ctx).Where("status = ?", status).Order("received_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var messages []model.Message
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s messages: %w", status, err)
	}
	return messages, nil
}

// SaveClassification writes every classification output together with the
// classified status in one UPDATE. A previously drafted reply is cleared.
func (r *Repository) SaveClassification(ctx context.Context, msg *model.Message, c model.Classification) (*model.Message, error) {
	var entities any
	if c.Entities != nil {
		entities = datatypes.JSONMap(c.Entities)
	}
	return r.update(ctx, msg, map[string]any{
		"lead_flag":          c.LeadFlag,
		"category":           c.Category,
		"priority":           c.Priority,
		"extracted_entities": entities,
		"suggested_reply":    nil,
		"reply_generated_at": nil,
		"status":             model.StatusClassified,
	})
}

// SaveReply stores the drafted reply, stamps it and marks the message reply_generated
func (r *Repository) SaveReply(ctx context.Context, msg *model.Message, body string) (*model.Message, error) {
	return r.update(ctx, msg, map[string]any{
		"suggested_reply":    body,
		"reply_generated_at": time.Now(),
		"status":             model.StatusReplyGenerated,
	})
}

func (r *Repository) UpdateStatus(ctx context.Context, msg *model.Message, status model.Status) (*model.Message, error) {
	return r.update(ctx, msg, map[string]any{"status": status})
}

func (r *Repository) update(ctx context.Context, msg *model.Message, fields map[string]any) (*model.Message, error) {
	res := r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", msg.ID).Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update message %d: %w", msg.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("message %d: %w", msg.ID, ErrNotFound)
	}
	return r.Get(ctx, msg.ID)
}

// DeleteAll removes every message and returns how many were deleted
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.Message{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repository) CountByStatus(ctx context.Context) (map[model.Status]int64, error) {
	var rows []struct {
		Status model.Status
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	counts := make(map[model.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
