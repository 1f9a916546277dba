package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"inbox-triage-go/internal/model"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Message{}))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return New(db)
}

func rawMessage(externalID, subject string, receivedAt time.Time) model.Message {
	return model.Message{
		ExternalID: externalID,
		Sender:     "sender@example.com",
		Recipients: []string{"me@example.com", "team@example.com"},
		Subject:    subject,
		Body:       "body of " + subject,
		ReceivedAt: receivedAt,
	}
}

func TestUpsertInsertsPending(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.UpsertByExternalID(ctx, []model.Message{
		rawMessage("ext-1", "first", now),
		rawMessage("ext-2", "second", now.Add(-time.Minute)),
	}))

	messages, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "ext-1", messages[0].ExternalID)
	assert.Equal(t, model.StatusPending, messages[0].Status)
	assert.Equal(t, []string{"me@example.com", "team@example.com"}, messages[0].Recipients)
}

func TestUpsertIsIdempotentAndKeepsTriageState(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.UpsertByExternalID(ctx, []model.Message{rawMessage("ext-1", "original", now)}))

	stored, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	id := stored[0].ID

	_, err = repo.SaveClassification(ctx, &stored[0], model.Classification{
		LeadFlag: true,
		Category: model.CategorySalesLead,
		Priority: model.PriorityHigh,
	})
	require.NoError(t, err)

	updated := rawMessage("ext-1", "edited", now.Add(time.Minute))
	updated.Sender = "other@example.com"
	require.NoError(t, repo.UpsertByExternalID(ctx, []model.Message{updated}))

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "edited", got.Subject)
	assert.Equal(t, "other@example.com", got.Sender)
	assert.Equal(t, model.StatusClassified, got.Status)
	assert.True(t, got.LeadFlag)
	require.NotNil(t, got.Category)
	assert.Equal(t, model.CategorySalesLead, *got.Category)
}

func TestUpsertCollapsesDuplicatesInOneBatch(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.UpsertByExternalID(ctx, []model.Message{
		rawMessage("ext-1", "first", now),
		rawMessage("ext-1", "second", now),
	}))

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "second", all[0].Subject)
}

func TestGetNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFilters(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.UpsertByExternalID(ctx, []model.Message{
		rawMessage("lead", "lead", now),
		rawMessage("support", "support", now.Add(-time.Minute)),
		rawMessage("other", "other", now.Add(-2*time.Minute)),
	}))

	classify := func(externalID string, c model.Classification) {
		all, err := repo.List(ctx, Filter{})
		require.NoError(t, err)
		for i := range all {
			if all[i].ExternalID == externalID {
				_, err := repo.SaveClassification(ctx, &all[i], c)
				require.NoError(t, err)
				return
			}
		}
		t.Fatalf("message %s not stored", externalID)
	}
	classify("lead", model.Classification{LeadFlag: true, Category: model.CategorySalesLead, Priority: model.PriorityHigh})
	classify("support", model.Classification{Category: model.CategorySupportRequest, Priority: model.PriorityMedium})
	classify("other", model.Classification{Category: model.CategoryOther, Priority: model.PriorityLow})

	isLead := true
	leads, err := repo.List(ctx, Filter{IsLead: &isLead})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "lead", leads[0].ExternalID)

	notLead := false
	rest, err := repo.List(ctx, Filter{IsLead: &notLead})
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	support, err := repo.List(ctx, Filter{Category: model.CategorySupportRequest})
	require.NoError(t, err)
	require.Len(t, support, 1)
	assert.Equal(t, "support", support[0].ExternalID)

	low, err := repo.List(ctx, Filter{Priority: model.PriorityLow})
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "other", low[0].ExternalID)
}

func TestListByStatusRespectsLimitAndOrder(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	var batch []model.Message
	for i := 0; i < 4; i++ {
		batch = append(batch, rawMessage(string(rune('a'+i)), "m", now.Add(-time.Duration(i)*time.Minute)))
	}
	require.NoError(t, repo.UpsertByExternalID(ctx, batch))

	pending, err := repo.ListByStatus(ctx, model.StatusPending, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ExternalID)
	assert.Equal(t, "b", pending[1].ExternalID)
}

func TestSaveReplySetsTimestampAndStatus(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertByExternalID(ctx, []model.Message{rawMessage("ext-1", "s", time.Now())}))
	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)

	saved, err := repo.SaveReply(ctx, &all[0], "Hello there")
	require.NoError(t, err)
	require.NotNil(t, saved.SuggestedReply)
	assert.Equal(t, "Hello there", *saved.SuggestedReply)
	assert.NotNil(t, saved.ReplyGeneratedAt)
	assert.Equal(t, model.StatusReplyGenerated, saved.Status)

	sent, err := repo.UpdateStatus(ctx, saved, model.StatusReplySent)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReplySent, sent.Status)
}

func TestSaveClassificationClearsDraft(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertByExternalID(ctx, []model.Message{rawMessage("ext-1", "s", time.Now())}))
	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)

	drafted, err := repo.SaveReply(ctx, &all[0], "Hello there")
	require.NoError(t, err)
	require.NotNil(t, drafted.SuggestedReply)

	reclassified, err := repo.SaveClassification(ctx, drafted, model.Classification{
		Category: model.CategoryOther,
		Priority: model.PriorityLow,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusClassified, reclassified.Status)
	assert.Nil(t, reclassified.SuggestedReply)
	assert.Nil(t, reclassified.ReplyGeneratedAt)
}

func TestSaveClassificationPersistsEntities(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertByExternalID(ctx, []model.Message{rawMessage("ext-1", "s", time.Now())}))
	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)

	saved, err := repo.SaveClassification(ctx, &all[0], model.Classification{
		Category: model.CategoryOther,
		Priority: model.PriorityLow,
		Entities: map[string]any{"company": "Acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", saved.ExtractedEntities["company"])

	cleared, err := repo.SaveClassification(ctx, saved, model.Classification{
		Category: model.CategoryOther,
		Priority: model.PriorityLow,
	})
	require.NoError(t, err)
	assert.Empty(t, cleared.ExtractedEntities)
}

func TestUpdateMissingMessage(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.UpdateStatus(context.Background(), &model.Message{ID: 99}, model.StatusReplySent)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAllAndCounts(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.UpsertByExternalID(ctx, []model.Message{
		rawMessage("ext-1", "a", now),
		rawMessage("ext-2", "b", now),
		rawMessage("ext-3", "c", now),
	}))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[model.StatusPending])

	deleted, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.NoError(t, repo.Ping(ctx))
}
