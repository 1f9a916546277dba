package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-triage-go/internal/llm"
)

func TestDraftTrimsReply(t *testing.T) {
	backend := &scriptedBackend{reply: fixed("\n  Hi Sam,\n\nThanks for reaching out.\n\nBest,\nTeam  \n")}

	body, err := NewDrafter(backend).Draft(context.Background(), "Pricing", "How much?", "wants pricing")
	require.NoError(t, err)
	assert.Equal(t, "Hi Sam,\n\nThanks for reaching out.\n\nBest,\nTeam", body)

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Equal(t, llm.KindReply, req.Kind)
	assert.False(t, req.JSON)
	assert.Equal(t, replyMaxTokens, req.MaxTokens)
	assert.Contains(t, req.Prompt, "Summary/context: wants pricing")
	assert.Contains(t, req.Prompt, "180 words")
}

func TestDraftDefaultsSummary(t *testing.T) {
	backend := &scriptedBackend{reply: fixed("Hello")}

	_, err := NewDrafter(backend).Draft(context.Background(), "s", "b", "  ")
	require.NoError(t, err)
	assert.Contains(t, backend.requests[0].Prompt, "Summary/context: N/A")
}

func TestDraftFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply func(llm.Input) (string, error)
	}{
		{"empty", fixed("")},
		{"whitespace", fixed(" \n\t ")},
		{"backend error", func(llm.Input) (string, error) { return "", llm.ErrAPICallFailed }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDrafter(&scriptedBackend{reply: tt.reply}).Draft(context.Background(), "s", "b", "")
			var rerr *ReplyGenerationError
			assert.True(t, errors.As(err, &rerr))
		})
	}
}
