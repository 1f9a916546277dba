package triage

import (
	"context"
	"fmt"
	"strings"

	"inbox-triage-go/internal/llm"
)

// replyMaxTokens keeps drafts near the 180 word target
const replyMaxTokens = 320

const replyPrompt = `You craft short, friendly first-response emails in plain text.
Include a greeting, a one or two sentence summary acknowledging the request, at most two clarifying questions, and a polite closing.
Do not exceed 180 words. Do not include a subject line.

Subject: %s
Body: %s
Summary/context: %s
`

// Drafter writes first-response replies
type Drafter struct {
	backend llm.Backend
}

func NewDrafter(backend llm.Backend) *Drafter {
	return &Drafter{backend: backend}
}

// Draft returns the trimmed reply text; an empty answer is a *ReplyGenerationError
func (d *Drafter) Draft(ctx context.Context, subject, body, summary string) (string, error) {
	if strings.TrimSpace(summary) == "" {
		summary = "N/A"
	}

	text, err := d.backend.Complete(ctx, llm.Request{
		Kind:      llm.KindReply,
		Prompt:    fmt.Sprintf(replyPrompt, subject, body, summary),
		MaxTokens: replyMaxTokens,
		Input:     llm.Input{Subject: subject, Body: body},
	})
	if err != nil {
		return "", &ReplyGenerationError{Reason: "backend call failed", Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ReplyGenerationError{Reason: "empty response"}
	}
	return text, nil
}
