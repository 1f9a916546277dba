package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"inbox-triage-go/internal/llm"
	"inbox-triage-go/internal/model"
)

const classifyMaxTokens = 300

const classificationPrompt = `You are an inbox triage assistant. Read the email below and return a JSON object with exactly these fields:
- lead_flag (true/false): whether the sender is a potential customer
- category (one of SALES_LEAD, SUPPORT_REQUEST, INTERNAL, OTHER)
- priority (one of HIGH, MEDIUM, LOW)
- entities (object with sender_role and company if present, otherwise null)

Subject: %s
Body: %s
`

// Classifier asks a backend to label a message
type Classifier struct {
	backend llm.Backend
}

func NewClassifier(backend llm.Backend) *Classifier {
	return &Classifier{backend: backend}
}

// Classify makes a single backend call. Any backend error, empty answer or
// non-object JSON yields a *ClassificationError.
func (c *Classifier) Classify(ctx context.Context, subject, body string) (model.Classification, error) {
	raw, err := c.backend.Complete(ctx, llm.Request{
		Kind:      llm.KindClassify,
		Prompt:    fmt.Sprintf(classificationPrompt, subject, body),
		JSON:      true,
		MaxTokens: classifyMaxTokens,
		Input:     llm.Input{Subject: subject, Body: body},
	})
	if err != nil {
		return model.Classification{}, &ClassificationError{Reason: "backend call failed", Err: err}
	}
	return parseClassification(raw)
}

func parseClassification(raw string) (model.Classification, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return model.Classification{}, &ClassificationError{Reason: "empty response"}
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return model.Classification{}, &ClassificationError{Reason: "response is not a JSON object", Raw: raw, Err: err}
	}
	if fields == nil {
		return model.Classification{}, &ClassificationError{Reason: "response is not a JSON object", Raw: raw}
	}

	return model.Classification{
		LeadFlag: truthy(fields["lead_flag"]),
		Category: normalizeEnum(fields["category"], model.Categories, model.CategoryOther),
		Priority: normalizeEnum(fields["priority"], model.Priorities, model.PriorityLow),
		Entities: normalizeEntities(fields["entities"]),
	}, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch s {
		case "", "no", "n", "none", "null":
			return false
		case "yes", "y":
			return true
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return true
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// normalizeEnum upper-cases v and returns it if allowed, otherwise def
func normalizeEnum(v any, allowed []string, def string) string {
	s, ok := v.(string)
	if !ok {
		return def
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	return def
}

// normalizeEntities keeps objects as they are and wraps any other JSON value
func normalizeEntities(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return t
	default:
		return map[string]any{"value": t}
	}
}
