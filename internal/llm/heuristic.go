package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type keywordRule struct {
	category string
	priority string
	lead     bool
	keywords []string
}

// Rules are checked in order; the first rule with a matching keyword wins.
var keywordRules = []keywordRule{
	{"SALES_LEAD", "HIGH", true, []string{"enterprise", "demo", "quote"}},
	{"SALES_LEAD", "MEDIUM", true, []string{"pricing", "partnership", "purchase", "interested in your product"}},
	{"SUPPORT_REQUEST", "HIGH", false, []string{"urgent", "outage", "down"}},
	{"SUPPORT_REQUEST", "MEDIUM", false, []string{"bug", "issue", "trouble", "password", "error", "help"}},
	{"INTERNAL", "LOW", false, []string{"meeting", "weekly report", "team", "feedback"}},
}

// HeuristicBackend answers without any network call by matching keywords.
// It keeps the service usable when no API key is configured.
type HeuristicBackend struct{}

func NewHeuristicBackend() *HeuristicBackend { return &HeuristicBackend{} }

func (HeuristicBackend) Name() string  { return "heuristic" }
func (HeuristicBackend) Model() string { return "keyword-rules" }

func (h HeuristicBackend) Complete(_ context.Context, req Request) (string, error) {
	switch req.Kind {
	case KindClassify:
		return h.classify(req.Input)
	case KindReply:
		return h.reply(req.Input), nil
	default:
		return "", fmt.Errorf("%w: unknown request kind %q", ErrInvalidResponse, req.Kind)
	}
}

func (HeuristicBackend) classify(in Input) (string, error) {
	text := strings.ToLower(in.Subject + "\n" + in.Body)

	result := map[string]any{
		"lead_flag": false,
		"category":  "OTHER",
		"priority":  "LOW",
		"entities":  nil,
	}
	for _, rule := range keywordRules {
		if kw, ok := firstMatch(text, rule.keywords); ok {
			result["lead_flag"] = rule.lead
			result["category"] = rule.category
			result["priority"] = rule.priority
			result["entities"] = map[string]any{"matched_keyword": kw}
			break
		}
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return string(out), nil
}

func firstMatch(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

func (HeuristicBackend) reply(in Input) string {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = "your message"
	}
	return fmt.Sprintf("Hi there,\n\n"+
		"Thank you for reaching out about %q. We have received your message and a member of our team is looking into it.\n\n"+
		"Could you share a bit more detail about what you need? Is there a timeline we should keep in mind?\n\n"+
		"Best regards,\nThe Team", subject)
}
