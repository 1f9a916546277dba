// Package llm talks to text-generation backends used to classify messages
// and draft replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"inbox-triage-go/internal/config"
)

var (
	// ErrNotConfigured indicates the backend has no API key
	ErrNotConfigured = errors.New("llm backend not configured")
	// ErrAPICallFailed indicates the backend call failed
	ErrAPICallFailed = errors.New("llm API call failed")
	// ErrInvalidResponse indicates the backend answered with something unusable
	ErrInvalidResponse = errors.New("invalid llm API response")
	// ErrUnsupportedProvider indicates an unknown provider name
	ErrUnsupportedProvider = errors.New("unsupported llm provider")
)

// Kind tells a backend what the prompt is for
type Kind string

const (
	KindClassify Kind = "classify"
	KindReply    Kind = "reply"
)

// Input is the message a prompt was built from. Backends that do not
// understand free-form prompts work from it directly.
type Input struct {
	Subject string
	Body    string
}

// Request is a single completion call
type Request struct {
	Kind      Kind
	Prompt    string
	JSON      bool
	MaxTokens int
	Input     Input
}

// Backend produces one completion per request
type Backend interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (string, error)
}

// New selects the backend named in cfg.Provider
func New(ctx context.Context, cfg config.LLMConfig) (Backend, error) {
	switch strings.ToLower(cfg.Provider) {
	case config.LLMProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai: %w", ErrNotConfigured)
		}
		return NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.Timeout), nil
	case config.LLMProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
		}
		return NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case config.LLMProviderMock:
		return NewHeuristicBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// NewWithFallback is New, except that a missing API key degrades to the
// offline heuristic backend with a warning.
func NewWithFallback(ctx context.Context, cfg config.LLMConfig) (Backend, error) {
	backend, err := New(ctx, cfg)
	if errors.Is(err, ErrNotConfigured) {
		logrus.WithField("provider", cfg.Provider).Warn("LLM API key not set, using offline heuristic backend")
		return NewHeuristicBackend(), nil
	}
	return backend, err
}
