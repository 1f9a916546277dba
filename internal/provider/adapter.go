package provider

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Mode values reported by Adapter.Mode
const (
	ModeMock = "mock"
	ModeLive = "real"
)

// errSimulatedFailure stands in for a live failure when SimulateFailure is on
var errSimulatedFailure = fmt.Errorf("simulated failure: %w", ErrProviderUnavailable)

// FallbackObserver is notified every time the adapter serves mock data
// because the live mailbox could not be used.
type FallbackObserver func(op string)

// Adapter puts a live Mailbox in front of the mock generator. Fetching never
// fails and sending reports success as a bool.
type Adapter struct {
	live     Mailbox
	mock     *MockProvider
	useMock  bool
	simulate atomic.Bool
	observe  FallbackObserver
}

// AdapterOption customizes an Adapter
type AdapterOption func(*Adapter)

// WithFallbackObserver registers a callback for fallback events
func WithFallbackObserver(fn FallbackObserver) AdapterOption {
	return func(a *Adapter) { a.observe = fn }
}

// NewAdapter wires a live mailbox (may be nil) with the mock generator.
// With useMock set the live mailbox is never called.
func NewAdapter(live Mailbox, mock *MockProvider, useMock bool, opts ...AdapterOption) *Adapter {
	if mock == nil {
		mock = NewMockProvider("")
	}
	a := &Adapter{live: live, mock: mock, useMock: useMock}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name is the live mailbox name, or "mock" when none is wired
func (a *Adapter) Name() string {
	if a.live == nil {
		return a.mock.Name()
	}
	return a.live.Name()
}

// Mode reports whether live calls are attempted at all
func (a *Adapter) Mode() string {
	if a.useMock || a.live == nil {
		return ModeMock
	}
	return ModeLive
}

// IsConfigured is true when the live mailbox has every credential it needs
func (a *Adapter) IsConfigured() bool {
	return a.live != nil && a.live.IsConfigured()
}

// SimulateFailure makes the live branch fail until switched off
func (a *Adapter) SimulateFailure(on bool) {
	a.simulate.Store(on)
}

// ListRecentMessages returns up to limit recent messages. Any live problem
// is logged and answered with mock messages.
func (a *Adapter) ListRecentMessages(ctx context.Context, limit int) []RawMessage {
	if a.useMock || a.live == nil {
		logrus.Debug("Mock mode enabled, using mock email data")
		return a.mockMessages(ctx, limit)
	}
	if !a.live.IsConfigured() {
		logrus.Debugf("%s not configured, using mock data", a.live.Name())
		a.fallback("fetch")
		return a.mockMessages(ctx, limit)
	}

	messages, err := a.fetchLive(ctx, limit)
	if err != nil {
		logrus.WithError(err).Warnf("Failed to fetch from %s, falling back to mock data", a.live.Name())
		a.fallback("fetch")
		return a.mockMessages(ctx, limit)
	}
	return messages
}

func (a *Adapter) fetchLive(ctx context.Context, limit int) ([]RawMessage, error) {
	if a.simulate.Load() {
		return nil, errSimulatedFailure
	}
	return a.live.ListRecentMessages(ctx, limit)
}

func (a *Adapter) mockMessages(ctx context.Context, limit int) []RawMessage {
	// The generator cannot fail.
	messages, _ := a.mock.ListRecentMessages(ctx, limit)
	return messages
}

// SendReply reports whether the reply was handed to the mailbox
func (a *Adapter) SendReply(ctx context.Context, reply Reply) bool {
	if a.useMock || a.live == nil {
		return a.mock.SendReply(ctx, reply) == nil
	}
	if !a.live.IsConfigured() {
		logrus.Errorf("Cannot send reply: %s not configured", a.live.Name())
		return false
	}

	var err error
	if a.simulate.Load() {
		err = errSimulatedFailure
	} else {
		err = a.live.SendReply(ctx, reply)
	}
	if err != nil {
		fields := logrus.Fields{"to": reply.To}
		if errors.Is(err, ErrSendUnsupported) {
			fields["unsupported"] = true
		}
		logrus.WithFields(fields).WithError(err).Error("Failed to send reply")
		return false
	}
	return true
}

// Reset rewinds the mock sequence
func (a *Adapter) Reset() {
	a.mock.Reset()
}

func (a *Adapter) fallback(op string) {
	if a.observe != nil {
		a.observe(op)
	}
}
