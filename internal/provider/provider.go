// Package provider fetches inbox messages from a mailbox and sends replies.
// Live mailboxes (Gmail API, IMAP) sit behind an Adapter that falls back to
// a deterministic generator whenever the live side is absent or failing.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrProviderUnavailable marks a live mailbox that is unconfigured or whose call failed
	ErrProviderUnavailable = errors.New("mail provider unavailable")
	// ErrSendUnsupported is returned by fetch-only mailboxes
	ErrSendUnsupported = errors.New("mail provider cannot send")
)

// RawMessage is a message as the mailbox reports it
type RawMessage struct {
	ExternalID string
	ThreadID   string
	Sender     string
	Recipients []string
	CC         []string
	Subject    string
	Snippet    string
	Body       string
	ReceivedAt time.Time
}

// Reply is an outbound message in an existing conversation
type Reply struct {
	To       string
	Subject  string
	Body     string
	ThreadID string
}

// Mailbox is a live mail backend. Its errors are expected to wrap
// ErrProviderUnavailable.
type Mailbox interface {
	Name() string
	IsConfigured() bool
	ListRecentMessages(ctx context.Context, limit int) ([]RawMessage, error)
	SendReply(ctx context.Context, reply Reply) error
}
