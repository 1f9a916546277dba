package provider

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"inbox-triage-go/internal/config"
)

// IMAPFetcher reads the newest INBOX messages over IMAP. It opens one
// read-only session per call and cannot send.
type IMAPFetcher struct {
	addr     string
	user     string
	password string
	dial     func(addr string) (*client.Client, error)
}

// NewIMAPFetcher creates a fetcher for the configured IMAP account
func NewIMAPFetcher(cfg config.GmailConfig) *IMAPFetcher {
	return &IMAPFetcher{
		addr:     fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort),
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		dial: func(addr string) (*client.Client, error) {
			return client.DialTLS(addr, nil)
		},
	}
}

func (f *IMAPFetcher) Name() string { return "imap" }

func (f *IMAPFetcher) IsConfigured() bool {
	return f.user != "" && f.password != "" && !strings.HasPrefix(f.addr, ":")
}

// ListRecentMessages fetches up to limit of the highest sequence numbers in
// INBOX, newest first.
func (f *IMAPFetcher) ListRecentMessages(ctx context.Context, limit int) ([]RawMessage, error) {
	if !f.IsConfigured() {
		return nil, fmt.Errorf("imap: not configured: %w", ErrProviderUnavailable)
	}
	if limit <= 0 {
		return []RawMessage{}, nil
	}

	c, err := f.dial(f.addr)
	if err != nil {
		return nil, fmt.Errorf("imap: failed to connect: %w: %v", ErrProviderUnavailable, err)
	}
	defer c.Logout()

	// go-imap v1 has no context support; bound the session by the deadline instead.
	if deadline, ok := ctx.Deadline(); ok {
		c.Timeout = time.Until(deadline)
	}

	if err := c.Login(f.user, f.password); err != nil {
		return nil, fmt.Errorf("imap: failed to login: %w: %v", ErrProviderUnavailable, err)
	}

	status, err := c.Select("INBOX", true)
	if err != nil {
		return nil, fmt.Errorf("imap: failed to select INBOX: %w: %v", ErrProviderUnavailable, err)
	}
	if status.Messages == 0 {
		return []RawMessage{}, nil
	}

	from := uint32(1)
	if status.Messages > uint32(limit) {
		from = status.Messages - uint32(limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, status.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	fetched := make(chan *imap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, fetched)
	}()

	var messages []RawMessage
	for msg := range fetched {
		raw, err := parseIMAPMessage(msg, section)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message %d: %v", msg.Uid, err)
			continue
		}
		messages = append(messages, raw)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap: failed to fetch messages: %w: %v", ErrProviderUnavailable, err)
	}

	// Sequence numbers ascend with arrival; callers expect newest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SendReply is not supported over IMAP
func (f *IMAPFetcher) SendReply(context.Context, Reply) error {
	return fmt.Errorf("imap: %w", ErrSendUnsupported)
}

func parseIMAPMessage(msg *imap.Message, section *imap.BodySectionName) (RawMessage, error) {
	raw := RawMessage{
		ExternalID: fmt.Sprintf("imap-%d", msg.Uid),
		Recipients: []string{},
		CC:         []string{},
		ReceivedAt: msg.InternalDate,
	}

	if env := msg.Envelope; env != nil {
		if env.MessageId != "" {
			raw.ExternalID = strings.Trim(env.MessageId, "<>")
		}
		raw.Subject = env.Subject
		if len(env.From) > 0 {
			raw.Sender = env.From[0].Address()
		}
		for _, addr := range env.To {
			raw.Recipients = append(raw.Recipients, addr.Address())
		}
		for _, addr := range env.Cc {
			raw.CC = append(raw.CC, addr.Address())
		}
		if !env.Date.IsZero() {
			raw.ReceivedAt = env.Date
		}
		if len(env.InReplyTo) > 0 {
			raw.ThreadID = strings.Trim(env.InReplyTo, "<>")
		}
	}
	if raw.ReceivedAt.IsZero() {
		raw.ReceivedAt = time.Now().UTC()
	}

	r := msg.GetBody(section)
	if r == nil {
		return raw, nil
	}
	body, err := readMailBody(r)
	if err != nil {
		return raw, err
	}
	raw.Body = body
	raw.Snippet = snippetOf(body)
	return raw, nil
}

// readMailBody returns the text/plain part, or the text/html part as plain text
func readMailBody(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read part: %w", err)
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		content, err := io.ReadAll(part.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read part body: %w", err)
		}
		switch {
		case contentType == "text/plain" && plain == "":
			plain = string(content)
		case contentType == "text/html" && html == "":
			html = string(content)
		}
	}

	if plain != "" {
		return plain, nil
	}
	return htmlToPlainText(html), nil
}

func snippetOf(body string) string {
	return truncate(strings.Join(strings.Fields(body), " "), 200)
}

// IMAPGmailMailbox fetches over IMAP and sends with the Gmail API
type IMAPGmailMailbox struct {
	fetcher *IMAPFetcher
	sender  *GmailProvider
}

func NewIMAPGmailMailbox(fetcher *IMAPFetcher, sender *GmailProvider) *IMAPGmailMailbox {
	return &IMAPGmailMailbox{fetcher: fetcher, sender: sender}
}

func (m *IMAPGmailMailbox) Name() string { return "gmail-imap" }

func (m *IMAPGmailMailbox) IsConfigured() bool {
	return m.fetcher.IsConfigured() && m.sender.IsConfigured()
}

func (m *IMAPGmailMailbox) ListRecentMessages(ctx context.Context, limit int) ([]RawMessage, error) {
	return m.fetcher.ListRecentMessages(ctx, limit)
}

func (m *IMAPGmailMailbox) SendReply(ctx context.Context, reply Reply) error {
	return m.sender.SendReply(ctx, reply)
}
