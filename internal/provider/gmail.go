package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"inbox-triage-go/internal/config"
)

const (
	gmailUser = "me"

	// See https://developers.google.com/gmail/api/reference/quota
	quotaUnitsMessagesList = 5
	quotaUnitsMessagesGet  = 5
	quotaUnitsMessagesSend = 100

	quotaUnitsPerSecond = 250
	rateLimitPerSecond  = quotaUnitsPerSecond * 0.8
	rateLimitBurst      = quotaUnitsPerSecond
)

// GmailProvider reads the inbox and sends replies through the Gmail REST API
type GmailProvider struct {
	service    *gmail.Service
	userEmail  string
	configured bool
	limiter    *rate.Limiter
}

// NewGmailProvider builds a Gmail client from a stored refresh token. With
// incomplete credentials it returns an unconfigured provider instead of an error.
func NewGmailProvider(ctx context.Context, cfg config.GmailConfig) (*GmailProvider, error) {
	if !cfg.HasOAuthCredentials() {
		return &GmailProvider{userEmail: cfg.UserEmail}, nil
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope, gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return NewGmailProviderWithService(service, cfg.UserEmail), nil
}

// NewGmailProviderWithService wraps an already constructed Gmail service
func NewGmailProviderWithService(service *gmail.Service, userEmail string) *GmailProvider {
	return &GmailProvider{
		service:    service,
		userEmail:  userEmail,
		configured: service != nil,
		limiter:    rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
}

func (p *GmailProvider) Name() string { return "gmail" }

func (p *GmailProvider) IsConfigured() bool { return p.configured }

// ListRecentMessages lists up to limit inbox messages, newest first as the
// API returns them. Messages that fail to load are skipped.
func (p *GmailProvider) ListRecentMessages(ctx context.Context, limit int) ([]RawMessage, error) {
	if !p.configured {
		return nil, fmt.Errorf("gmail: not configured: %w", ErrProviderUnavailable)
	}
	if err := p.limiter.WaitN(ctx, quotaUnitsMessagesList); err != nil {
		return nil, fmt.Errorf("gmail: %w: %v", ErrProviderUnavailable, err)
	}

	resp, err := p.service.Users.Messages.List(gmailUser).
		Q("is:inbox").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, p.unavailable("list messages", err)
	}
	logrus.Infof("Gmail API returned %d message(s)", len(resp.Messages))

	messages := make([]RawMessage, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		if err := p.limiter.WaitN(ctx, quotaUnitsMessagesGet); err != nil {
			return nil, fmt.Errorf("gmail: %w: %v", ErrProviderUnavailable, err)
		}
		msg, err := p.service.Users.Messages.Get(gmailUser, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			logrus.Warnf("Failed to get message %s: %v", ref.Id, err)
			continue
		}
		raw, err := parseGmailMessage(msg)
		if err != nil {
			logrus.Warnf("Failed to parse message %s: %v", ref.Id, err)
			continue
		}
		messages = append(messages, raw)
	}
	return messages, nil
}

// SendReply sends a plain-text reply, threaded when a thread id is known
func (p *GmailProvider) SendReply(ctx context.Context, reply Reply) error {
	if !p.configured {
		return fmt.Errorf("gmail: not configured: %w", ErrProviderUnavailable)
	}

	raw, err := buildReply(p.userEmail, reply, time.Now())
	if err != nil {
		return fmt.Errorf("failed to build reply: %w", err)
	}

	message := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if reply.ThreadID != "" {
		message.ThreadId = reply.ThreadID
	}

	if err := p.limiter.WaitN(ctx, quotaUnitsMessagesSend); err != nil {
		return fmt.Errorf("gmail: %w: %v", ErrProviderUnavailable, err)
	}
	sent, err := p.service.Users.Messages.Send(gmailUser, message).Context(ctx).Do()
	if err != nil {
		return p.unavailable("send reply", err)
	}
	logrus.WithField("gmail_id", sent.Id).Infof("Reply sent to %s", reply.To)
	return nil
}

func (p *GmailProvider) unavailable(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		fields := logrus.Fields{"status": apiErr.Code}
		if apiErr.Code == http.StatusTooManyRequests {
			fields["rate_limited"] = true
		}
		logrus.WithFields(fields).Errorf("Gmail API error during %s: %s", op, apiErr.Message)
	}
	return fmt.Errorf("gmail: %s: %w: %v", op, ErrProviderUnavailable, err)
}

// parseGmailMessage maps a full-format Gmail message onto RawMessage
func parseGmailMessage(msg *gmail.Message) (RawMessage, error) {
	if msg.Payload == nil {
		return RawMessage{}, fmt.Errorf("message has no payload")
	}

	var h mail.Header
	for _, header := range msg.Payload.Headers {
		h.Add(header.Name, header.Value)
	}

	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}

	receivedAt, err := h.Date()
	if err != nil || receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	body := extractBody(msg.Payload)

	return RawMessage{
		ExternalID: msg.Id,
		ThreadID:   msg.ThreadId,
		Sender:     h.Get("From"),
		Recipients: splitAddresses(h.Get("To")),
		CC:         splitAddresses(h.Get("Cc")),
		Subject:    subject,
		Snippet:    msg.Snippet,
		Body:       body,
		ReceivedAt: receivedAt,
	}, nil
}

func splitAddresses(value string) []string {
	out := []string{}
	if value == "" {
		return out
	}
	for _, addr := range strings.Split(value, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// extractBody prefers the first text/plain part anywhere in the tree and
// falls back to the first text/html part converted to plain text.
func extractBody(payload *gmail.MessagePart) string {
	var plain, html string
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part == nil || plain != "" {
			return
		}
		if part.Body != nil && part.Body.Data != "" {
			switch {
			case strings.HasPrefix(part.MimeType, "text/plain"):
				plain = decodeBodyData(part.Body.Data)
			case strings.HasPrefix(part.MimeType, "text/html") && html == "":
				html = decodeBodyData(part.Body.Data)
			case len(part.Parts) == 0 && part.MimeType == "":
				plain = decodeBodyData(part.Body.Data)
			}
		}
		for _, sub := range part.Parts {
			walk(sub)
		}
	}
	walk(payload)

	if plain != "" {
		return plain
	}
	if html != "" {
		return htmlToPlainText(html)
	}
	return ""
}

// decodeBodyData accepts padded and unpadded base64url
func decodeBodyData(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

var (
	htmlTagPattern   = regexp.MustCompile(`<[^>]*>`)
	htmlBreakPattern = regexp.MustCompile(`(?i)<br\s*/?>|</?p>|</?div>`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
)

// htmlToPlainText strips markup from an HTML body
func htmlToPlainText(html string) string {
	text := htmlBreakPattern.ReplaceAllString(html, "\n")
	text = htmlTagPattern.ReplaceAllString(text, "")

	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&amp;", "&",
	)
	text = replacer.Replace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// buildReply renders an RFC 5322 plain-text message
func buildReply(from string, reply Reply, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(reply.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "UTF-8"})

	to, err := mail.ParseAddressList(reply.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", reply.To, err)
	}
	h.SetAddressList("To", to)

	if from != "" {
		if sender, err := mail.ParseAddress(from); err == nil {
			h.SetAddressList("From", []*mail.Address{sender})
		}
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(reply.Body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
