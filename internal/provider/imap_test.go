package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inbox-triage-go/internal/config"
)

const multipartFixture = "From: Jane <jane@acme.test>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: Pricing\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Html version</p>\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Plain version\r\n" +
	"--b1--\r\n"

const htmlOnlyFixture = "From: jane@acme.test\r\n" +
	"Subject: Html\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<div>Only&nbsp;html</div>\r\n"

func TestReadMailBodyPrefersPlainText(t *testing.T) {
	body, err := readMailBody(strings.NewReader(multipartFixture))
	require.NoError(t, err)
	assert.Equal(t, "Plain version", strings.TrimSpace(body))
}

func TestReadMailBodyFallsBackToHTML(t *testing.T) {
	body, err := readMailBody(strings.NewReader(htmlOnlyFixture))
	require.NoError(t, err)
	assert.Equal(t, "Only html", body)
}

func TestIMAPFetcherUnconfigured(t *testing.T) {
	f := NewIMAPFetcher(config.GmailConfig{IMAPHost: "imap.example.com", IMAPPort: 993})
	assert.False(t, f.IsConfigured())

	_, err := f.ListRecentMessages(context.Background(), 5)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, f.SendReply(context.Background(), Reply{}), ErrSendUnsupported)
}

func TestIMAPGmailMailboxNeedsBothSides(t *testing.T) {
	fetcher := NewIMAPFetcher(config.GmailConfig{IMAPHost: "imap.example.com", IMAPPort: 993, IMAPUser: "u", IMAPPassword: "p"})
	sender := &GmailProvider{}

	mailbox := NewIMAPGmailMailbox(fetcher, sender)
	assert.True(t, fetcher.IsConfigured())
	assert.False(t, mailbox.IsConfigured())
	assert.Equal(t, "gmail-imap", mailbox.Name())
}

func TestSnippetOf(t *testing.T) {
	assert.Equal(t, "a b c", snippetOf("  a\n b\t\tc "))
	long := strings.Repeat("x", 250)
	assert.Equal(t, strings.Repeat("x", 200)+"...", snippetOf(long))
}
