package mailbox

import (
	"context"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// IMAPMailbox fetches the most recent messages of one IMAP folder over TLS
type IMAPMailbox struct {
	server   string
	port     int
	username string
	password string
	folder   string
	logger   *zap.Logger
}

// NewIMAPMailbox creates a new IMAP mailbox
func NewIMAPMailbox(server string, port int, username, password, folder string, logger *zap.Logger) *IMAPMailbox {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPMailbox{
		server:   server,
		port:     port,
		username: username,
		password: password,
		folder:   folder,
		logger:   logger,
	}
}

// FetchEmails downloads up to maxTotal of the newest messages
func (m *IMAPMailbox) FetchEmails(ctx context.Context, maxTotal int, onProgress core.ProgressFunc) ([]*core.RawEmail, error) {
	addr := fmt.Sprintf("%s:%d", m.server, m.port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}
	defer c.Logout()

	// go-imap v1 has no context support, so cancellation tears down the connection
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Terminate()
		case <-stop:
		}
	}()

	if err := c.Login(m.username, m.password); err != nil {
		return nil, fmt.Errorf("failed to log in to IMAP server: %w", err)
	}

	mbox, err := c.Select(m.folder, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", m.folder, err)
	}
	if mbox.Messages == 0 {
		return []*core.RawEmail{}, nil
	}

	from := uint32(1)
	if maxTotal > 0 && mbox.Messages > uint32(maxTotal) {
		from = mbox.Messages - uint32(maxTotal) + 1
	}
	total := int(mbox.Messages - from + 1)

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchUid,
		imap.FetchInternalDate,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	emails := make([]*core.RawEmail, 0, total)
	processed := 0
	for msg := range messages {
		processed++
		if email := m.convert(msg, section); email != nil {
			emails = append(emails, email)
		}
		if onProgress != nil {
			onProgress(processed, total)
		}
	}

	if err := <-done; err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	m.logger.Info("Fetched messages over IMAP",
		zap.String("folder", m.folder),
		zap.Int("messages", len(emails)))
	return emails, nil
}

func (m *IMAPMailbox) convert(msg *imap.Message, section *imap.BodySectionName) *core.RawEmail {
	id := fmt.Sprintf("imap-%d", msg.Uid)

	body := msg.GetBody(section)
	if body == nil {
		m.logger.Warn("IMAP message has no body", zap.Uint32("uid", msg.Uid))
		return nil
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		m.logger.Warn("Failed to read IMAP message body", zap.Uint32("uid", msg.Uid), zap.Error(err))
		return nil
	}

	email, err := ParseMessage(raw, id)
	if err != nil {
		m.logger.Warn("Skipping unparseable IMAP message", zap.Uint32("uid", msg.Uid), zap.Error(err))
		return nil
	}
	if email.Date.IsZero() {
		if msg.Envelope != nil && !msg.Envelope.Date.IsZero() {
			email.Date = msg.Envelope.Date.UTC()
		} else {
			email.Date = msg.InternalDate.UTC()
		}
	}
	return email
}
