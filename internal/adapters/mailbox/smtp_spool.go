package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// SMTPSpool accepts forwarded receipts over SMTP and queues them until the
// next refresh drains them
type SMTPSpool struct {
	listenAddr      string
	domain          string
	maxMessageBytes int64
	maxQueued       int
	logger          *zap.Logger

	mu       sync.Mutex
	queue    []*core.RawEmail
	server   *smtp.Server
	listener net.Listener
}

// NewSMTPSpool creates a new SMTP spool
func NewSMTPSpool(listenAddr, domain string, maxMessageBytes int64, maxQueued int, logger *zap.Logger) *SMTPSpool {
	return &SMTPSpool{
		listenAddr:      listenAddr,
		domain:          domain,
		maxMessageBytes: maxMessageBytes,
		maxQueued:       maxQueued,
		logger:          logger,
	}
}

// Start starts listening for SMTP connections
func (s *SMTPSpool) Start() error {
	s.server = smtp.NewServer(&spoolBackend{spool: s})
	s.server.Domain = s.domain
	s.server.ReadTimeout = 30 * time.Second
	s.server.WriteTimeout = 30 * time.Second
	s.server.MaxMessageBytes = s.maxMessageBytes
	s.server.MaxRecipients = 50

	l, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}
	s.listener = l

	s.logger.Info("SMTP spool starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			s.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop stops the SMTP server
func (s *SMTPSpool) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// Addr returns the bound listen address, useful when listening on port 0
func (s *SMTPSpool) Addr() string {
	if s.listener == nil {
		return s.listenAddr
	}
	return s.listener.Addr().String()
}

// Queued returns the number of messages waiting to be drained
func (s *SMTPSpool) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// FetchEmails drains up to maxTotal queued messages, oldest first
func (s *SMTPSpool) FetchEmails(ctx context.Context, maxTotal int, onProgress core.ProgressFunc) ([]*core.RawEmail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	n := len(s.queue)
	if maxTotal > 0 && n > maxTotal {
		n = maxTotal
	}
	drained := make([]*core.RawEmail, n)
	copy(drained, s.queue[:n])
	s.queue = append([]*core.RawEmail(nil), s.queue[n:]...)
	s.mu.Unlock()

	if onProgress != nil {
		onProgress(n, n)
	}
	return drained, nil
}

func (s *SMTPSpool) enqueue(e *core.RawEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxQueued > 0 && len(s.queue) >= s.maxQueued {
		return &smtp.SMTPError{
			Code:         452,
			EnhancedCode: smtp.EnhancedCode{4, 3, 1},
			Message:      "spool is full, try again later",
		}
	}
	s.queue = append(s.queue, e)
	return nil
}

// spoolBackend implements the go-smtp Backend interface
type spoolBackend struct {
	spool *SMTPSpool
}

// NewSession creates a new SMTP session
func (b *spoolBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &spoolSession{spool: b.spool}, nil
}

// spoolSession implements the go-smtp Session interface
type spoolSession struct {
	spool      *SMTPSpool
	sender     string
	recipients []string
}

func (s *spoolSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *spoolSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *spoolSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *spoolSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.spool.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	email, err := ParseMessage(raw, "")
	if err != nil {
		s.spool.logger.Warn("Rejecting unparseable message", zap.String("sender", s.sender), zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "message could not be parsed",
		}
	}
	if len(email.To) == 0 {
		email.To = append(email.To, s.recipients...)
	}

	if err := s.spool.enqueue(email); err != nil {
		s.spool.logger.Warn("SMTP spool full, deferring message", zap.String("sender", s.sender))
		return err
	}

	s.spool.logger.Debug("Spooled message",
		zap.String("id", email.ID),
		zap.String("sender", s.sender),
		zap.String("subject", email.Subject))
	return nil
}

func (s *spoolSession) Logout() error {
	return nil
}
