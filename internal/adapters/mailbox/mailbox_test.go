package mailbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeEml(t *testing.T, dir, name, subject string) {
	t.Helper()
	raw := crlf("From: Billing <billing@example.com>\nSubject: " + subject + "\nContent-Type: text/plain\n\nbody\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0o644))
}

func TestEmlDirMailbox_FetchEmails(t *testing.T) {
	dir := t.TempDir()
	writeEml(t, dir, "a.eml", "First")
	writeEml(t, dir, "b.eml", "Second")
	writeEml(t, dir, "c.eml", "Third")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.eml"), []byte("garbage"), 0o644))

	var calls [][2]int
	m := NewEmlDirMailbox(dir, zap.NewNop())
	emails, err := m.FetchEmails(context.Background(), 0, func(processed, total int) {
		calls = append(calls, [2]int{processed, total})
	})
	require.NoError(t, err)

	require.Len(t, emails, 3)
	assert.Equal(t, "First", emails[0].Subject)
	assert.Equal(t, "a.eml", emails[0].ID)
	assert.Len(t, calls, 4)
	assert.Equal(t, [2]int{4, 4}, calls[len(calls)-1])
}

func TestEmlDirMailbox_MaxTotalAndCancel(t *testing.T) {
	dir := t.TempDir()
	writeEml(t, dir, "a.eml", "First")
	writeEml(t, dir, "b.eml", "Second")

	m := NewEmlDirMailbox(dir, zap.NewNop())
	emails, err := m.FetchEmails(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Len(t, emails, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.FetchEmails(ctx, 0, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmlDirMailbox_MissingDir(t *testing.T) {
	m := NewEmlDirMailbox(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	_, err := m.FetchEmails(context.Background(), 0, nil)
	assert.Error(t, err)
}

func TestSMTPSpool_ReceivesAndDrains(t *testing.T) {
	spool := NewSMTPSpool("127.0.0.1:0", "localhost", 1<<20, 2, zap.NewNop())
	require.NoError(t, spool.Start())
	defer spool.Stop()

	send := func(subject string) error {
		msg := "From: Netflix <info@netflix.com>\r\nTo: me@example.com\r\nSubject: " + subject + "\r\n\r\nReceipt\r\n"
		c, err := smtp.Dial(spool.Addr())
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.SendMail("info@netflix.com", []string{"me@example.com"}, strings.NewReader(msg)); err != nil {
			return err
		}
		return c.Quit()
	}

	require.NoError(t, send("One"))
	require.NoError(t, send("Two"))
	// Queue is bounded
	assert.Error(t, send("Three"))

	require.Eventually(t, func() bool { return spool.Queued() == 2 }, time.Second, 10*time.Millisecond)

	first, err := spool.FetchEmails(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "One", first[0].Subject)

	rest, err := spool.FetchEmails(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "Two", rest[0].Subject)
	assert.Equal(t, 0, spool.Queued())
}

type staticMailbox struct {
	emails []*core.RawEmail
}

func (s *staticMailbox) FetchEmails(ctx context.Context, maxTotal int, onProgress core.ProgressFunc) ([]*core.RawEmail, error) {
	out := s.emails
	if maxTotal > 0 && len(out) > maxTotal {
		out = out[:maxTotal]
	}
	if onProgress != nil {
		onProgress(len(out), len(out))
	}
	return out, nil
}

func TestCombinedMailbox_RespectsMaxTotal(t *testing.T) {
	a := &staticMailbox{emails: []*core.RawEmail{{ID: "a1"}, {ID: "a2"}}}
	b := &staticMailbox{emails: []*core.RawEmail{{ID: "b1"}, {ID: "b2"}}}

	var last [2]int
	m := NewCombinedMailbox(zap.NewNop(), a, b)
	emails, err := m.FetchEmails(context.Background(), 3, func(processed, total int) {
		last = [2]int{processed, total}
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(emails))
	for _, e := range emails {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a1", "a2", "b1"}, ids)
	assert.Equal(t, [2]int{3, 3}, last)
}
