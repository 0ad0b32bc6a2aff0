package mailbox

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// EmlDirMailbox reads .eml files from a directory tree
type EmlDirMailbox struct {
	dir    string
	logger *zap.Logger
}

// NewEmlDirMailbox creates a new directory mailbox
func NewEmlDirMailbox(dir string, logger *zap.Logger) *EmlDirMailbox {
	return &EmlDirMailbox{
		dir:    dir,
		logger: logger,
	}
}

// FetchEmails parses up to maxTotal messages. Unreadable files are skipped.
func (m *EmlDirMailbox) FetchEmails(ctx context.Context, maxTotal int, onProgress core.ProgressFunc) ([]*core.RawEmail, error) {
	paths, err := m.listFiles()
	if err != nil {
		return nil, err
	}
	if maxTotal > 0 && len(paths) > maxTotal {
		paths = paths[:maxTotal]
	}

	emails := make([]*core.RawEmail, 0, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if email := m.load(path); email != nil {
			emails = append(emails, email)
		}
		if onProgress != nil {
			onProgress(i+1, len(paths))
		}
	}

	m.logger.Info("Loaded messages from directory",
		zap.String("dir", m.dir),
		zap.Int("files", len(paths)),
		zap.Int("messages", len(emails)))
	return emails, nil
}

func (m *EmlDirMailbox) load(path string) *core.RawEmail {
	raw, err := os.ReadFile(path)
	if err != nil {
		m.logger.Warn("Failed to read message file", zap.String("path", path), zap.Error(err))
		return nil
	}

	rel, _ := filepath.Rel(m.dir, path)
	email, err := ParseMessage(raw, rel)
	if err != nil {
		m.logger.Warn("Skipping unparseable message", zap.String("path", path), zap.Error(err))
		return nil
	}
	return email
}

func (m *EmlDirMailbox) listFiles() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".eml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages in %s: %w", m.dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}
