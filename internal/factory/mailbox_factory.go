package factory

import (
	"fmt"

	"github.com/mikey/subscription-tracker/internal/adapters/mailbox"
	"github.com/mikey/subscription-tracker/internal/config"
	"github.com/mikey/subscription-tracker/internal/core"
	"go.uber.org/zap"
)

// MailboxFactory creates mailbox sources based on configuration
type MailboxFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewMailboxFactory creates a new mailbox factory
func NewMailboxFactory(cfg *config.Config, logger *zap.Logger) *MailboxFactory {
	return &MailboxFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSpool creates the SMTP receipt spool, nil when it is disabled
func (f *MailboxFactory) CreateSpool() *mailbox.SMTPSpool {
	spoolCfg := f.cfg.GetSMTPSpool()
	if !spoolCfg.Enabled {
		return nil
	}
	return mailbox.NewSMTPSpool(
		spoolCfg.ListenAddress,
		spoolCfg.Domain,
		spoolCfg.MaxMessageBytes,
		spoolCfg.MaxQueued,
		f.logger,
	)
}

// CreateMailbox creates the configured mailbox. When a spool is given its
// queued receipts are read after the primary source.
func (f *MailboxFactory) CreateMailbox(spool *mailbox.SMTPSpool) (core.Mailbox, error) {
	mailboxCfg := f.cfg.GetMailbox()

	var primary core.Mailbox
	switch mailboxCfg.Type {
	case "eml_dir":
		primary = mailbox.NewEmlDirMailbox(mailboxCfg.EmlDir, f.logger)
	case "imap":
		imapCfg := f.cfg.GetIMAP()
		if imapCfg.Server == "" {
			return nil, fmt.Errorf("imap server is required")
		}
		primary = mailbox.NewIMAPMailbox(
			imapCfg.Server,
			imapCfg.Port,
			imapCfg.Username,
			imapCfg.Password,
			imapCfg.Folder,
			f.logger,
		)
	case "smtp_spool":
		if spool == nil {
			return nil, fmt.Errorf("mailbox type smtp_spool requires smtp_spool.enabled")
		}
		return spool, nil
	default:
		return nil, fmt.Errorf("unsupported mailbox type: %s", mailboxCfg.Type)
	}

	if spool == nil {
		return primary, nil
	}
	return mailbox.NewCombinedMailbox(f.logger, primary, spool), nil
}
