package notify

import (
	"fmt"

	"github.com/libsync/exportd/internal/config"
	"github.com/libsync/exportd/internal/domain"
	"github.com/libsync/exportd/internal/logger"
	"github.com/wneessen/go-mail"
)

// Severity classifies a notification event.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Sender delivers one message to the given recipients.
type Sender interface {
	Send(subject, body string, to []string) error
}

// SMTPSender sends mail through a configured SMTP relay.
type SMTPSender struct {
	cfg *config.SMTPConfig
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg *config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers one plain-text message.
func (s *SMTPSender) Send(subject, body string, to []string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("invalid from address %q: %w", s.cfg.From, err)
	}
	if err := msg.To(to...); err != nil {
		return fmt.Errorf("invalid recipient list: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return client.DialAndSend(msg)
}

// Notifier emails the configured admins when a job raises an error or a
// warning, gated independently per severity. A disabled severity is a
// no-op; a failed send is logged and never alters the job outcome.
type Notifier struct {
	sender    Sender
	onError   bool
	onWarning bool
	admins    []string
	logger    *logger.Logger
}

// NewNotifier creates a Notifier.
// Parameters:
//   - sender: message transport.
//   - cfg: exporter settings carrying the per-severity toggles and the
//     admin recipient list.
func NewNotifier(sender Sender, cfg *config.ExporterConfig, log *logger.Logger) *Notifier {
	return &Notifier{
		sender:    sender,
		onError:   cfg.EmailOnError,
		onWarning: cfg.EmailOnWarning,
		admins:    cfg.AdminEmails,
		logger:    log,
	}
}

// Notify reports one event for a job. Severity is never escalated or
// downgraded: an error event is dropped entirely when error mail is
// off, even if warning mail is on.
func (n *Notifier) Notify(severity Severity, job *domain.ExportJob, detail string) {
	switch severity {
	case SeverityError:
		if !n.onError {
			return
		}
	case SeverityWarning:
		if !n.onWarning {
			return
		}
	default:
		return
	}

	if len(n.admins) == 0 {
		n.logger.WithField("severity", string(severity)).
			Warn("Notification dropped: no admin emails configured")
		return
	}

	subject := fmt.Sprintf("[exportd] %s: %s job %s", severity, job.ExportType, job.ID)
	body := fmt.Sprintf(
		"Export job %s (%s)\nFilter: %s %s\nTriggered by: %s\n\n%s\n",
		job.ID, job.ExportType, job.FilterKind, job.FilterParams, job.Username, detail,
	)

	if err := n.sender.Send(subject, body, n.admins); err != nil {
		n.logger.WithFields(logger.Fields{
			"job_id":   job.ID,
			"severity": string(severity),
		}).WithError(err).Error("Failed to send notification email")
	}
}
