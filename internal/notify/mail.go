package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"batch-agent/internal/config"
)

// SenderName is the display name of incident mail.
const SenderName = "BATCH_AGENT_SYSTEM"

const defaultSendTimeout = 30 * time.Second

// ErrNoRecipients is returned when neither the result nor the configuration
// names an administrator.
var ErrNoRecipients = errors.New("no incident recipients")

// MailNotifier sends incidents as HTML mail over SMTP.
type MailNotifier struct {
	cfg    config.Mail
	admins []string
}

// NewMailNotifier creates a notifier that mails admins unless the incident
// names its own contact.
func NewMailNotifier(cfg config.Mail, admins []string) *MailNotifier {
	return &MailNotifier{cfg: cfg, admins: admins}
}

// New returns a mail notifier when SMTP is configured and a log notifier
// otherwise.
func New(cfg config.Agent) Notifier {
	if !cfg.Mail.Enabled() {
		log.Warn().Msg("SMTP not configured, incidents will only be logged")
		return NewLogNotifier()
	}
	return NewMailNotifier(cfg.Mail, cfg.AdminEmails)
}

// Notify mails the incident.
func (n *MailNotifier) Notify(ctx context.Context, inc Incident) error {
	msg, err := n.buildMessage(inc)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(n.cfg.SMTPHost,
		mail.WithPort(n.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.From),
		mail.WithPassword(n.cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(defaultSendTimeout),
	)
	if err != nil {
		return fmt.Errorf("mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send incident mail: %w", err)
	}

	log.Info().
		Str("program_id", inc.ProgramID()).
		Strs("to", Recipients(inc, n.admins)).
		Msg("incident mail sent")
	return nil
}

func (n *MailNotifier) buildMessage(inc Incident) (*mail.Msg, error) {
	to := Recipients(inc, n.admins)
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}

	body, err := RenderBody(inc)
	if err != nil {
		return nil, fmt.Errorf("render incident: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(SenderName, n.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(ReportFailureTitle)
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}
