// Package notify sends operator and submitter email on reportable
// archival transitions. Who hears about a state is a fixed policy table;
// delivery failures are the caller's to log and never feed back into the
// job's own state.
package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"

	"github.com/ekoi/dataverse-archiver/internal/archive"
	"github.com/ekoi/dataverse-archiver/internal/config"
	"github.com/ekoi/dataverse-archiver/pkg/models"
)

type recipient int

const (
	recipientNone recipient = iota
	recipientSubmitter
	recipientOperator
)

// notifyPolicy decides who, if anyone, is mailed for a state. States not
// listed are failures and go to the operator. Invalid credentials are
// user-correctable, so the user-facing message is the whole story.
var notifyPolicy = map[archive.State]recipient{
	archive.StateArchived:           recipientSubmitter,
	archive.StateInProgress:         recipientNone,
	archive.StateInvalidCredentials: recipientNone,
}

func policyFor(s archive.State) recipient {
	if r, ok := notifyPolicy[s]; ok {
		return r
	}
	return recipientOperator
}

// Mailer implements archive.Notifier over SMTP.
type Mailer struct {
	from     string
	operator string
	send     func(e *email.Email) error
}

// NewMailer creates a Mailer from mail configuration.
func NewMailer(cfg config.MailConfig) *Mailer {
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &Mailer{
		from:     cfg.From,
		operator: cfg.OperatorAddress,
		send:     func(e *email.Email) error { return e.Send(addr, auth) },
	}
}

// Notify mails whoever the policy table names for state. detail carries
// causal information for operator mail (e.g. the composition error) and
// is ignored for submitter mail.
func (m *Mailer) Notify(_ context.Context, state archive.State, job models.ArchiveJob, detail string) error {
	switch policyFor(state) {
	case recipientNone:
		return nil

	case recipientSubmitter:
		if job.SubmitterEmail == "" {
			return fmt.Errorf("no submitter address for %s", job.Key())
		}
		e := email.NewEmail()
		e.From = m.from
		e.To = []string{job.SubmitterEmail}
		e.Subject = fmt.Sprintf("Dataset %s archived", job.PersistentID)
		e.Text = []byte(fmt.Sprintf(
			"Version %s of dataset %s has been archived at %s.\r\n",
			job.VersionNumber, job.PersistentID, job.TargetName))
		return m.send(e)

	default:
		e := email.NewEmail()
		e.From = m.from
		e.To = []string{m.operator}
		e.Subject = string(state)
		body := fmt.Sprintf(
			"Archival of dataset %s version %s (target %s) reported state %s.\r\n",
			job.PersistentID, job.VersionNumber, job.TargetName, state)
		if detail != "" {
			body += "\r\n" + detail + "\r\n"
		}
		e.Text = []byte(body)
		return m.send(e)
	}
}

// Compile-time check that Mailer implements archive.Notifier.
var _ archive.Notifier = (*Mailer)(nil)
