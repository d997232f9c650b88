package messaging

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/grievanceplatform/orchestrator/core"
)

// EmailChannel notifies an office over SMTP. No repo in the retrieval pack
// carries an email SDK, so this is built directly on net/smtp (documented
// in DESIGN.md) rather than left unimplemented — §1's "notification
// (email/SMS)" still needs a concrete channel.
type EmailChannel struct {
	addr   string // host:port of the SMTP relay
	auth   smtp.Auth
	from   string
	logger core.ComponentAwareLogger
}

// NewEmailChannel constructs a channel relaying through an SMTP server at
// host:port, authenticated with username/password (PLAIN auth), sending
// as from.
func NewEmailChannel(host string, port int, username, password, from string, logger core.ComponentAwareLogger) *EmailChannel {
	return &EmailChannel{
		addr:   fmt.Sprintf("%s:%d", host, port),
		auth:   smtp.PlainAuth("", username, password, host),
		from:   from,
		logger: logger,
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(_ context.Context, n Notification) error {
	if n.OfficeEmail == "" {
		return fmt.Errorf("messaging: no office email for grievance %s", n.GrievanceID)
	}
	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.OfficeEmail, n.Subject, n.Body)
	if err := smtp.SendMail(c.addr, c.auth, c.from, []string{n.OfficeEmail}, []byte(msg)); err != nil {
		return fmt.Errorf("messaging: smtp send: %w", err)
	}
	return nil
}
