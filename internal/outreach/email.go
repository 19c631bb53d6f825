package outreach

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"outreach_backend/platform/apperr"
	"outreach_backend/platform/config"
)

const opSendEmail = "outreach.email.send"

// EmailSender delivers email items over SMTP via go-mail.
type EmailSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func NewEmailSender(cfg config.EmailChannelConfig) *EmailSender {
	return &EmailSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

// Send delivers one email and returns the message id it was sent
// under. The caller decides on retries; this does exactly one attempt.
func (s *EmailSender) Send(ctx context.Context, item OutreachItem) (string, error) {
	if s.host == "" {
		return "", apperr.Internal("smtp host not configured").WithOp(opSendEmail)
	}

	messageID := buildMessageID(s.fromEmail)

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return "", apperr.Internal(fmt.Sprintf("smtp from: %v", err)).WithOp(opSendEmail)
	}
	if err := msg.To(item.Recipient); err != nil {
		return "", apperr.Validation(fmt.Sprintf("smtp to: %v", err)).WithOp(opSendEmail)
	}
	msg.Subject(item.Subject)
	msg.SetMessageIDWithValue(strings.Trim(messageID, "<>"))
	msg.SetBodyString(gomail.TypeTextPlain, item.Body)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return "", apperr.Internal(fmt.Sprintf("smtp client: %v", err)).WithOp(opSendEmail)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", apperr.Downstream(fmt.Sprintf("smtp send: %v", err)).WithOp(opSendEmail)
	}
	return messageID, nil
}

func buildMessageID(fromEmail string) string {
	domain := "outreach.local"
	if _, d, found := strings.Cut(fromEmail, "@"); found && d != "" {
		domain = d
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
