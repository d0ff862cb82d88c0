// Package mailer delivers notification e-mails.
package mailer

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Message is a plain-text e-mail to one recipient
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	Text      string
}

// Mailer sends messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns a SendGrid mailer when apiKey is set, a console mailer otherwise
func New(apiKey, appName, fromAddress string) Mailer {
	if apiKey == "" {
		return NewConsole(appName)
	}
	return NewSendGrid(apiKey, appName, fromAddress)
}

// ============================================================================
// SendGrid
// ============================================================================

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type sendGridMailer struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

// NewSendGrid creates a mailer using the SendGrid v3 API
func NewSendGrid(key, appName, fromAddress string) Mailer {
	return &sendGridMailer{
		key:        key,
		from:       sgmail.NewEmail(appName, fromAddress),
		subjPrefix: "[" + appName + "] ",
	}
}

func (m *sendGridMailer) Send(ctx context.Context, msg Message) error {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", msg.Text))

	req := sendgrid.GetRequest(m.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(v3)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// ============================================================================
// Console
// ============================================================================

// Console writes messages to the log. It keeps nothing in memory, so it is
// safe as the long-running fallback when SendGrid is not configured.
type Console struct {
	subjPrefix string
}

// NewConsole creates a log-only mailer
func NewConsole(appName string) *Console {
	return &Console{subjPrefix: "[" + appName + "] "}
}

func (c *Console) Send(ctx context.Context, msg Message) error {
	body := new(strings.Builder)
	fmt.Fprintf(body, "To: %s <%s>\n", msg.ToName, msg.ToAddress)
	fmt.Fprintf(body, "Subject: %s%s\n\n", c.subjPrefix, msg.Subject)
	body.WriteString(msg.Text)
	log.Printf("INFO: [mail]\n%s", body.String())
	return nil
}
