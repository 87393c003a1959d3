// Package sendemail provides the email notification action.
package sendemail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"os"
	"strings"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/protocol"
	"github.com/fieldflow/fieldflow/pkg/template"
)

// Action sends a plain-text email over SMTP. Recipient, subject, and body
// support templating against the execution context.
type Action struct {
	To       []string
	Subject  string
	Body     string
	From     string
	SMTPAddr string

	// send is swappable for tests.
	send func(addr, from string, to []string, msg []byte) error
}

func NewAction(config map[string]any) (*Action, error) {
	to := parseRecipients(config["to"])
	if len(to) == 0 {
		return nil, models.NewConfigurationError("to", "missing or invalid 'to' in send_email configuration")
	}

	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)

	from, _ := config["from"].(string)
	if from == "" {
		from = os.Getenv("SMTP_FROM")
	}

	smtpAddr, _ := config["smtp_addr"].(string)
	if smtpAddr == "" {
		smtpAddr = os.Getenv("SMTP_ADDR")
	}

	return &Action{
		To:       to,
		Subject:  subject,
		Body:     body,
		From:     from,
		SMTPAddr: smtpAddr,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}, nil
}

func parseRecipients(value any) []string {
	switch typed := value.(type) {
	case string:
		if typed == "" {
			return nil
		}

		return []string{typed}
	case []any:
		to := make([]string, 0, len(typed))

		for _, entry := range typed {
			if addr, ok := entry.(string); ok && addr != "" {
				to = append(to, addr)
			}
		}

		return to
	default:
		return nil
	}
}

func (a *Action) Execute(_ context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "send_email_action")

	if a.SMTPAddr == "" {
		return nil, models.NewConfigurationError("smtp_addr", "no SMTP server configured (set 'smtp_addr' or SMTP_ADDR)")
	}

	if a.From == "" {
		return nil, models.NewConfigurationError("from", "no sender address configured (set 'from' or SMTP_FROM)")
	}

	to := make([]string, 0, len(a.To))

	for _, recipient := range a.To {
		rendered, err := template.RenderString(recipient, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render recipient: %w", err)
		}

		to = append(to, rendered)
	}

	subject, err := template.RenderString(a.Subject, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}

	body, err := template.RenderString(a.Body, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}

	var msg strings.Builder

	fmt.Fprintf(&msg, "From: %s\r\n", a.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := a.send(a.SMTPAddr, a.From, to, []byte(msg.String())); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	logger.Info("Sent email", "to", to, "subject", subject)

	return map[string]any{
		"email_to":      to,
		"email_subject": subject,
	}, nil
}

// ActionFactory creates send_email actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string { return "send_email" }

func (f *ActionFactory) Name() string { return "Send Email" }

func (f *ActionFactory) Description() string {
	return "Sends a templated plain-text email over SMTP."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"description": "Recipient address or list of addresses. Supports templating.",
				"examples": []any{
					"{{.record.owner_email}}",
					[]string{"sales@example.com", "{{.record.owner_email}}"},
				},
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Email subject. Supports templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Plain-text email body. Supports templating.",
			},
			"from": map[string]any{
				"type":        "string",
				"description": "Sender address. Defaults to SMTP_FROM.",
			},
			"smtp_addr": map[string]any{
				"type":        "string",
				"description": "SMTP server address (host:port). Defaults to SMTP_ADDR.",
			},
		},
		"required":             []string{"to"},
		"additionalProperties": false,
	}
}
