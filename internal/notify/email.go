package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// TemplateSender sends an email rendered by the provider from a stored
// template. Implementations can be swapped without changing callers.
type TemplateSender interface {
	SendTemplate(ctx context.Context, email TemplateEmail) error
}

// TemplateEmail addresses one templated email. ServiceID groups sends per
// sending service at the provider; Params fill the template.
type TemplateEmail struct {
	ServiceID  string            `json:"service_id"`
	TemplateID string            `json:"template_id"`
	To         string            `json:"to"`
	ToName     string            `json:"to_name,omitempty"`
	Params     map[string]string `json:"params"`
}

// Validate checks the fields every provider needs.
func (e TemplateEmail) Validate() error {
	var missing []string
	if strings.TrimSpace(e.TemplateID) == "" {
		missing = append(missing, "template_id")
	}
	if strings.TrimSpace(e.To) == "" {
		missing = append(missing, "to")
	}
	if len(missing) > 0 {
		return fmt.Errorf("notify: template email missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends dynamic-template emails via the SendGrid API.
type SendGridSender struct {
	client    sendgridAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender creates a SendGrid sender, or nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "HealSmart"
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) SendTemplate(ctx context.Context, email TemplateEmail) error {
	if s == nil || s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}
	if err := email.Validate(); err != nil {
		return err
	}

	message := buildSendGridMail(s.fromName, s.fromEmail, email)
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", email.To)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", email.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "to", email.To, "template_id", email.TemplateID, "status", response.StatusCode)
	return nil
}

func buildSendGridMail(fromName, fromEmail string, email TemplateEmail) *mail.SGMailV3 {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(fromName, fromEmail))
	message.SetTemplateID(email.TemplateID)
	if email.ServiceID != "" {
		message.AddCategories(email.ServiceID)
	}

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(email.ToName, email.To))
	for key, value := range email.Params {
		p.SetDynamicTemplateData(key, value)
	}
	message.AddPersonalizations(p)
	return message
}

// StubSender logs instead of sending. Used when no provider is configured.
type StubSender struct {
	logger *logging.Logger
}

func NewStubSender(logger *logging.Logger) *StubSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSender{logger: logger}
}

func (s *StubSender) SendTemplate(ctx context.Context, email TemplateEmail) error {
	if err := email.Validate(); err != nil {
		return err
	}
	s.logger.Info("stub email sender: would send email",
		"to", email.To, "service_id", email.ServiceID, "template_id", email.TemplateID)
	return nil
}

var (
	_ TemplateSender = (*SendGridSender)(nil)
	_ TemplateSender = (*StubSender)(nil)
)
