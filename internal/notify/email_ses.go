package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/wolfman30/healsmart/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends templated emails via AWS SES.
type SESSender struct {
	client           sesAPI
	fromEmail        string
	fromName         string
	configurationSet string
	logger           *logging.Logger
}

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	FromEmail        string
	FromName         string
	ConfigurationSet string
}

// NewSESSender creates an SES sender, or nil without a client.
func NewSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "HealSmart"
	}
	return &SESSender{
		client:           client,
		fromEmail:        cfg.FromEmail,
		fromName:         cfg.FromName,
		configurationSet: cfg.ConfigurationSet,
		logger:           logger,
	}
}

func (s *SESSender) SendTemplate(ctx context.Context, email TemplateEmail) error {
	if s == nil || s.client == nil {
		return errors.New("notify: SES client not configured")
	}
	if err := email.Validate(); err != nil {
		return err
	}

	input, err := s.buildInput(email)
	if err != nil {
		return err
	}
	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "to", email.To)
		return fmt.Errorf("notify: SES send failed: %w", err)
	}

	s.logger.Info("email sent via SES", "to", email.To, "template_id", email.TemplateID, "message_id", aws.ToString(output.MessageId))
	return nil
}

func (s *SESSender) buildInput(email TemplateEmail) (*sesv2.SendEmailInput, error) {
	params := email.Params
	if params == nil {
		params = map[string]string{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("notify: marshal template data: %w", err)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination: &types.Destination{
			ToAddresses: []string{email.To},
		},
		Content: &types.EmailContent{
			Template: &types.Template{
				TemplateName: aws.String(email.TemplateID),
				TemplateData: aws.String(string(data)),
			},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}
	if email.ServiceID != "" {
		input.EmailTags = []types.MessageTag{{Name: aws.String("service"), Value: aws.String(email.ServiceID)}}
	}
	return input, nil
}

var _ TemplateSender = (*SESSender)(nil)
