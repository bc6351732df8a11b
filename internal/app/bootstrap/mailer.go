package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/brightsmile/dental-scheduling/internal/config"
	"github.com/brightsmile/dental-scheduling/internal/notify"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// BuildEmailSender selects the outbound mail transport from config and
// returns it with the provider name. When no transport can be built the
// sender is nil and reason says why; notifications then degrade to a
// no-op instead of failing startup.
func BuildEmailSender(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) (notify.EmailSender, string, string) {
	if cfg == nil {
		return nil, "", "missing config"
	}
	if logger == nil {
		logger = logging.Default()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.EmailProvider))
	switch provider {
	case "sendgrid":
		sender := buildSendGrid(cfg, logger)
		if sender == nil {
			return nil, "sendgrid", "SENDGRID_API_KEY not set"
		}
		return sender, "sendgrid", ""
	case "ses":
		sender := buildSES(cfg, sesClient, logger)
		if sender == nil {
			return nil, "ses", "no SES client available"
		}
		return sender, "ses", ""
	case "stub":
		return notify.NewStubEmailSender(logger), "stub", ""
	case "", "auto":
		if sender := buildSendGrid(cfg, logger); sender != nil {
			return sender, "sendgrid", ""
		}
		if sender := buildSES(cfg, sesClient, logger); sender != nil {
			return sender, "ses", ""
		}
		return nil, "", "no email transport configured"
	default:
		return nil, provider, "unknown email provider"
	}
}

func buildSendGrid(cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender == nil {
		return nil
	}
	return sender
}

func buildSES(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	if strings.TrimSpace(cfg.SESFromEmail) == "" {
		return nil
	}
	sender := notify.NewSESSender(sesClient, notify.SESConfig{
		FromEmail: cfg.SESFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender == nil {
		return nil
	}
	return sender
}
