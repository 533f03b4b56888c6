package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/stocktax/src/config"
	"github.com/username/stocktax/src/logger"
)

type EmailService interface {
	SendReportReadyEmail(toEmail, accountID string, reportPaths []string) error
}

func NewEmailService() EmailService {
	if config.Cfg == nil {
		slog.Error("Configuration (config.Cfg) is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:          mg,
			senderEmail: config.Cfg.SenderEmail,
			senderName:  config.Cfg.SenderName,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{}
	}
}

type MailgunEmailService struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
}

func (s *MailgunEmailService) SendReportReadyEmail(toEmail, accountID string, reportPaths []string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	subject := fmt.Sprintf("Tax reports ready for account %s", accountID)

	plainTextBody := fmt.Sprintf(`Hi,

The tax report export for account %s has finished. The following files were written:

%s

Thanks,
The Stocktax Team`, accountID, strings.Join(reportPaths, "\n"))

	var items strings.Builder
	for _, path := range reportPaths {
		items.WriteString(fmt.Sprintf("<li>%s</li>", path))
	}
	htmlBody := fmt.Sprintf(`
	<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6;">
			<p>Hi,</p>
			<p>The tax report export for account <b>%s</b> has finished. The following files were written:</p>
			<ul>%s</ul>
			<p>Thanks,<br>The Stocktax Team</p>
		</body>
	</html>`, accountID, items.String())

	message := s.mg.NewMessage(from, subject, plainTextBody, toEmail)
	message.SetHtml(htmlBody)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send report-ready email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Report-ready email sent successfully via Mailgun", "to", toEmail, "id", id, "mailgunResp", resp)
	return nil
}

// MockEmailService logs instead of sending; used in development and tests.
type MockEmailService struct {
	SentCount int
}

func (s *MockEmailService) SendReportReadyEmail(toEmail, accountID string, reportPaths []string) error {
	s.SentCount++
	logger.L.Info("MOCK EMAIL: report ready", "to", toEmail, "accountID", accountID, "reports", len(reportPaths))
	return nil
}
