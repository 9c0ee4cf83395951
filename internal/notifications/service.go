package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/stellar-oracle/love-oracle/internal/config"
	"github.com/stellar-oracle/love-oracle/internal/models"
	"github.com/stellar-oracle/love-oracle/internal/report"
	"gopkg.in/gomail.v2"
)

// MailSender is satisfied by *gomail.Dialer
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service fans a finished reading out to the configured channels
type Service struct {
	config *config.Config
	client *resty.Client
	mailer MailSender
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// WebhookMessage is a MessageCard-style payload accepted by Teams and most chat webhooks
type WebhookMessage struct {
	Type     string           `json:"@type"`
	Context  string           `json:"@context"`
	Title    string           `json:"title"`
	Text     string           `json:"text"`
	Sections []WebhookSection `json:"sections,omitempty"`
}

type WebhookSection struct {
	ActivityTitle string        `json:"activityTitle,omitempty"`
	Facts         []WebhookFact `json:"facts,omitempty"`
	Markdown      bool          `json:"markdown,omitempty"`
}

type WebhookFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
		mailer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

// WithMailer replaces the SMTP dialer
func (s *Service) WithMailer(m MailSender) *Service {
	s.mailer = m
	return s
}

// Enabled reports whether any channel is configured
func (s *Service) Enabled() bool {
	return s.config.WebhookURL != "" || s.config.NotificationEmail != ""
}

// SendReading sends a reading via configured notification channels
func (s *Service) SendReading(reading *models.Reading, reportHTML []byte) error {
	var errors []string

	if s.config.WebhookURL != "" {
		if err := s.sendWebhook(reading); err != nil {
			logrus.Errorf("Failed to send webhook notification: %v", err)
			errors = append(errors, fmt.Sprintf("Webhook: %v", err))
		} else {
			logrus.WithField("reading_id", reading.ID).Info("Sent reading to webhook")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(reading, reportHTML); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.WithField("reading_id", reading.ID).Info("Sent reading via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendWebhook(reading *models.Reading) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(buildWebhookMessage(reading)).
		Post(s.config.WebhookURL)

	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

// buildWebhookMessage carries metadata only; narrative and transcript stay private
func buildWebhookMessage(reading *models.Reading) *WebhookMessage {
	facts := []WebhookFact{
		{Name: "User", Value: reading.UserID},
		{Name: "Match", Value: fmt.Sprintf("%d%%", reading.MatchRate)},
		{Name: "Trend", Value: string(reading.Trend)},
		{Name: "Messages", Value: fmt.Sprintf("%d", reading.Messages)},
		{Name: "Model", Value: reading.Model},
		{Name: "Generated", Value: reading.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
	}
	if len(reading.Warnings) > 0 {
		facts = append(facts, WebhookFact{Name: "Warnings", Value: strings.Join(reading.Warnings, " / ")})
	}

	return &WebhookMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   "Love Oracle reading completed",
		Text:    fmt.Sprintf("Reading %s finished with a %d%% match", reading.ID, reading.MatchRate),
		Sections: []WebhookSection{{
			ActivityTitle: "Summary",
			Facts:         facts,
			Markdown:      true,
		}},
	}
}

func (s *Service) sendEmail(reading *models.Reading, reportHTML []byte) error {
	subject := fmt.Sprintf("恋のオラクル 鑑定書 - %s (%d%%)", reading.Counterpart, reading.MatchRate)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", report.RenderText(reading))
	if len(reportHTML) > 0 {
		m.AddAlternative("text/html", string(reportHTML))
	}

	if err := s.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
