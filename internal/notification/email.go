package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smukkama/pipeline-monitor/internal/model"
	"github.com/smukkama/pipeline-monitor/internal/protocol"
	"github.com/smukkama/pipeline-monitor/pkg/config"
)

var (
	leakTemplate = template.Must(template.New("leak").Parse(`
Pipeline Leak Detected
======================

Segment: {{.SegmentID}}
Severity: {{.Severity}}
Detected At: {{.Timestamp.Format "2006-01-02 15:04:05 MST"}}
Alert ID: {{.AlertID}}

{{.Message}}

Dispatch a maintenance crew to the segment and resolve the alert from
the dashboard once the repair is confirmed.

---
Pipeline Monitor Notification System
`))

	resolvedTemplate = template.Must(template.New("resolved").Parse(`
Pipeline Leak Resolved
======================

Segment: {{.SegmentID}}
Resolved At: {{.Timestamp.Format "2006-01-02 15:04:05 MST"}}
Alert ID: {{.AlertID}}

{{.Message}}

---
Pipeline Monitor Notification System
`))
)

// SendFunc matches smtp.SendMail
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends email notifications for critical leaks and repairs
type EmailNotifier struct {
	config       *config.SMTPConfig
	send         SendFunc
	retryBackoff time.Duration
	maxBackoff   time.Duration
	logger       logrus.FieldLogger
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, logger logrus.FieldLogger) *EmailNotifier {
	return &EmailNotifier{
		config:       cfg,
		send:         smtp.SendMail,
		retryBackoff: time.Second,
		maxBackoff:   time.Minute,
		logger:       logger,
	}
}

// ShouldNotify reports whether an alert event warrants an email
func ShouldNotify(event *protocol.AlertEvent) bool {
	if event.IsResolution() {
		return true
	}
	return event.Type == model.AlertLeak && event.Severity == model.SeverityCritical
}

// SendAlertNotification emails an alert event. Events that do not warrant
// an email are skipped without error.
func (e *EmailNotifier) SendAlertNotification(event *protocol.AlertEvent) error {
	if !ShouldNotify(event) {
		return nil
	}

	subject, body, err := render(event)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return e.sendEmail(subject, body)
}

// Deliver sends the notification for an event, retrying failed sends with
// backoff until one succeeds or ctx is done
func (e *EmailNotifier) Deliver(ctx context.Context, event *protocol.AlertEvent) error {
	backoff := e.retryBackoff
	for {
		err := e.SendAlertNotification(event)
		if err == nil {
			return nil
		}
		e.logger.WithError(err).WithFields(logrus.Fields{
			"alert": event.AlertID,
			"retry": backoff,
		}).Warn("Failed to send notification")

		select {
		case <-ctx.Done():
			return fmt.Errorf("notification for %s not sent: %w", event.AlertID, err)
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > e.maxBackoff {
			backoff = e.maxBackoff
		}
	}
}

func render(event *protocol.AlertEvent) (string, string, error) {
	tmpl := leakTemplate
	subject := fmt.Sprintf("🚨 Pipeline Leak - %s (%s)", event.SegmentID, event.Severity)
	if event.IsResolution() {
		tmpl = resolvedTemplate
		subject = fmt.Sprintf("✅ Pipeline Leak Resolved - %s", event.SegmentID)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, event); err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	if e.config.Username == "" || e.config.Password == "" {
		e.logger.WithField("subject", subject).Info("SMTP not configured, skipping email")
		return nil
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", e.config.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.send(addr, auth, e.config.From, []string{e.config.To}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.WithField("subject", subject).Info("Email sent")
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()
	return nil
}
