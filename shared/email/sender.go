package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"

	"trend-stack/internal/models"
	"trend-stack/shared/config"
)

//go:embed templates/gap_digest.html
var templateFS embed.FS

var digestTemplate = template.Must(template.New("gap_digest.html").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"category": func(c models.Category) string {
		if c == models.CategoryNone {
			return "-"
		}
		return string(c)
	},
}).ParseFS(templateFS, "templates/gap_digest.html"))

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	config *config.EmailConfig
	send   sendFunc
}

func NewSender(cfg *config.EmailConfig) *Sender {
	return &Sender{
		config: cfg,
		send:   smtp.SendMail,
	}
}

// SendGapReport mails the gap digest. An empty report is not sent.
func (s *Sender) SendGapReport(report *models.GapReport) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	if len(report.Gaps) == 0 {
		return nil // Nothing to report
	}

	subject := fmt.Sprintf("Content Gap Digest - %d Opportunities (%s)",
		len(report.Gaps), report.Date.Format("Jan 2, 2006"))

	body, err := s.generateEmailBody(report)
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}

	return s.SendHTML(subject, body)
}

// SendHTML sends an email with custom HTML content
func (s *Sender) SendHTML(subject, htmlBody string) error {
	return s.sendViaSMTP(subject, htmlBody)
}

func (s *Sender) sendViaSMTP(subject, body string) error {
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPServer)
	}

	to := []string{s.config.ToEmail}
	msg := []byte(fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.config.ToEmail, s.config.FromEmail, subject, body))

	addr := fmt.Sprintf("%s:%d", s.config.SMTPServer, s.config.SMTPPort)
	if err := s.send(addr, auth, s.config.FromEmail, to, msg); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", addr, err)
	}
	return nil
}

func (s *Sender) generateEmailBody(report *models.GapReport) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}
