// Package email implements an SMTP-based email notifier
package email

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/newthinker/paperdesk/internal/core"
	"github.com/newthinker/paperdesk/internal/notifier"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email implements the Notifier interface for SMTP email
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string

	send sendFunc
}

// New creates a new Email notifier
func New(host string, port int, username, password, from string, to []string) *Email {
	return &Email{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		send:     smtp.SendMail,
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Init(cfg notifier.Config) error {
	if host, ok := cfg.Params["host"].(string); ok {
		e.host = host
	}
	switch port := cfg.Params["port"].(type) {
	case int:
		e.port = port
	case float64:
		e.port = int(port)
	}
	if username, ok := cfg.Params["username"].(string); ok {
		e.username = username
	}
	if password, ok := cfg.Params["password"].(string); ok {
		e.password = password
	}
	if from, ok := cfg.Params["from"].(string); ok {
		e.from = from
	}
	switch to := cfg.Params["to"].(type) {
	case []string:
		e.to = to
	case []any:
		e.to = e.to[:0]
		for _, addr := range to {
			if s, ok := addr.(string); ok {
				e.to = append(e.to, s)
			}
		}
	case string:
		e.to = strings.Split(to, ",")
	}

	if e.host == "" || e.from == "" || len(e.to) == 0 {
		return fmt.Errorf("email: host, from, and to are required")
	}
	if e.port == 0 {
		e.port = 587
	}
	if e.send == nil {
		e.send = smtp.SendMail
	}
	return nil
}

func (e *Email) Notify(event core.AlertTriggered) error {
	subject := fmt.Sprintf("Paperdesk Alert: %s %s %s", event.Ticker, event.Direction, event.TargetPrice.StringFixed(2))
	return e.sendEmail(subject, e.formatEvent(event))
}

func (e *Email) NotifyBatch(events []core.AlertTriggered) error {
	if len(events) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Paperdesk Digest: %d Price Alerts", len(events))

	var sb strings.Builder
	sb.WriteString("<html><body>")
	sb.WriteString("<h2>Paperdesk Price Alerts</h2>")
	sb.WriteString(fmt.Sprintf("<p>Generated at: %s</p>", time.Now().UTC().Format("2006-01-02 15:04:05")))
	sb.WriteString("<hr>")

	for _, ev := range events {
		sb.WriteString(e.formatEventHTML(ev))
		sb.WriteString("<hr>")
	}

	sb.WriteString("</body></html>")

	return e.sendEmail(subject, sb.String())
}

func (e *Email) formatEvent(ev core.AlertTriggered) string {
	return fmt.Sprintf(`
Paperdesk Price Alert

Ticker: %s
Condition: %s %s
Price: %s
Note: %s
Time: %s
`,
		ev.Ticker,
		ev.Direction,
		ev.TargetPrice.StringFixed(2),
		ev.Price.StringFixed(2),
		ev.Note,
		ev.TriggeredAt.Format("2006-01-02 15:04:05"),
	)
}

func (e *Email) formatEventHTML(ev core.AlertTriggered) string {
	color := "#28a745" // green for above
	if ev.Direction == core.DirectionBelow {
		color = "#dc3545" // red for below
	}

	return fmt.Sprintf(`
<div style="margin: 10px 0;">
  <h3 style="color: %s;">%s %s %s</h3>
  <p><strong>Price:</strong> %s</p>
  <p><strong>Note:</strong> %s</p>
  <p><small>%s</small></p>
</div>
`,
		color,
		ev.Ticker,
		ev.Direction,
		ev.TargetPrice.StringFixed(2),
		ev.Price.StringFixed(2),
		ev.Note,
		ev.TriggeredAt.Format("2006-01-02 15:04:05"),
	)
}

func (e *Email) sendEmail(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	contentType := "text/plain"
	if strings.Contains(body, "<html>") {
		contentType = "text/html"
	}

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: %s; charset=UTF-8\r\n"+
		"\r\n"+
		"%s",
		e.from,
		strings.Join(e.to, ","),
		subject,
		contentType,
		body,
	)

	return e.send(addr, auth, e.from, e.to, []byte(msg))
}
