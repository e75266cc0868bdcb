package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"watchtower/internal/logging"
)

// Channel delivers one alert. Implementations must be safe for concurrent
// use and must bound their own blocking time; the manager isolates failures
// but does not impose timeouts beyond what the channel configures.
type Channel interface {
	Name() string
	Send(alert Alert) error
}

// defaultHTTPTimeout bounds webhook deliveries.
const defaultHTTPTimeout = 10 * time.Second

// ----------------------------------------------------------------------------
// Log channel
// ----------------------------------------------------------------------------

// LogChannel writes alerts to the structured logger. Always available, never
// fails; it is the floor every rule should include.
type LogChannel struct {
	logger *logging.Logger
}

// NewLogChannel creates a log-only channel.
func NewLogChannel(logger *logging.Logger) *LogChannel {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogChannel{logger: logger.Named("alert")}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(alert Alert) error {
	fields := []zap.Field{
		zap.String("alert_id", alert.ID),
		zap.String("rule", alert.RuleName),
		zap.String("level", string(alert.Level)),
		zap.Time("fired_at", alert.FiredAt),
	}
	switch alert.Level {
	case LevelCritical:
		c.logger.Critical(alert.Message, fields...)
	case LevelError:
		c.logger.Error(alert.Message, fields...)
	case LevelWarning:
		c.logger.Warn(alert.Message, fields...)
	default:
		c.logger.Info(alert.Message, fields...)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Email channel
// ----------------------------------------------------------------------------

// EmailConfig holds SMTP settings for the email channel.
type EmailConfig struct {
	Host     string   `yaml:"host" validate:"required"`
	Port     int      `yaml:"port" validate:"required"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from" validate:"required,email"`
	To       []string `yaml:"to" validate:"required,min=1"`
}

// EmailChannel sends an HTML-formatted alert mail over SMTP.
type EmailChannel struct {
	cfg  EmailConfig
	send func(...*gomail.Message) error
}

// NewEmailChannel creates an SMTP channel.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &EmailChannel{cfg: cfg, send: dialer.DialAndSend}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(alert Alert) error {
	m := gomail.NewMessage()
	m.SetHeader("From", c.cfg.From)
	m.SetHeader("To", c.cfg.To...)
	m.SetHeader("Subject", fmt.Sprintf("[%s] %s", alert.Level, alert.RuleName))
	m.SetBody("text/html", renderEmailHTML(alert))

	if err := c.send(m); err != nil {
		return fmt.Errorf("email dispatch: %w", err)
	}
	return nil
}

func renderEmailHTML(alert Alert) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "<h2>%s</h2>", alert.RuleName)
	fmt.Fprintf(&b, "<p><b>Level:</b> %s</p>", alert.Level)
	fmt.Fprintf(&b, "<p><b>Fired:</b> %s</p>", alert.FiredAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "<p>%s</p>", alert.Message)
	if len(alert.Details) > 0 {
		b.WriteString("<ul>")
		for k, v := range alert.Details {
			fmt.Fprintf(&b, "<li><b>%s:</b> %s</li>", k, v)
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

// ----------------------------------------------------------------------------
// Webhook channels
// ----------------------------------------------------------------------------

// ChatWebhookChannel posts a compact text payload shaped for chat tools
// (Slack-compatible "text" field).
type ChatWebhookChannel struct {
	url    string
	client *http.Client
}

// NewChatWebhookChannel creates a chat webhook channel.
func NewChatWebhookChannel(url string) *ChatWebhookChannel {
	return &ChatWebhookChannel{
		url:    url,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (c *ChatWebhookChannel) Name() string { return "chat_webhook" }

func (c *ChatWebhookChannel) Send(alert Alert) error {
	payload := map[string]string{
		"text": fmt.Sprintf("[%s] %s: %s", alert.Level, alert.RuleName, alert.Message),
	}
	return postJSON(c.client, c.url, payload)
}

// WebhookChannel posts the full alert as JSON to a generic endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a generic webhook channel.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(alert Alert) error {
	return postJSON(c.client, c.url, alert)
}

func postJSON(client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
