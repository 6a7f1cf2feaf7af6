package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aakash-priyadarshi/news-duplication-system/internal/storage"
)

const (
	systemName    = "newsdedup"
	systemVersion = "1.0"

	webhookAttempts   = 3
	webhookRetryDelay = time.Second
)

// Channel delivers one alert to one destination. Send never panics; every
// failure is reported in the returned result.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *storage.Alert) storage.ChannelResult
}

// --- webhook ---

// WebhookChannel POSTs the alert payload to a configured endpoint.
// Transport errors and 5xx responses are retried up to webhookAttempts.
type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookChannel{url: url, client: client}
}

func (w *WebhookChannel) Name() string { return "webhook" }

type webhookAlert struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Summary     string           `json:"summary"`
	Source      string           `json:"source"`
	Category    string           `json:"category"`
	Priority    string           `json:"priority"`
	URL         string           `json:"url"`
	PublishedAt time.Time        `json:"publishedAt"`
	Entities    []storage.Entity `json:"entities"`
	Tags        []string         `json:"tags"`
	CreatedAt   time.Time        `json:"createdAt"`
}

type webhookPayload struct {
	Type     string            `json:"type"`
	Alert    webhookAlert      `json:"alert"`
	Metadata map[string]string `json:"metadata"`
}

func (w *WebhookChannel) Send(ctx context.Context, alert *storage.Alert) storage.ChannelResult {
	entities := alert.Entities
	if len(entities) > 10 {
		entities = entities[:10]
	}
	payload := webhookPayload{
		Type: "news_alert",
		Alert: webhookAlert{
			ID:          alert.ID,
			Title:       alert.Title,
			Summary:     alert.Summary,
			Source:      alert.Source,
			Category:    alert.Category,
			Priority:    alert.Priority,
			URL:         alert.URL,
			PublishedAt: alert.PublishedAt,
			Entities:    entities,
			Tags:        alert.Tags,
			CreatedAt:   alert.CreatedAt,
		},
		Metadata: map[string]string{
			"system":     systemName,
			"version":    systemVersion,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"deliveryId": uuid.NewString(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return storage.ChannelResult{Channel: w.Name(), Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	var lastResult storage.ChannelResult
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		lastResult = w.post(ctx, body)
		if lastResult.Success {
			return lastResult
		}
		// 4xx will not get better on retry
		if lastResult.StatusCode != nil && *lastResult.StatusCode >= 400 && *lastResult.StatusCode < 500 {
			return lastResult
		}
		if attempt < webhookAttempts {
			select {
			case <-time.After(webhookRetryDelay):
			case <-ctx.Done():
				return lastResult
			}
		}
	}
	return lastResult
}

func (w *WebhookChannel) post(ctx context.Context, body []byte) storage.ChannelResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return storage.ChannelResult{Channel: w.Name(), Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return storage.ChannelResult{Channel: w.Name(), Error: err.Error()}
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	result := storage.ChannelResult{Channel: w.Name(), StatusCode: &code}
	if code >= 200 && code < 300 {
		result.Success = true
	} else {
		result.Error = fmt.Sprintf("webhook returned status %d", code)
	}
	return result
}

// --- slack ---

// SlackChannel posts a single attachment to a Slack incoming webhook, with
// color by priority and the article title linking to the source.
type SlackChannel struct {
	webhookURL string
	channel    string
	client     *http.Client
}

func NewSlackChannel(webhookURL, channel string, client *http.Client) *SlackChannel {
	if client == nil {
		client = &http.Client{}
	}
	return &SlackChannel{webhookURL: webhookURL, channel: channel, client: client}
}

func (s *SlackChannel) Name() string { return "slack" }

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	TitleLink string       `json:"title_link"`
	Text      string       `json:"text,omitempty"`
	Fields    []slackField `json:"fields"`
	Footer    string       `json:"footer,omitempty"`
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackColor(priority string) string {
	switch priority {
	case "high":
		return "danger"
	case "low":
		return "good"
	default:
		return "warning"
	}
}

func (s *SlackChannel) Send(ctx context.Context, alert *storage.Alert) storage.ChannelResult {
	payload := slackPayload{
		Channel: s.channel,
		Attachments: []slackAttachment{{
			Color:     slackColor(alert.Priority),
			Title:     alert.Title,
			TitleLink: alert.URL,
			Text:      alert.Summary,
			Fields: []slackField{
				{Title: "Source", Value: alert.Source, Short: true},
				{Title: "Category", Value: alert.Category, Short: true},
				{Title: "Priority", Value: alert.Priority, Short: true},
				{Title: "Published", Value: alert.PublishedAt.UTC().Format("2006-01-02 15:04 MST"), Short: true},
			},
			Footer: fmt.Sprintf("%s delivery %s", systemName, uuid.NewString()),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return storage.ChannelResult{Channel: s.Name(), Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return storage.ChannelResult{Channel: s.Name(), Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return storage.ChannelResult{Channel: s.Name(), Error: err.Error()}
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	result := storage.ChannelResult{Channel: s.Name(), StatusCode: &code}
	if code >= 200 && code < 300 {
		result.Success = true
	} else {
		result.Error = fmt.Sprintf("slack returned status %d", code)
	}
	return result
}

// --- email ---

// EmailChannel sends plain-text alert mail over SMTP.
type EmailChannel struct {
	host     string
	port     int
	user     string
	password string
	from     string
	to       []string

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailChannel(host string, port int, user, password, from string, to []string) *EmailChannel {
	return &EmailChannel{
		host: host, port: port, user: user, password: password,
		from: from, to: to,
		send: smtp.SendMail,
	}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(_ context.Context, alert *storage.Alert) storage.ChannelResult {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&msg, "Subject: [%s] %s\r\n", strings.ToUpper(alert.Priority), alert.Title)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\n\nSource: %s\nCategory: %s\nPublished: %s\n\n%s\n",
		alert.Title, alert.Source, alert.Category,
		alert.PublishedAt.UTC().Format(time.RFC1123), alert.URL)
	if alert.Summary != "" {
		fmt.Fprintf(&msg, "\n%s\n", alert.Summary)
	}

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}
	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	if err := e.send(addr, auth, e.from, e.to, []byte(msg.String())); err != nil {
		return storage.ChannelResult{Channel: e.Name(), Error: err.Error()}
	}
	return storage.ChannelResult{Channel: e.Name(), Success: true}
}
