package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agilentuimf/internal/config"
)

const userAgent = "agilentuimf/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventConversionCompleted Event = "conversion_completed"
	EventConversionFailed    Event = "conversion_failed"
	EventTest                Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]string

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		notifySuccess: cfg.Notifications.NotifySuccess,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	notifySuccess bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) render(event Event, p Payload) (message, bool) {
	dataset := strings.TrimSpace(p["dataset"])
	switch event {
	case EventConversionCompleted:
		if !n.notifySuccess {
			return message{}, false
		}
		body := fmt.Sprintf("Converted %s", dataset)
		if elapsed := p["elapsed"]; elapsed != "" {
			body += " in " + elapsed
		}
		if encoding := p["encoding"]; encoding != "" {
			body += "\nEncoding: " + encoding
		}
		if output := p["output"]; output != "" {
			body += "\nFile: " + output
		}
		if note := p["evaluation"]; note != "" {
			body += "\nNote: " + note
		}
		return message{
			title: "agilentuimf - Converted",
			body:  body,
			tags:  []string{"agilentuimf", "convert", "completed"},
		}, true
	case EventConversionFailed:
		var b strings.Builder
		b.WriteString("Conversion failed")
		if dataset != "" {
			b.WriteString(" for ")
			b.WriteString(dataset)
		}
		b.WriteString(": ")
		if reason := strings.TrimSpace(p["message"]); reason != "" {
			b.WriteString(reason)
		} else {
			b.WriteString("unknown")
		}
		tags := []string{"agilentuimf", "error"}
		if category := p["category"]; category != "" {
			tags = append(tags, category)
		}
		return message{
			title:    "agilentuimf - Failed",
			body:     b.String(),
			tags:     tags,
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "agilentuimf - Test",
			body:     "Notification system test",
			tags:     []string{"agilentuimf", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
