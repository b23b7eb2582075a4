package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tipflow/internal/config"
	"tipflow/internal/content"
	"tipflow/internal/textutil"
)

const ntfyMessageLimit = 3500

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
	actions  []string
}

type ntfyService struct {
	endpoint string
	topic    string
	client   *http.Client
}

func newNtfyService(cfg *config.Config) *ntfyService {
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: strings.TrimSpace(cfg.Notifications.NtfyTopic),
		topic:    cfg.Generator.Topic,
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *ntfyService) NotifyApprovalRequested(ctx context.Context, req ApprovalRequest) error {
	var builder strings.Builder
	builder.WriteString(req.Item.Headline)
	if explanation := strings.TrimSpace(req.Item.Explanation); explanation != "" {
		builder.WriteString("\n\n")
		builder.WriteString(explanation)
	}
	builder.WriteString("\n\nFile: ")
	builder.WriteString(req.Item.Filename)

	data := payload{
		title:   fmt.Sprintf("%s Tip - Approval Needed", n.topic),
		message: builder.String(),
		tags:    []string{"tipflow", "approval"},
		actions: []string{
			"view, Approve, " + req.ApproveURL + ", clear=true",
			"view, Reject, " + req.RejectURL + ", clear=true",
		},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPublished(ctx context.Context, item content.Item, viewURL string) error {
	message := fmt.Sprintf("Published: %s", strings.TrimSpace(item.Headline))
	if viewURL != "" {
		message += "\n" + viewURL
	}
	data := payload{
		title:   fmt.Sprintf("%s Tip - Published", n.topic),
		message: message,
		tags:    []string{"tipflow", "published"},
		click:   viewURL,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, label string) error {
	data := payload{
		title:    "tipflow - Error",
		message:  errorMessage(err, label),
		tags:     []string{"tipflow", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "tipflow - Test",
		message:  "Notification system test",
		tags:     []string{"tipflow", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	body := textutil.Truncate(data.message, ntfyMessageLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(body))
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
	if data.click != "" {
		req.Header.Set("Click", data.click)
	}
	if len(data.actions) > 0 {
		req.Header.Set("Actions", strings.Join(data.actions, "; "))
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

func errorMessage(err error, label string) string {
	var builder strings.Builder
	builder.WriteString("Error")
	if label = strings.TrimSpace(label); label != "" {
		builder.WriteString(" during ")
		builder.WriteString(label)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return builder.String()
}
