// Package notifier delivers operator reports to a Slack incoming webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/speedrun-hq/spacewalk-tester/pkg/failure"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/metrics"
)

// WebhookBase is prefixed to a bare webhook token
const WebhookBase = "https://hooks.slack.com/services/"

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type block struct {
	Type   string       `json:"type"`
	Text   *textObject  `json:"text,omitempty"`
	Fields []textObject `json:"fields,omitempty"`
}

type payload struct {
	Blocks []block `json:"blocks"`
}

// Slack posts reports as blockkit messages
type Slack struct {
	url        string
	disabled   bool
	httpClient *http.Client
	logger     logger.Logger
}

// NewSlack creates a notifier for a webhook token or a full webhook URL
func NewSlack(token string, logger logger.Logger) *Slack {
	url := token
	if !strings.HasPrefix(token, "http://") && !strings.HasPrefix(token, "https://") {
		url = WebhookBase + token
	}
	return &Slack{
		url:        url,
		httpClient: createHTTPClient(),
		logger:     logger,
	}
}

// NewDisabled creates a notifier that only logs reports
func NewDisabled(logger logger.Logger) *Slack {
	return &Slack{disabled: true, logger: logger}
}

// Send delivers one report
func (s *Slack) Send(ctx context.Context, report failure.Report) error {
	if s.disabled {
		s.logger.Notice("Slack disabled, dropping report: %s", report.Context)
		metrics.Notifications.WithLabelValues("disabled").Inc()
		return nil
	}

	body, err := json.Marshal(render(report))
	if err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to encode report: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to post report: %v", err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			s.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		metrics.Notifications.WithLabelValues("failed").Inc()
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(respBody))
	}

	metrics.Notifications.WithLabelValues("sent").Inc()
	return nil
}

func render(report failure.Report) payload {
	title := report.Title
	if title == "" {
		title = failure.ReportTitle
	}
	p := payload{Blocks: []block{
		{Type: "header", Text: &textObject{Type: "plain_text", Text: title}},
		{Type: "section", Text: &textObject{Type: "mrkdwn", Text: report.Context}},
	}}
	if len(report.Fields) > 0 {
		fields := make([]textObject, 0, len(report.Fields))
		for _, f := range report.Fields {
			fields = append(fields, textObject{Type: "mrkdwn", Text: fmt.Sprintf("*%s*: %s", f.Label, f.Value)})
		}
		p.Blocks = append(p.Blocks, block{Type: "section", Fields: fields})
	}
	return p
}

func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
