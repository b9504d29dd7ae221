package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier posts collector health alerts to a Discord-compatible webhook.
// An empty webhook URL makes every call a no-op.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

type webhookMessage struct {
	Content string  `json:"content"`
	Embeds  []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Color       int       `json:"color"`
	Timestamp   time.Time `json:"timestamp"`
	Fields      []field   `json:"fields,omitempty"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

const (
	colorWarn  = 0xE6B800
	colorError = 0xC80000
)

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchFailure reports consecutive poll failures against the MBTA API.
func (n *Notifier) FetchFailure(consecutive int, lastErr error) error {
	color := colorWarn
	if consecutive >= 10 {
		color = colorError
	}
	return n.send(webhookMessage{
		Embeds: []embed{{
			Title:       "Route 109 collector fetch failures",
			Description: lastErr.Error(),
			Color:       color,
			Timestamp:   time.Now().UTC(),
			Fields: []field{
				{Name: "consecutive_failures", Value: fmt.Sprintf("%d", consecutive), Inline: true},
			},
		}},
	})
}

// Recovered reports that polling succeeded again after failures.
func (n *Notifier) Recovered(afterFailures int) error {
	return n.send(webhookMessage{
		Content: fmt.Sprintf("Route 109 collector recovered after %d failed polls", afterFailures),
	})
}

func (n *Notifier) send(msg webhookMessage) error {
	if n.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling webhook message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, n.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	return nil
}
