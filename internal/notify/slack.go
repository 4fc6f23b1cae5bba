package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Slack posts a copy of each alert to an operator channel.
type Slack struct {
	Webhook string
	Client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Notify(ctx context.Context, a Alert) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	text := "*Check " + a.Check.ID + "* (" + a.Phone + ")\n" + a.Message
	body, _ := json.Marshal(slackPayload{Text: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return errors.New("slack non-2xx")
	}
	return nil
}
