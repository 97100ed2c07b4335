package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iyuangang/webservice-monitor/internal/models"
)

// Webhook posts alert transitions to a configured URL. An empty URL disables
// it; senders should check Enabled first.
type Webhook struct {
	URL  string
	HTTP *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:  url,
		HTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Enabled() bool {
	return w.URL != ""
}

type payload struct {
	Event  string       `json:"event"`
	Alert  models.Alert `json:"alert"`
	Config string       `json:"config"`
	SentAt time.Time    `json:"sent_at"`
}

// Send posts one alert transition. event is "opened" or "resolved".
func (w *Webhook) Send(ctx context.Context, event, configName string, alert models.Alert) error {
	if !w.Enabled() {
		return fmt.Errorf("webhook not configured")
	}
	b, _ := json.Marshal(payload{Event: event, Alert: alert, Config: configName, SentAt: time.Now().UTC()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d: %s", res.StatusCode, string(body))
	}
	return nil
}
