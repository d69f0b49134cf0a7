package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"campaignd/internal/domain"
)

// Client talks to an HTTP mail relay: POST {base}/v1/messages with a bearer
// key, JSON in and out.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

type SendRequest struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	Subject    string            `json:"subject"`
	HTML       string            `json:"html"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	TrackingID string            `json:"tracking_id,omitempty"`
}

type SendResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error is a non-2xx relay response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relay: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("relay: send failed with status %d", e.Status)
}

// Temporary is true for responses worth backing off from: 408, 429 and 5xx.
func (e *Error) Temporary() bool {
	return e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests ||
		(e.Status >= 500 && e.Status <= 599)
}

func (c *Client) Send(ctx context.Context, msg domain.Message) (string, error) {
	from := msg.From.Address
	if msg.From.Name != "" {
		from = fmt.Sprintf("%s <%s>", msg.From.Name, msg.From.Address)
	}
	b, err := json.Marshal(SendRequest{
		From:       from,
		To:         msg.To,
		Subject:    msg.Subject,
		HTML:       msg.HTML,
		TrackingID: msg.TrackingID,
		Metadata:   map[string]string{"campaign_id": msg.CampaignID, "recipient_id": msg.RecipientID},
	})
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var out SendResponse
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Status: resp.StatusCode, Code: out.Code, Message: out.Message}
	}
	if out.ID == "" {
		return "", fmt.Errorf("relay: response without message id")
	}
	return out.ID, nil
}
