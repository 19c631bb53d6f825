package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"outreach_backend/platform/apperr"
)

// Poster delivers one notification payload. Implemented by
// WebhookClient; tests provide fakes.
type Poster interface {
	Post(ctx context.Context, payload any) error
}

const opPost = "notify.client.post"

// WebhookClient posts JSON documents to the approval-channel webhook
// URL.
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Configured reports whether a webhook URL is set.
func (c *WebhookClient) Configured() bool {
	return c.url != ""
}

func (c *WebhookClient) Post(ctx context.Context, payload any) error {
	if c.url == "" {
		return apperr.Internal("notification webhook url not configured").WithOp(opPost)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("encode notification failed: %v", err)).WithOp(opPost)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return apperr.Internal(fmt.Sprintf("build notification request failed: %v", err)).WithOp(opPost)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Downstream(fmt.Sprintf("notification webhook unreachable: %v", err)).WithOp(opPost)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.Downstream(fmt.Sprintf("notification webhook returned %d: %s", resp.StatusCode, snippet)).WithOp(opPost)
	}
	return nil
}
