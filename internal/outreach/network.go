package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"outreach_backend/internal/admission"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/config"
)

const opNetworkSend = "outreach.network.send"

// NetworkSender delivers connection requests and InMails through the
// professional-network provider API.
type NetworkSender struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewNetworkSender(cfg config.NetworkChannelConfig) *NetworkSender {
	return &NetworkSender{
		baseURL: cfg.GetNetworkAPIURL(),
		apiKey:  cfg.GetNetworkAPIKey(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type networkSendRequest struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message"`
}

type networkSendResponse struct {
	ID string `json:"id"`
}

// Send delivers one network action and returns the provider's message
// id. Exactly one attempt; the admission layer owns pacing and the
// caller owns retries.
func (s *NetworkSender) Send(ctx context.Context, item OutreachItem) (string, error) {
	if s.baseURL == "" || s.apiKey == "" {
		return "", apperr.Internal("network api not configured").WithOp(opNetworkSend)
	}

	var path string
	switch item.Kind {
	case admission.ActionConnectionRequest:
		path = "/v1/connection_requests"
	case admission.ActionInMail:
		path = "/v1/inmails"
	default:
		return "", apperr.Validation(fmt.Sprintf("kind %q cannot be sent over the network channel", item.Kind)).WithOp(opNetworkSend)
	}

	body, err := json.Marshal(networkSendRequest{
		Recipient: item.Recipient,
		Subject:   item.Subject,
		Message:   item.Body,
	})
	if err != nil {
		return "", apperr.Internal(fmt.Sprintf("encode network request failed: %v", err)).WithOp(opNetworkSend)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", apperr.Internal(fmt.Sprintf("build network request failed: %v", err)).WithOp(opNetworkSend)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", apperr.Downstream(fmt.Sprintf("network api unreachable: %v", err)).WithOp(opNetworkSend)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperr.Downstream(fmt.Sprintf("network api returned %d: %s", resp.StatusCode, snippet)).WithOp(opNetworkSend)
	}

	var parsed networkSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperr.Downstream(fmt.Sprintf("network api response unreadable: %v", err)).WithOp(opNetworkSend)
	}
	return parsed.ID, nil
}
