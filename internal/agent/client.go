// Package agent provides the client for the external agent service used for
// reply classification, transcript extraction and account research. Calls are
// single prompt-in, structured-result-out with a bounded timeout; a timeout
// or non-success status is a recoverable downstream failure, never retried
// here.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach_backend/platform/apperr"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"google.golang.org/genai"
)

// Role selects the system instruction for an invocation.
type Role string

const (
	RoleClassifier Role = "classifier"
	RoleExtractor  Role = "extractor"
	RoleResearcher Role = "researcher"
)

var roleInstructions = map[Role]string{
	RoleClassifier: "You classify inbound sales reply messages. Respond with JSON only, no prose.",
	RoleExtractor:  "You extract structured insights from sales call transcripts. Respond with JSON only, no prose.",
	RoleResearcher: "You research companies from their email domain and summarize what a seller should know. Respond with JSON only, no prose.",
}

// Result is the outcome of an agent invocation.
type Result struct {
	Status string `json:"status"`
	Text   string `json:"text"`
}

// StatusSuccess marks a completed invocation.
const StatusSuccess = "success"

// ErrAgentDisabled is returned when no API key is configured.
var ErrAgentDisabled = errors.New("agent service not configured")

// Invoker is the narrow interface event handlers depend on. Implemented by
// Client; tests provide fakes.
type Invoker interface {
	Invoke(ctx context.Context, role Role, prompt string) (Result, error)
}

// Client calls the generative model backing the agent service.
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *logger.Logger
}

// NewClient creates an agent client. Returns a disabled client (Invoke fails
// with ErrAgentDisabled) when no API key is configured, so callers can treat
// enrichment as optional.
func NewClient(ctx context.Context, cfg config.AgentConfig, log *logger.Logger) (*Client, error) {
	if !cfg.IsAgentEnabled() {
		return &Client{model: cfg.GetAgentModel(), timeout: cfg.GetAgentTimeout(), log: log}, nil
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	timeout := cfg.GetAgentTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client:  gc,
		model:   cfg.GetAgentModel(),
		timeout: timeout,
		log:     log,
	}, nil
}

// Invoke sends a prompt under the given role and returns the model's text.
func (c *Client) Invoke(ctx context.Context, role Role, prompt string) (Result, error) {
	if c.client == nil {
		return Result{}, ErrAgentDisabled
	}

	instruction, ok := roleInstructions[role]
	if !ok {
		return Result{}, apperr.Validation(fmt.Sprintf("unknown agent role %q", role))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, apperr.Wrap(apperr.KindDownstream, "agent call timed out", err)
		}
		return Result{}, apperr.Wrap(apperr.KindDownstream, "agent call failed", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Result{}, apperr.Downstream("agent returned empty response")
	}

	return Result{Status: StatusSuccess, Text: text}, nil
}

// DecodeJSON parses an agent result into out, tolerating markdown code
// fences around the JSON body.
func DecodeJSON(result Result, out interface{}) error {
	text := strings.TrimSpace(result.Text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return apperr.Wrap(apperr.KindDownstream, "agent returned malformed JSON", err)
	}
	return nil
}
