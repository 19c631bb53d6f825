// Package transcripts turns call transcripts into structured sales
// insights and maintains the shared phrase library.
package transcripts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Extraction states.
const (
	StatusProcessed         = "processed"
	StatusEnrichmentPending = "enrichment_pending"
)

// Extraction is the structured insight document produced by the agent.
type Extraction struct {
	Objections []string `json:"objections"`
	Champions  []string `json:"champions"`
	Blockers   []string `json:"blockers"`
	Phrases    []string `json:"phrases"`
	NextSteps  []string `json:"next_steps"`
	Budget     string   `json:"budget,omitempty"`
	Timeline   string   `json:"timeline,omitempty"`
}

// ExtractionRecord stores the normalized transcript and, once the
// agent has run, its extraction. A record parked in
// enrichment_pending keeps the transcript so a retry needs nothing
// from the provider.
type ExtractionRecord struct {
	MeetingID  string          `json:"meetingId"`
	Status     string          `json:"status"`
	Transcript string          `json:"transcript"`
	Extraction json.RawMessage `json:"extraction,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type segment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// NormalizeTranscript accepts either a flat transcript string or a
// speaker-tagged segment array and produces speaker-attributed text,
// one "Speaker: text" line per segment. Flat input is attributed to
// "Unknown".
func NormalizeTranscript(raw json.RawMessage) (string, error) {
	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil {
		flat = strings.TrimSpace(flat)
		if flat == "" {
			return "", fmt.Errorf("transcript is empty")
		}
		return "Unknown: " + flat, nil
	}

	var segments []segment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return "", fmt.Errorf("transcript is neither text nor segments: %w", err)
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("transcript is empty")
	}

	var b strings.Builder
	for i, seg := range segments {
		speaker := strings.TrimSpace(seg.Speaker)
		if speaker == "" {
			speaker = "Unknown"
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(seg.Text))
	}
	return b.String(), nil
}
