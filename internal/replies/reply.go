// Package replies classifies inbound reply messages and stores the
// outcome keyed by provider message id.
package replies

import "time"

// Categories a reply can classify into.
const (
	CategoryPositive      = "positive"
	CategoryNeutral       = "neutral"
	CategoryObjection     = "objection"
	CategoryNotInterested = "not_interested"
	CategoryOutOfOffice   = "out_of_office"
)

func validCategory(c string) bool {
	switch c {
	case CategoryPositive, CategoryNeutral, CategoryObjection, CategoryNotInterested, CategoryOutOfOffice:
		return true
	}
	return false
}

// ClassificationRecord is one classified reply.
type ClassificationRecord struct {
	MessageID string    `json:"messageId"`
	ThreadID  string    `json:"threadId"`
	From      string    `json:"from"`
	Subject   string    `json:"subject,omitempty"`
	Snippet   string    `json:"snippet,omitempty"`
	Category  string    `json:"category"`
	Signals   []string  `json:"signals,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
