package store

import "time"

// Item is one stored entry of the similarity index.
type Item struct {
	ID string `json:"id"`

	// Vector dimensionality is shared by every item in one index.
	Vector []float32 `json:"-"`

	// Text is exactly what was embedded. Kept for inspection only.
	Text string `json:"text"`

	// Metadata carries display fields (subject, sender, date). Never used
	// for matching.
	Metadata map[string]string `json:"metadata,omitempty"`

	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Match is a query result. Score is in [0, 1], larger is more similar.
type Match struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"`
}

// Metadata keys written by the duplicate detector.
const (
	MetaSubject = "subject"
	MetaSender  = "sender"
	MetaDate    = "date"
)
