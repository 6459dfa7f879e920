package dedupe

import (
	"time"

	"github.com/DreamCats/mailtriage/internal/store"
)

// Message is the minimal view of a mailbox message the detector needs.
type Message struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Sender  string    `json:"sender,omitempty"`
	Date    time.Time `json:"date,omitempty"`
}

// MessageText builds the text that gets embedded: the subject, a blank line,
// then at most maxChars runes of the body. maxChars <= 0 keeps the whole body.
func MessageText(msg Message, maxChars int) string {
	body := msg.Body
	if maxChars > 0 {
		runes := []rune(body)
		if len(runes) > maxChars {
			body = string(runes[:maxChars])
		}
	}
	return msg.Subject + "\n\n" + body
}

func metadataFor(msg Message) map[string]string {
	meta := map[string]string{
		store.MetaSubject: msg.Subject,
	}
	if msg.Sender != "" {
		meta[store.MetaSender] = msg.Sender
	}
	if !msg.Date.IsZero() {
		meta[store.MetaDate] = msg.Date.UTC().Format(time.RFC3339)
	}
	return meta
}
