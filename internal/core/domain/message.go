package domain

import (
	"strings"
	"time"
)

// InboundMessage is a single unsolicited message received from the email-like channel.
type InboundMessage struct {
	ID        string    `json:"id"`
	ThreadKey string    `json:"thread_key"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Date      time.Time `json:"date"`
}

// Thread returns the conversation key, falling back to the message id.
func (m InboundMessage) Thread() string {
	if key := strings.TrimSpace(m.ThreadKey); key != "" {
		return key
	}
	return strings.TrimSpace(m.ID)
}

// MessageRef is the listing view returned by an email source before the full fetch.
type MessageRef struct {
	ID        string `json:"id"`
	ThreadKey string `json:"thread_key,omitempty"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
}
