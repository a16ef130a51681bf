package models

import (
	"encoding/json"
	"time"
)

// Role identifies who produced a chat turn.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
	RoleErr  Role = "error"
)

// Attachment is a file reference carried alongside a user message.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Message is one turn of a conversation. Messages are immutable once
// created; the conversation log only ever appends them.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// IsAssessmentQuestion marks AI turns delivered while a mental health
	// check is active and not yet complete.
	IsAssessmentQuestion bool `json:"isAssessmentQuestion,omitempty"`
	// Sentiment carries the analysis service's combined_sentiment payload
	// verbatim; the client stores and renders it without interpreting it.
	Sentiment json.RawMessage `json:"sentiment,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
