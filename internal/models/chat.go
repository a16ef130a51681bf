package models

import "time"

// ChatRecord is the persisted snapshot of one conversation's history.
// The id is assigned by the persistence service on first save; a record
// is created once per conversation and updated in place afterwards.
type ChatRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
