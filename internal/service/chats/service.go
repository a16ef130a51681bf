package chats

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mindscope/internal/models"
)

// ErrNotFound is returned when a chat does not exist or belongs to another user.
var ErrNotFound = errors.New("chat not found")

// Service persists chat records. Each record stores its full message history
// as one JSON snapshot which is rewritten wholesale on update; last write
// wins, there is no merge.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create inserts a new chat for the user and returns it with its assigned id.
func (s *Service) Create(ctx context.Context, userID int64, title string, messages []models.Message) (*models.ChatRecord, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	if title == "" {
		title = "New Chat"
	}
	snapshot, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (user_id, title, messages, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		userID, title, snapshot, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("chat id: %w", err)
	}
	return &models.ChatRecord{
		ID: id, UserID: userID, Title: title,
		Messages: messages, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Update replaces the message snapshot of the user's chat.
func (s *Service) Update(ctx context.Context, userID, chatID int64, messages []models.Message) (*models.ChatRecord, error) {
	if chatID <= 0 {
		return nil, errors.New("invalid chat id")
	}
	snapshot, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET messages = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		snapshot, now, chatID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, userID, chatID)
}

// Get returns one chat with its decoded history.
func (s *Service) Get(ctx context.Context, userID, chatID int64) (*models.ChatRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, messages, created_at, updated_at FROM chats WHERE id = ? AND user_id = ?`,
		chatID, userID,
	)
	rec, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns the user's chats ordered by last activity.
func (s *Service) List(ctx context.Context, userID int64) ([]models.ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, messages, created_at, updated_at FROM chats WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var records []models.ChatRecord
	for rows.Next() {
		rec, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Delete removes the user's chat.
func (s *Service) Delete(ctx context.Context, userID, chatID int64) error {
	if chatID <= 0 {
		return errors.New("invalid chat id")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*models.ChatRecord, error) {
	var rec models.ChatRecord
	var snapshot string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Title, &snapshot, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	if err := json.Unmarshal([]byte(snapshot), &rec.Messages); err != nil {
		return nil, fmt.Errorf("decode chat %d history: %w", rec.ID, err)
	}
	return &rec, nil
}

func encodeMessages(messages []models.Message) (string, error) {
	if messages == nil {
		messages = []models.Message{}
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(encoded), nil
}
