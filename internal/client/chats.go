package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mindscope/internal/models"
)

// ChatsClient is the persistence gateway for chat records. It implements
// conversation.ChatStore and additionally lists the caller's saved chats.
type ChatsClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func NewChatsClient(baseURL string, tokens TokenSource, httpClient *http.Client) *ChatsClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ChatsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

type createChatBody struct {
	Title     string           `json:"title"`
	Messages  []models.Message `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
}

type updateChatBody struct {
	Messages []models.Message `json:"messages"`
}

// Create saves a new chat record and returns it with its assigned id.
func (c *ChatsClient) Create(ctx context.Context, title string, messages []models.Message) (*models.ChatRecord, error) {
	body := createChatBody{Title: title, Messages: messages, CreatedAt: time.Now().UTC()}
	var rec models.ChatRecord
	if err := c.do(ctx, http.MethodPost, "/api/chats", body, &rec); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &rec, nil
}

// Update replaces the message snapshot of an existing record. Last write
// wins; there is no conflict detection.
func (c *ChatsClient) Update(ctx context.Context, id int64, messages []models.Message) error {
	path := fmt.Sprintf("/api/chats/%d", id)
	if err := c.do(ctx, http.MethodPut, path, updateChatBody{Messages: messages}, nil); err != nil {
		return fmt.Errorf("update chat %d: %w", id, err)
	}
	return nil
}

// List fetches the caller's chat records, newest first.
func (c *ChatsClient) List(ctx context.Context) ([]models.ChatRecord, error) {
	var recs []models.ChatRecord
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &recs); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return recs, nil
}

func (c *ChatsClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.CurrentToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
