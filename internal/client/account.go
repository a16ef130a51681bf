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
)

// AccountClient handles registration and login. On a successful login it
// pushes the issued bearer token into the token source so the analyze and
// chats clients pick it up.
type AccountClient struct {
	baseURL string
	http    *http.Client
	tokens  *MemoryTokenSource
}

func NewAccountClient(baseURL string, tokens *MemoryTokenSource, httpClient *http.Client) *AccountClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &AccountClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account. It does not log the user in.
func (c *AccountClient) Register(ctx context.Context, username, password string) error {
	if err := c.post(ctx, "/api/users/register", credentialsBody{Username: username, Password: password}, nil); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// Login authenticates and stores the bearer token for subsequent requests.
func (c *AccountClient) Login(ctx context.Context, username, password string) error {
	var body struct {
		AuthToken string `json:"auth_token"`
	}
	if err := c.post(ctx, "/api/users/login", credentialsBody{Username: username, Password: password}, &body); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if body.AuthToken == "" {
		return fmt.Errorf("login: no token in response")
	}
	if c.tokens != nil {
		c.tokens.Set(body.AuthToken)
	}
	return nil
}

// Logout revokes the server-side token and drops the local one. The local
// token is cleared even when the server call fails.
func (c *AccountClient) Logout(ctx context.Context) error {
	err := c.post(ctx, "/api/users/logout", nil, nil)
	if c.tokens != nil {
		c.tokens.Clear()
	}
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *AccountClient) post(ctx context.Context, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
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
	return json.NewDecoder(resp.Body).Decode(out)
}
