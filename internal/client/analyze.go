package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"mindscope/internal/conversation"
)

// AnalyzeClient talks to the analysis service over multipart HTTP. It
// implements conversation.Analyzer.
type AnalyzeClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewAnalyzeClient builds a client for the analysis endpoint at baseURL.
// tokens may be nil for anonymous use. There is no request timeout; a slow
// backend holds the turn open until it answers or the context is cancelled.
func NewAnalyzeClient(baseURL string, tokens TokenSource, httpClient *http.Client) *AnalyzeClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AnalyzeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

// Analyze submits one conversation turn and decodes the reply.
func (c *AnalyzeClient) Analyze(ctx context.Context, req conversation.AnalyzeRequest) (*conversation.AnalyzeResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if req.Text != "" {
		if err := mw.WriteField("text", req.Text); err != nil {
			return nil, fmt.Errorf("encode analyze request: %w", err)
		}
	}
	if err := mw.WriteField("is_assessment_mode", strconv.FormatBool(req.AssessmentMode)); err != nil {
		return nil, fmt.Errorf("encode analyze request: %w", err)
	}
	if req.Progress != nil {
		progress, err := json.Marshal(req.Progress)
		if err != nil {
			return nil, fmt.Errorf("encode analyze request: %w", err)
		}
		if err := mw.WriteField("assessment_progress", string(progress)); err != nil {
			return nil, fmt.Errorf("encode analyze request: %w", err)
		}
	}
	if req.SessionID != "" {
		if err := mw.WriteField("session_id", req.SessionID); err != nil {
			return nil, fmt.Errorf("encode analyze request: %w", err)
		}
	}
	for _, att := range req.Attachments {
		part, err := mw.CreateFormFile("files", att.Name)
		if err != nil {
			return nil, fmt.Errorf("encode attachment %s: %w", att.Name, err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, fmt.Errorf("encode attachment %s: %w", att.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("encode analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", &body)
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analyze call: %w", err)
	}
	defer resp.Body.Close()

	// Any non-success status is one uniform failure; the body is not mined
	// for detail.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("analyze call: status %d", resp.StatusCode)
	}

	var out conversation.AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}
	return &out, nil
}

func (c *AnalyzeClient) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if token := c.tokens.CurrentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
