package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mindscope/internal/models"
)

func TestChatsClientCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chats" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var body createChatBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Title != "I feel tired" || len(body.Messages) != 2 {
			t.Errorf("unexpected body: %+v", body)
		}
		json.NewEncoder(w).Encode(models.ChatRecord{
			ID: 7, Title: body.Title, Messages: body.Messages,
		})
	}))
	defer srv.Close()

	c := NewChatsClient(srv.URL, StaticToken("tok"), srv.Client())
	rec, err := c.Create(context.Background(), "I feel tired", []models.Message{
		{ID: "1", Role: models.RoleUser, Text: "I feel tired"},
		{ID: "2", Role: models.RoleAI, Text: "Tell me more"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != 7 {
		t.Fatalf("assigned id = %d", rec.ID)
	}
}

func TestChatsClientUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/chats/7" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body updateChatBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Messages) != 3 {
			t.Errorf("unexpected body (err %v): %+v", err, body)
		}
		json.NewEncoder(w).Encode(models.ChatRecord{ID: 7})
	}))
	defer srv.Close()

	c := NewChatsClient(srv.URL, StaticToken("tok"), srv.Client())
	msgs := []models.Message{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	if err := c.Update(context.Background(), 7, msgs); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestChatsClientList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/chats" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode([]models.ChatRecord{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}})
	}))
	defer srv.Close()

	c := NewChatsClient(srv.URL, StaticToken("tok"), srv.Client())
	recs, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 || recs[0].Title != "a" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestChatsClientAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewChatsClient(srv.URL, nil, srv.Client())
	if _, err := c.List(context.Background()); err == nil {
		t.Fatalf("expected error on 401")
	}
}

func TestMemoryTokenSourceNotifiesListeners(t *testing.T) {
	src := NewMemoryTokenSource()
	var seen []string
	src.OnChange(func(tok string) { seen = append(seen, tok) })

	src.Set("first")
	src.Clear()

	if src.CurrentToken() != "" {
		t.Fatalf("token not cleared")
	}
	if len(seen) != 2 || seen[0] != "first" || seen[1] != "" {
		t.Fatalf("listener calls = %v", seen)
	}
}
