package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ollamaweb/internal/models"
)

func TestChatSendsSystemPrompt(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Message: models.ChatMessage{Role: models.RoleAssistant, Content: "hello"},
			Done:    true,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.Chat(context.Background(), "llama3.2", []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
	}, "be brief")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Message.Content != "hello" {
		t.Fatalf("content = %q, want hello", resp.Message.Content)
	}
	if got.Stream {
		t.Error("non-streaming chat must send stream=false")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != models.RoleSystem || got.Messages[0].Content != "be brief" {
		t.Fatalf("system prompt not prepended: %+v", got.Messages)
	}
}

func TestChatKeepsExistingSystemMessage(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(ChatResponse{Done: true})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Chat(context.Background(), "llama3.2", []models.ChatMessage{
		{Role: models.RoleSystem, Content: "original"},
		{Role: models.RoleUser, Content: "hi"},
	}, "replacement")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "original" {
		t.Fatalf("existing system message should win: %+v", got.Messages)
	}
}

func TestChatUpstreamErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model 'nope' not found"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Chat(context.Background(), "nope", nil, "")
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T", err)
	}
	if ce.Type != ErrTypeHTTP || ce.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected classification: %+v", ce)
	}
	if ce.Message != "model 'nope' not found" {
		t.Fatalf("message = %q", ce.Message)
	}
}

func TestChatConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens on the URL anymore

	client := NewClient(srv.URL)
	_, err := client.Chat(context.Background(), "llama3.2", nil, "")
	if !IsUnreachable(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]interface{}{
				{"name": "llama3.2:latest", "size": 2019393189},
				{"name": "qwen2.5:7b", "size": 4683087332},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	list, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(list) != 2 || list[0].Name != "llama3.2:latest" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestShowModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["name"] != "llama3.2" {
			t.Errorf("name = %q", req["name"])
		}
		json.NewEncoder(w).Encode(ModelDetails{Template: "{{ .Prompt }}"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	details, err := client.ShowModel(context.Background(), "llama3.2")
	if err != nil {
		t.Fatalf("show model: %v", err)
	}
	if details.Template == "" {
		t.Fatal("expected template in details")
	}
}

func TestIsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if !client.IsAvailable(context.Background()) {
		t.Fatal("expected available")
	}

	srv.Close()
	if client.IsAvailable(context.Background()) {
		t.Fatal("expected unavailable after server close")
	}
}
