package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type chatRequest struct {
	Model          string `json:"model"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func writeChat(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"invalid_request_error"}}`, msg)
}

func newTestOpenAI(t *testing.T, url string) Backend {
	t.Helper()
	b, err := New(Config{
		ID:          CustomOpenAI,
		BaseURL:     url,
		APIKey:      "test-key",
		Model:       "test-model",
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func batch() Request {
	return Request{
		Items:        []Item{{ID: "s0", Text: "Hello"}, {ID: "s1", Text: "World"}},
		SourceLocale: "en",
		TargetLocale: "de",
	}
}

func TestOpenAITranslateBatch(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		writeChat(w, `{"segments":[{"id":"s0","text":"Hallo"},{"id":"s1","text":"Welt"},{"id":"s9","text":"invented"}]}`)
	}))
	defer srv.Close()

	out, err := newTestOpenAI(t, srv.URL).TranslateBatch(context.Background(), batch())
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}
	if len(out) != 2 || out["s0"] != "Hallo" || out["s1"] != "Welt" {
		t.Fatalf("out = %v", out)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Fatalf("structured output not requested: %+v", gotReq.ResponseFormat)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
}

func TestOpenAIStructuredOutputFallback(t *testing.T) {
	var calls, jsonCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat != nil {
			atomic.AddInt32(&jsonCalls, 1)
			writeAPIError(w, http.StatusBadRequest, "response_format json_object is not supported by this model")
			return
		}
		writeChat(w, "```json\n{\"segments\":[{\"id\":\"s0\",\"text\":\"Hallo\"},{\"id\":\"s1\",\"text\":\"Welt\"}]}\n```")
	}))
	defer srv.Close()

	b := newTestOpenAI(t, srv.URL)
	out, err := b.TranslateBatch(context.Background(), batch())
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}
	if out["s0"] != "Hallo" {
		t.Fatalf("out = %v", out)
	}
	if calls != 2 || jsonCalls != 1 {
		t.Fatalf("calls = %d (json %d), want 2 (json 1)", calls, jsonCalls)
	}

	if _, err := b.TranslateBatch(context.Background(), batch()); err != nil {
		t.Fatal(err)
	}
	if jsonCalls != 1 {
		t.Fatalf("structured output retried after rejection: json calls = %d", jsonCalls)
	}
}

func TestOpenAIAuthIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeAPIError(w, http.StatusUnauthorized, "Incorrect API key provided")
	}))
	defer srv.Close()

	_, err := newTestOpenAI(t, srv.URL).TranslateBatch(context.Background(), batch())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeAPIError(w, http.StatusServiceUnavailable, "overloaded")
			return
		}
		writeChat(w, `{"segments":[{"id":"s0","text":"Hallo"}]}`)
	}))
	defer srv.Close()

	out, err := newTestOpenAI(t, srv.URL).TranslateBatch(context.Background(), batch())
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}
	if calls != 3 || out["s0"] != "Hallo" {
		t.Fatalf("calls = %d, out = %v", calls, out)
	}
	if _, ok := out["s1"]; ok {
		t.Fatal("missing id must stay absent")
	}
}

func TestOpenAIExhaustedRetriesAreTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusBadGateway, "bad gateway")
	}))
	defer srv.Close()

	_, err := newTestOpenAI(t, srv.URL).TranslateBatch(context.Background(), batch())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestOpenAIMalformedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChat(w, "Sorry, I can't help with that.")
	}))
	defer srv.Close()

	_, err := newTestOpenAI(t, srv.URL).TranslateBatch(context.Background(), batch())
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput", err)
	}
}

func TestOpenAITimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestOpenAI(t, srv.URL).TranslateBatch(ctx, batch())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestEmptyBatchMakesNoCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()

	out, err := newTestOpenAI(t, srv.URL).TranslateBatch(context.Background(), Request{TargetLocale: "de"})
	if err != nil || len(out) != 0 {
		t.Fatalf("out = %v, err = %v", out, err)
	}
}
