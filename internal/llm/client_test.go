package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClientCompleteSendsTurns(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Fatalf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hola"}}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "key", "test-model", nil)
	out, err := c.Complete(context.Background(), []Turn{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hola" {
		t.Fatalf("expected hola, got %q", out)
	}
	if got.Model != "test-model" || len(got.Messages) != 2 || got.Messages[1].Content != "hi" {
		t.Fatalf("unexpected request body: %+v", got)
	}
}

func TestHTTPClientCompleteErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		is     error
	}{
		{name: "http error", status: http.StatusBadGateway, body: `{}`},
		{name: "api error", status: http.StatusOK, body: `{"error":{"message":"quota"}}`},
		{name: "empty", status: http.StatusOK, body: `{"choices":[{"message":{"content":"  "}}]}`, is: ErrEmptyCompletion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, "key", "m", nil)
			_, err := c.Complete(context.Background(), []Turn{{Role: RoleUser, Content: "x"}})
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("expected %v, got %v", tc.is, err)
			}
		})
	}
}

func TestHTTPClientRejectsEmptyConversation(t *testing.T) {
	c := NewHTTPClient("http://unused", "key", "m", nil)
	if _, err := c.Complete(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty conversation")
	}
}
