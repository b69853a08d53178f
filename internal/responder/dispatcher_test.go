package responder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"vartalap/internal/domain"
)

func TestHTTPDispatcherRespond(t *testing.T) {
	var got actionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Responder-Secret") != "s3cret" {
			t.Errorf("missing secret header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"m-42","content":"hello back"}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, "s3cret", nil)
	msg, err := d.Respond(context.Background(), "u1", "c1", "Hello")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if msg.ID != "m-42" || msg.Content != "hello back" || msg.ChatID != "c1" || msg.Role != domain.RoleAssistant {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if got.Action.Name != "sendMessage" || got.Input.ChatID != "c1" || got.Input.Message != "Hello" {
		t.Fatalf("unexpected action body: %+v", got)
	}
	if got.SessionVariables["x-user-id"] != "u1" {
		t.Fatalf("expected caller in session variables, got %+v", got.SessionVariables)
	}
}

func TestHTTPDispatcherFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"message":"boom"}`},
		{name: "empty id", status: http.StatusOK, body: `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPDispatcher(srv.URL, "", nil).Respond(context.Background(), "u1", "c1", "Hello")
			if !errors.Is(err, domain.ErrResponderFailed) {
				t.Fatalf("expected ErrResponderFailed, got %v", err)
			}
		})
	}

	if _, err := NewHTTPDispatcher("", "", nil).Respond(context.Background(), "u1", "c1", "x"); !errors.Is(err, domain.ErrResponderFailed) {
		t.Fatalf("expected ErrResponderFailed without url, got %v", err)
	}
}
