package email

import (
	"strings"
	"testing"
	"time"
)

func TestBuildMessageHeaders(t *testing.T) {
	msg := buildMessage("no-reply@example.com", "Vartalap", "a@example.com", "Confirm your account", "body")
	if !strings.Contains(msg, "From: Vartalap <no-reply@example.com>\r\n") {
		t.Fatalf("missing named from header: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nbody") {
		t.Fatalf("body should follow a blank line: %q", msg)
	}
}

func TestVerificationBodyGreetsByName(t *testing.T) {
	exp := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	body := verificationBody(Verification{DisplayName: "Asha", Code: "123456", ExpiresAt: exp})
	if !strings.HasPrefix(body, "Hi Asha,") {
		t.Fatalf("unexpected greeting: %q", body)
	}
	if !strings.Contains(body, "123456") || !strings.Contains(body, "2025-01-02T03:04:05Z") {
		t.Fatalf("body missing code or expiry: %q", body)
	}
}

func TestNewSMTPSenderValidates(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{From: "x@example.com"}); err == nil {
		t.Fatalf("expected error without host")
	}
	if _, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com"}); err == nil {
		t.Fatalf("expected error without from")
	}
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "x@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.cfg.Port != 587 {
		t.Fatalf("expected default port 587, got %d", s.cfg.Port)
	}
}
