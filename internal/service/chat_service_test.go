package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"vartalap/internal/domain"
	"vartalap/internal/realtime"
	"vartalap/internal/testutil"
)

func newTestChatService() (*ChatService, *testutil.Store, *realtime.MemoryNotifier) {
	store := testutil.NewStore()
	notifier := realtime.NewMemoryNotifier()
	return NewChatService(zap.NewNop(), store.Chats(), store.Messages(), notifier, 20), store, notifier
}

func strPtr(s string) *string { return &s }

func TestChatServiceCreateChat(t *testing.T) {
	svc, _, notifier := newTestChatService()
	ctx := context.Background()

	sub, err := notifier.Subscribe(ctx, realtime.UserChatsTopic("u1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	a, err := svc.CreateChat(ctx, "u1", strPtr("  Test  "))
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	b, err := svc.CreateChat(ctx, "u1", strPtr("Test"))
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids for repeated titles")
	}
	if a.Title == nil || *a.Title != "Test" {
		t.Fatalf("expected trimmed title, got %v", a.Title)
	}

	blank, err := svc.CreateChat(ctx, "u1", strPtr("   "))
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if blank.Title != nil {
		t.Fatalf("blank title should be stored as null")
	}

	select {
	case <-sub.C():
	default:
		t.Fatalf("expected a chats signal after create")
	}

	chats, err := svc.ListChats(ctx, "u1")
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 3 || chats[0].ID != blank.ID || chats[2].ID != a.ID {
		t.Fatalf("expected newest first, got %+v", chats)
	}
	other, _ := svc.ListChats(ctx, "u2")
	if len(other) != 0 {
		t.Fatalf("another owner must not see u1 chats")
	}
}

func TestChatServiceInsertUserMessage(t *testing.T) {
	svc, _, notifier := newTestChatService()
	ctx := context.Background()
	chat, _ := svc.CreateChat(ctx, "u1", nil)

	sub, _ := notifier.Subscribe(ctx, realtime.ChatMessagesTopic(chat.ID))
	defer sub.Close()

	msg, err := svc.InsertUserMessage(ctx, "u1", chat.ID, "  Hello  ")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if msg.Role != domain.RoleUser || msg.Content != "Hello" || msg.ChatID != chat.ID || msg.ID == "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	select {
	case <-sub.C():
	default:
		t.Fatalf("expected a messages signal after insert")
	}

	list, err := svc.ListMessages(ctx, "u1", chat.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one message, got %v, %v", list, err)
	}
}

func TestChatServiceInsertRejections(t *testing.T) {
	svc, store, _ := newTestChatService()
	ctx := context.Background()
	chat, _ := svc.CreateChat(ctx, "u1", nil)

	cases := []struct {
		name    string
		owner   string
		chatID  string
		content string
		want    error
	}{
		{name: "empty", owner: "u1", chatID: chat.ID, content: "   ", want: domain.ErrEmptyMessage},
		{name: "too long", owner: "u1", chatID: chat.ID, content: "123456789012345678901", want: domain.ErrMessageTooLong},
		{name: "no chat", owner: "u1", chatID: "", content: "hi", want: domain.ErrNoActiveChat},
		{name: "other owner", owner: "u2", chatID: chat.ID, content: "hi", want: domain.ErrChatNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.InsertUserMessage(ctx, tc.owner, tc.chatID, tc.content); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := store.MessageCount(chat.ID); n != 0 {
		t.Fatalf("rejected inserts must not persist, got %d", n)
	}
}

func TestChatServiceOwnershipOnReads(t *testing.T) {
	svc, _, _ := newTestChatService()
	ctx := context.Background()
	chat, _ := svc.CreateChat(ctx, "u1", nil)

	if _, err := svc.ListMessages(ctx, "u2", chat.ID); !errors.Is(err, domain.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
	if _, err := svc.WatchMessages(ctx, "u2", chat.ID); !errors.Is(err, domain.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound on watch, got %v", err)
	}
	sub, err := svc.WatchMessages(ctx, "u1", chat.ID)
	if err != nil {
		t.Fatalf("owner watch failed: %v", err)
	}
	_ = sub.Close()
}
