package main

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vartalap/internal/backend/backendtest"
	"vartalap/internal/chat"
	"vartalap/internal/domain"
	"vartalap/internal/session"
)

func newTestModel(t *testing.T, fake *backendtest.Fake) *model {
	t.Helper()
	sess := session.New(zap.NewNop(), fake, session.Options{})
	t.Cleanup(sess.Close)
	require.NoError(t, sess.Init(context.Background()))
	_, err := sess.SignUp(context.Background(), "ana@example.com", "long-enough", "Ana")
	require.NoError(t, err)
	user, ok := sess.CurrentUser()
	require.True(t, ok)

	ws := chat.NewWorkspace(context.Background(), zap.NewNop(), sess, chat.WorkspaceOptions{MaxMessageLength: 100})
	t.Cleanup(ws.Close)
	m := newModel(ws, user, make(chan struct{}), make(chan domain.AuthState))
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func typeText(m *model, s string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func runCmd(m *model, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	m.Update(cmd())
}

func TestModelSendsAndClearsInput(t *testing.T) {
	fake := backendtest.New(backendtest.Options{})
	m := newTestModel(t, fake)
	runCmd(m, m.newChat())

	typeText(m, "Hello")
	assert.Equal(t, "Hello", m.ws.Snapshot().View.Input)
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.input.Value())

	m.ws.WaitSends()
	require.Eventually(t, func() bool {
		return len(m.ws.Snapshot().View.Stream.Messages) == 2
	}, 3*time.Second, 5*time.Millisecond)
	m.Update(changedMsg{})

	out := m.View()
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "assistant reply")
}

func TestModelRestoresInputOnFailedSend(t *testing.T) {
	fake := backendtest.New(backendtest.Options{})
	m := newTestModel(t, fake)
	runCmd(m, m.newChat())
	fake.Fail(backendtest.OpInsertUser, domain.ConnectivityFailure(domain.ErrNetwork))

	typeText(m, "Hello")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.ws.WaitSends()
	m.Update(changedMsg{})

	assert.Equal(t, "Hello", m.input.Value())
	assert.Contains(t, m.View(), "esc to dismiss")

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.NotContains(t, m.View(), "esc to dismiss")
}

func TestModelRejectsEmptyInput(t *testing.T) {
	fake := backendtest.New(backendtest.Options{})
	m := newTestModel(t, fake)
	runCmd(m, m.newChat())

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, 0, fake.Calls(backendtest.OpInsertUser))
	assert.Contains(t, m.View(), domain.ErrEmptyMessage.Error())
}

func TestModelCyclesChats(t *testing.T) {
	fake := backendtest.New(backendtest.Options{})
	m := newTestModel(t, fake)
	runCmd(m, m.newChat())
	runCmd(m, m.newChat())
	m.Update(changedMsg{})
	require.Len(t, m.snap.Chats.Chats, 2)
	newest := m.snap.Chats.Chats[0].ID
	older := m.snap.Chats.Chats[1].ID
	assert.Equal(t, newest, m.snap.View.ActiveChat)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	runCmd(m, cmd)
	m.Update(changedMsg{})
	assert.Equal(t, older, m.snap.View.ActiveChat)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	runCmd(m, cmd)
	m.Update(changedMsg{})
	assert.Equal(t, newest, m.snap.View.ActiveChat)
}

func TestModelKeepsLastTabWhenSelectsRunOutOfOrder(t *testing.T) {
	fake := backendtest.New(backendtest.Options{})
	m := newTestModel(t, fake)
	for range 3 {
		runCmd(m, m.newChat())
	}
	m.Update(changedMsg{})
	require.Len(t, m.snap.Chats.Chats, 3)
	oldest := m.snap.Chats.Chats[2].ID

	_, first := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	_, second := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	require.NotNil(t, first)
	require.NotNil(t, second)
	runCmd(m, second)
	runCmd(m, first)
	m.Update(changedMsg{})

	assert.Equal(t, oldest, m.snap.View.ActiveChat)
}

func TestModelQuitsWhenSessionEnds(t *testing.T) {
	fake := backendtest.New(backendtest.Options{})
	m := newTestModel(t, fake)

	_, cmd := m.Update(expiredMsg{state: domain.AuthState{
		Status: domain.AuthUnauthenticated,
		Err:    domain.AuthFailure(domain.ErrSessionExpired),
	}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	require.Error(t, m.ended)
	assert.Contains(t, m.ended.Error(), domain.ErrSessionExpired.Error())
}

func TestRenderMessagesKeepsOrderAndRoles(t *testing.T) {
	out := renderMessages([]domain.Message{
		{ID: "1", Role: domain.RoleUser, Content: "first question"},
		{ID: "2", Role: domain.RoleAssistant, Content: "first answer"},
	}, 60)

	assert.Less(t, strings.Index(out, "first question"), strings.Index(out, "first answer"))
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "Assistant")
	assert.Contains(t, renderMessages(nil, 60), "No messages yet")
}

func TestRenderChatListMarksActive(t *testing.T) {
	title := "Roadmap"
	list := chat.ChatList{Chats: []domain.Chat{{ID: "c1", Title: &title}, {ID: "c2"}}}
	out := renderChatList(list, "c1")
	assert.Contains(t, out, "▸ Roadmap")
	assert.Contains(t, out, "Chat c2")
	assert.Contains(t, renderChatList(chat.ChatList{Loading: true}, ""), "loading")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
