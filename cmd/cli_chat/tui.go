package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vartalap/internal/chat"
	"vartalap/internal/domain"
)

// changedMsg avisa que el workspace cambió; el modelo relee el snapshot.
type changedMsg struct{}

type (
	expiredMsg   struct{ state domain.AuthState }
	actionErrMsg struct{ err error }
)

// model es la interfaz de chat. Todo el estado de mensajes viene del
// workspace; el modelo solo guarda lo propio del layout.
type model struct {
	ws      *chat.Workspace
	user    domain.Identity
	changed <-chan struct{}
	auth    <-chan domain.AuthState

	snap     chat.Snapshot
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	width        int
	height       int
	lastScroll   uint64
	autoSelected bool
	requested    string
	flash        string
	ended        error
}

func newModel(ws *chat.Workspace, user domain.Identity, changed <-chan struct{}, auth <-chan domain.AuthState) *model {
	ti := textinput.New()
	ti.Placeholder = "Type a message (enter to send, ctrl+n new chat, tab to switch, ctrl+c to quit)"
	ti.Prompt = "> "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &model{
		ws:       ws,
		user:     user,
		changed:  changed,
		auth:     auth,
		snap:     ws.Snapshot(),
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(80, 20),
	}
}

func (m *model) Init() tea.Cmd {
	ws := m.ws
	start := func() tea.Msg {
		return actionErrMsg{err: ws.Start()}
	}
	return tea.Batch(textinput.Blink, m.spinner.Tick, start, waitForChange(m.changed), waitForExpiry(m.auth))
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func waitForExpiry(ch <-chan domain.AuthState) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return expiredMsg{state: st}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()

	case changedMsg:
		m.refresh()
		cmds = append(cmds, waitForChange(m.changed))
		if cmd := m.autoSelect(); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case expiredMsg:
		reason := "signed out"
		if msg.state.Err != nil {
			reason = userMessage(msg.state.Err)
		}
		m.ended = fmt.Errorf("session ended (%s), run `vartalap login`", reason)
		return m, tea.Quit

	case actionErrMsg:
		if msg.err != nil {
			m.flash = userMessage(msg.err)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			m.flash = ""
			_ = m.ws.Submit()
			m.refresh()
			return m, nil
		case "ctrl+n":
			m.flash = ""
			return m, m.newChat()
		case "tab":
			return m, m.cycle(1)
		case "shift+tab":
			return m, m.cycle(-1)
		case "esc":
			m.flash = ""
			m.ws.DismissNotice()
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		if m.input.Value() != before {
			m.ws.SetInput(m.input.Value())
		}
	}

	return m, tea.Batch(cmds...)
}

// refresh relee el snapshot y sincroniza la entrada y el scroll.
func (m *model) refresh() {
	m.snap = m.ws.Snapshot()
	view := m.snap.View
	if view.ActiveChat == m.requested {
		m.requested = ""
	}
	if m.input.Value() != view.Input {
		m.input.SetValue(view.Input)
		m.input.CursorEnd()
	}
	m.viewport.SetContent(renderMessages(view.Stream.Messages, m.viewport.Width))
	if view.ScrollSeq != m.lastScroll {
		m.lastScroll = view.ScrollSeq
		m.viewport.GotoBottom()
	}
}

// autoSelect abre el chat más reciente la primera vez que llega la lista.
func (m *model) autoSelect() tea.Cmd {
	if m.autoSelected || m.snap.Chats.Loading || m.snap.View.ActiveChat != "" {
		return nil
	}
	m.autoSelected = true
	if len(m.snap.Chats.Chats) == 0 {
		return nil
	}
	return m.selectChat(m.snap.Chats.Chats[0].ID)
}

// selectChat registra el pedido en orden; uno viejo que llegue tarde no pisa
// al último.
func (m *model) selectChat(id string) tea.Cmd {
	m.requested = id
	apply := m.ws.PrepareSelect(id)
	return func() tea.Msg {
		return actionErrMsg{err: apply()}
	}
}

func (m *model) newChat() tea.Cmd {
	m.autoSelected = true
	m.requested = ""
	ws := m.ws
	return func() tea.Msg {
		_, err := ws.NewChat(nil)
		return actionErrMsg{err: err}
	}
}

// cycle activa el chat siguiente (o anterior) de la lista.
func (m *model) cycle(step int) tea.Cmd {
	chats := m.snap.Chats.Chats
	if len(chats) == 0 {
		return nil
	}
	current := m.snap.View.ActiveChat
	if m.requested != "" {
		current = m.requested
	}
	idx := -1
	for i, c := range chats {
		if c.ID == current {
			idx = i
			break
		}
	}
	next := (idx + step + len(chats)) % len(chats)
	if idx < 0 {
		next = 0
	}
	return m.selectChat(chats[next].ID)
}

func (m *model) resize(width, height int) {
	m.width, m.height = width, height
	mainWidth := max(width-sidebarWidth-2, 20)
	m.viewport.Width = mainWidth
	m.viewport.Height = max(height-headerHeight-footerHeight-2, minBodyHeight)
	m.input.Width = mainWidth - len(m.input.Prompt) - 1
}

func (m *model) View() string {
	view := m.snap.View

	header := titleStyle.Render("vartalap") + " " + statusStyle.Render(displayName(m.user))
	sidebar := sidebarStyle.Height(m.viewport.Height + footerHeight).
		Render(renderChatList(m.snap.Chats, view.ActiveChat))

	var status string
	switch {
	case m.flash != "":
		status = noticeStyle.Render(m.flash)
	case view.Notice != nil:
		status = noticeStyle.Render(userMessage(view.Notice) + " (esc to dismiss)")
	default:
		status = renderStreamStatus(view, m.spinner.View())
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		status,
		m.input.View(),
		helpStyle.Render("enter send · ctrl+n new chat · tab switch · pgup/pgdown scroll"),
	)
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", body),
	)
}

func renderChatList(list chat.ChatList, active string) string {
	switch {
	case list.Loading:
		return statusStyle.Render("loading chats...")
	case list.Err != nil && len(list.Chats) == 0:
		return noticeStyle.Render(userMessage(list.Err))
	case len(list.Chats) == 0:
		return statusStyle.Render("no chats yet, ctrl+n")
	}
	lines := make([]string, 0, len(list.Chats))
	for _, c := range list.Chats {
		title := truncate(c.DisplayTitle(), sidebarWidth-3)
		if c.ID == active {
			lines = append(lines, activeChatStyle.Render("▸ "+title))
		} else {
			lines = append(lines, chatItemStyle.Render("  "+title))
		}
	}
	return strings.Join(lines, "\n")
}

func renderMessages(msgs []domain.Message, width int) string {
	if len(msgs) == 0 {
		return statusStyle.Render("No messages yet. Say hello!")
	}
	body := messageStyle.Width(max(width-2, 10))
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		label := userLabelStyle.Render("You")
		if msg.Role == domain.RoleAssistant {
			label = assistantLabelStyle.Render("Assistant")
		}
		parts = append(parts, label+"\n"+body.Render(msg.Content))
	}
	return strings.Join(parts, "\n\n")
}

func renderStreamStatus(view chat.View, spin string) string {
	switch {
	case view.ActiveChat == "":
		return statusStyle.Render("select a chat with tab or create one with ctrl+n")
	case view.Typing:
		return statusStyle.Render(spin + " assistant is typing...")
	case view.Sending:
		return statusStyle.Render(spin + " sending...")
	case view.Stream.Status == chat.StreamLoading:
		return statusStyle.Render(spin + " loading messages...")
	case view.Stream.Status == chat.StreamError:
		return noticeStyle.Render("live updates lost: " + userMessage(view.Stream.Err))
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
