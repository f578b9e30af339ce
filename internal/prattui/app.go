// Package prattui is the terminal UI: a bubbletea program wired around the
// timeline session, the composer and the typing tracker. The TUI owns layout
// and key handling; all timeline semantics live in the engine packages.
package prattui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/pratchat/prat/internal/chat"
	"github.com/pratchat/prat/internal/composer"
	"github.com/pratchat/prat/internal/config"
	"github.com/pratchat/prat/internal/presence"
	"github.com/pratchat/prat/internal/prattui/state"
	"github.com/pratchat/prat/internal/sched"
	"github.com/pratchat/prat/internal/timeline"
)

// chromeLines is the fixed vertical space around the timeline viewport:
// header, typing line, attachment line and the input prompt.
const chromeLines = 4

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	typingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("108"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type inputMode int

const (
	modeCompose inputMode = iota
	modeEdit
)

// Pulled messages from the push channel and the engine's update callbacks.
type (
	refreshMsg   struct{}
	pushEventMsg struct{ ev chat.Event }
	reconnectMsg struct{}
	pushGoneMsg  struct{}
)

// Model is the bubbletea model. It reads engine state through the session's
// accessors on every refresh; it never keeps its own copy of timeline data.
type Model struct {
	cfg  *config.Config
	self chat.Identity
	log  zerolog.Logger

	session *timeline.Session
	comp    *composer.Composer
	typing  *presence.Tracker
	push    chat.PushChannel
	sch     sched.Scheduler
	states  *state.Manager

	vp            *tuiViewport
	conversations []chat.ConversationRef
	active        int

	width, height int
	mode          inputMode
	input         string
	editID        string
	selectedID    string
	notice        string
	pushGone      bool

	// updates coalesces engine callbacks into at most one pending refresh.
	updates chan struct{}
}

// NewModel assembles the engine around the given transport and wires every
// callback path: store changes refresh the UI, typing events from the reducer
// feed the tracker, and confirmed deletes cancel a matching edit session.
func NewModel(cfg *config.Config, client chat.Client, push chat.PushChannel, states *state.Manager, convs []chat.ConversationRef, log zerolog.Logger) *Model {
	self := chat.Identity{
		UserID:      cfg.Identity.UserID,
		Username:    cfg.Identity.Username,
		DisplayName: cfg.Identity.DisplayName,
	}
	sch := sched.NewRunner()
	vp := &tuiViewport{}

	session := timeline.NewSession(client, push, sch, self, timeline.SessionConfig{
		PageSize: cfg.Timeline.PageSize,
		Anchor: timeline.AnchorConfig{
			BottomThreshold: cfg.Timeline.BottomThreshold,
			TopThreshold:    cfg.Timeline.TopThreshold,
			PulseAttempts:   cfg.Timeline.PulseAttempts,
			PulseInterval:   time.Duration(cfg.Timeline.PulseIntervalMs) * time.Millisecond,
		},
	}, log.With().Str("component", "session").Logger())
	session.SetViewport(vp)

	comp := composer.New(client, push, sch, self, composer.Config{
		MaxUploadBytes: int64(cfg.Composer.MaxUploadMB) << 20,
		AllowedTypes:   cfg.Composer.AllowedTypes,
		ProbeAttempts:  cfg.Composer.ProbeAttempts,
		ProbeInterval:  cfg.Composer.ProbeIntervalMs,
	}, session, log.With().Str("component", "composer").Logger())

	typing := presence.NewTracker(push, sch, self,
		log.With().Str("component", "presence").Logger(),
		presence.WithHeartbeat(secondsDuration(cfg.Typing.HeartbeatSeconds)),
		presence.WithExpiry(secondsDuration(cfg.Typing.ExpirySeconds)),
	)

	session.SetHooks(timeline.SessionHooks{
		TypingStart:    func(_, username string) { typing.HandleStart(username) },
		TypingStop:     func(_, username string) { typing.HandleStop(username) },
		MessageDeleted: comp.CancelEditFor,
	})
	comp.OnDraftChange(typing.DraftChanged)

	m := &Model{
		cfg:           cfg,
		self:          self,
		log:           log,
		session:       session,
		comp:          comp,
		typing:        typing,
		push:          push,
		sch:           sch,
		states:        states,
		vp:            vp,
		conversations: convs,
		updates:       make(chan struct{}, 1),
	}
	session.OnUpdate(m.signalRefresh)
	comp.OnUpdate(m.signalRefresh)
	typing.OnChange(m.signalRefresh)
	return m
}

func (m *Model) signalRefresh() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

func secondsDuration(s int) time.Duration { return time.Duration(s) * time.Second }

func (m *Model) Init() tea.Cmd {
	m.active = m.startingConversation()
	m.enterConversation(m.conversations[m.active])
	return tea.Batch(m.waitRefresh(), m.waitEvent(), m.waitReconnect())
}

// startingConversation prefers the persisted last conversation when it is
// still in the roster.
func (m *Model) startingConversation() int {
	last := m.states.LastConversation()
	for i, ref := range m.conversations {
		if ref.String() == last {
			return i
		}
	}
	return 0
}

func (m *Model) enterConversation(ref chat.ConversationRef) {
	m.states.SetLastConversation(ref.String())
	m.selectedID = ""
	m.mode = modeCompose
	m.editID = ""
	m.notice = ""

	m.comp.SetConversation(ref)
	m.typing.SetConversation(ref)
	m.session.Activate(ref)

	draft := m.states.Draft(ref.String())
	m.input = draft
	m.comp.SetDraft(draft)
}

func (m *Model) leaveConversation() {
	ref := m.conversations[m.active]
	if m.mode == modeCompose {
		m.states.SetDraft(ref.String(), m.input)
	}
}

// --- pump commands ---

func (m *Model) waitRefresh() tea.Cmd {
	return func() tea.Msg {
		<-m.updates
		return refreshMsg{}
	}
}

func (m *Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.push.Events()
		if !ok {
			return pushGoneMsg{}
		}
		return pushEventMsg{ev: ev}
	}
}

func (m *Model) waitReconnect() tea.Cmd {
	return func() tea.Msg {
		_, ok := <-m.push.Reconnected()
		if !ok {
			return pushGoneMsg{}
		}
		return reconnectMsg{}
	}
}

// --- update ---

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.SetHeight(maxInt(0, msg.Height-chromeLines))
		m.refreshTimeline()
		return m, nil

	case refreshMsg:
		m.refreshTimeline()
		return m, m.waitRefresh()

	case pushEventMsg:
		m.session.HandleEvent(msg.ev)
		return m, m.waitEvent()

	case reconnectMsg:
		m.session.HandleReconnected()
		return m, m.waitReconnect()

	case pushGoneMsg:
		m.pushGone = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// refreshTimeline re-renders the store into the viewport and tells the session
// the layout has settled, which finishes any pending prepend correction and
// drives backfill.
func (m *Model) refreshTimeline() {
	lines, _ := renderTimeline(m.session.Groups(), m.timelineWidth(), m.selectedID)
	m.vp.SetContent(lines)
	m.session.LayoutSettled()
}

func (m *Model) timelineWidth() int {
	if m.width <= 0 {
		return 80
	}
	return m.width
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, m.quit()

	case "esc":
		if m.mode == modeEdit {
			m.comp.CancelEdit()
			m.mode = modeCompose
			m.editID = ""
			m.input = m.comp.Draft()
		} else if m.selectedID != "" {
			m.selectedID = ""
		} else {
			m.session.ClearBanner()
			m.notice = ""
		}
		m.refreshTimeline()
		return m, nil

	case "enter":
		m.submitInput()
		m.refreshTimeline()
		return m, nil

	case "up":
		if m.vp.ScrollBy(-1) {
			m.session.HandleScroll()
		}
		return m, nil
	case "down":
		if m.vp.ScrollBy(1) {
			m.session.HandleScroll()
		}
		return m, nil
	case "pgup":
		if m.vp.ScrollBy(-m.vp.ClientHeight()) {
			m.session.HandleScroll()
		}
		return m, nil
	case "pgdown":
		if m.vp.ScrollBy(m.vp.ClientHeight()) {
			m.session.HandleScroll()
		}
		return m, nil
	case "end":
		m.vp.SetScrollTop(m.vp.ScrollHeight())
		m.session.HandleScroll()
		return m, nil

	case "alt+up":
		m.moveSelection(-1)
		m.refreshTimeline()
		return m, nil
	case "alt+down":
		m.moveSelection(1)
		m.refreshTimeline()
		return m, nil

	case "tab":
		m.cycleConversation(1)
		return m, nil
	case "shift+tab":
		m.cycleConversation(-1)
		return m, nil

	case "ctrl+e":
		m.beginEditSelected()
		return m, nil
	case "ctrl+d":
		m.deleteSelected()
		return m, nil
	case "ctrl+t":
		m.toggleThumbsUp()
		return m, nil

	case "backspace":
		if m.input != "" {
			runes := []rune(m.input)
			m.setInput(string(runes[:len(runes)-1]))
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyRunes:
		m.setInput(m.input + string(msg.Runes))
	case tea.KeySpace:
		m.setInput(m.input + " ")
	}
	return m, nil
}

func (m *Model) setInput(s string) {
	m.input = s
	if m.mode == modeEdit {
		m.comp.SetEditDraft(s)
		return
	}
	m.comp.SetDraft(s)
}

func (m *Model) submitInput() {
	if m.mode == modeEdit {
		m.comp.SubmitEdit(m.editID, m.input)
		m.mode = modeCompose
		m.editID = ""
		m.input = m.comp.Draft()
		return
	}
	if strings.HasPrefix(m.input, "/") {
		m.runCommand(m.input)
		return
	}
	m.comp.SetDraft(m.input)
	if err := m.comp.Send(); err != nil {
		m.notice = err.Error()
		return
	}
	m.input = ""
	m.notice = ""
}

// runCommand handles the small slash-command surface: attachments, pagination
// retry and quitting.
func (m *Model) runCommand(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/attach":
		if len(fields) < 2 {
			m.notice = "usage: /attach <path>"
			return
		}
		if err := m.attachFile(strings.Join(fields[1:], " ")); err != nil {
			m.notice = err.Error()
			return
		}
		m.input = ""
		m.comp.SetDraft("")
	case "/rm":
		if len(fields) != 2 {
			m.notice = "usage: /rm <n>"
			return
		}
		n, err := strconv.Atoi(fields[1])
		pending := m.comp.PendingAttachments()
		if err != nil || n < 1 || n > len(pending) {
			m.notice = "no such attachment"
			return
		}
		m.comp.RemoveAttachment(pending[n-1].ClientID)
		m.input = ""
		m.comp.SetDraft("")
	case "/older":
		m.session.LoadOlder()
		m.input = ""
		m.comp.SetDraft("")
	case "/retry":
		m.session.ClearBanner()
		m.session.LoadOlder()
		m.input = ""
		m.comp.SetDraft("")
	case "/quit":
		m.notice = "use ctrl+c to quit"
	default:
		m.notice = fmt.Sprintf("unknown command %s", fields[0])
	}
}

func (m *Model) cycleConversation(dir int) {
	if len(m.conversations) < 2 {
		return
	}
	m.leaveConversation()
	m.active = (m.active + dir + len(m.conversations)) % len(m.conversations)
	m.enterConversation(m.conversations[m.active])
	m.refreshTimeline()
}

// --- selection ---

func (m *Model) messageIDs() []string {
	var ids []string
	for _, g := range m.session.Groups() {
		for _, msg := range g.Messages {
			ids = append(ids, msg.ID)
		}
	}
	return ids
}

func (m *Model) moveSelection(dir int) {
	ids := m.messageIDs()
	if len(ids) == 0 {
		return
	}
	idx := -1
	for i, id := range ids {
		if id == m.selectedID {
			idx = i
			break
		}
	}
	switch {
	case idx == -1:
		idx = len(ids) - 1 // selection starts at the newest message
	default:
		idx += dir
		if idx < 0 {
			idx = 0
		}
		if idx >= len(ids) {
			idx = len(ids) - 1
		}
	}
	m.selectedID = ids[idx]
	m.scrollSelectionIntoView()
}

func (m *Model) scrollSelectionIntoView() {
	lines, firstLine := renderTimeline(m.session.Groups(), m.timelineWidth(), m.selectedID)
	m.vp.SetContent(lines)
	top, ok := firstLine[m.selectedID]
	if !ok {
		return
	}
	if top < m.vp.ScrollTop() {
		m.vp.SetScrollTop(top)
		m.session.HandleScroll()
	} else if top >= m.vp.ScrollTop()+m.vp.ClientHeight() {
		m.vp.SetScrollTop(top - m.vp.ClientHeight() + 1)
		m.session.HandleScroll()
	}
}

func (m *Model) selectedOwnMessage() (chat.Message, bool) {
	if m.selectedID == "" {
		return chat.Message{}, false
	}
	msg, ok := m.session.Message(m.selectedID)
	if !ok || msg.AuthorID != m.self.UserID {
		return chat.Message{}, false
	}
	return msg, true
}

func (m *Model) beginEditSelected() {
	msg, ok := m.selectedOwnMessage()
	if !ok {
		m.notice = "select one of your own messages to edit"
		return
	}
	m.comp.BeginEdit(msg.ID, msg.Content)
	m.mode = modeEdit
	m.editID = msg.ID
	m.input = msg.Content
}

func (m *Model) deleteSelected() {
	msg, ok := m.selectedOwnMessage()
	if !ok {
		m.notice = "select one of your own messages to delete"
		return
	}
	m.comp.Delete(msg.ID)
	m.selectedID = ""
}

func (m *Model) toggleThumbsUp() {
	if m.selectedID == "" {
		m.notice = "select a message to react to"
		return
	}
	msg, ok := m.session.Message(m.selectedID)
	if !ok {
		return
	}
	emoji := chat.EmojiRef{Unicode: "👍"}
	if i := msg.ReactionIndex(emoji); i >= 0 && msg.Reactions[i].UserReacted {
		m.session.RemoveReaction(msg.ID, emoji)
		return
	}
	m.session.AddReaction(msg.ID, emoji)
}

// --- view ---

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerLine())
	b.WriteByte('\n')

	visible := m.vp.Visible()
	for _, line := range visible {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for i := len(visible); i < m.vp.ClientHeight(); i++ {
		b.WriteByte('\n')
	}

	b.WriteString(m.typingLine())
	b.WriteByte('\n')
	b.WriteString(m.attachmentLine())
	b.WriteByte('\n')
	b.WriteString(m.inputLine())
	return b.String()
}

func (m *Model) headerLine() string {
	ref := m.conversations[m.active]
	parts := []string{headerStyle.Render(ref.String())}
	if m.session.Loading() {
		parts = append(parts, statusStyle.Render("loading…"))
	}
	if !m.session.StickToBottom() {
		parts = append(parts, statusStyle.Render("↓ scrolled up"))
	}
	if m.pushGone {
		parts = append(parts, noticeStyle.Render("disconnected"))
	} else if err := m.session.Banner(); err != nil {
		parts = append(parts, noticeStyle.Render(err.Error()+" (/retry)"))
	} else if m.notice != "" {
		parts = append(parts, noticeStyle.Render(m.notice))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) typingLine() string {
	typists := m.typing.Typists()
	switch len(typists) {
	case 0:
		return ""
	case 1:
		return typingStyle.Render(typists[0] + " is typing…")
	default:
		return typingStyle.Render(strings.Join(typists, ", ") + " are typing…")
	}
}

func (m *Model) attachmentLine() string {
	pending := m.comp.PendingAttachments()
	if len(pending) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pending))
	for i, p := range pending {
		label := fmt.Sprintf("[%d] %s (%s)", i+1, p.Filename, p.Status)
		if p.Status == chat.StatusFailed {
			parts = append(parts, failedStyle.Render(label))
		} else {
			parts = append(parts, pendingStyle.Render(label))
		}
	}
	return strings.Join(parts, "  ")
}

func (m *Model) inputLine() string {
	prompt := "> "
	if m.mode == modeEdit {
		prompt = "edit> "
	}
	return promptStyle.Render(prompt) + m.input
}

// --- teardown ---

func (m *Model) quit() tea.Cmd {
	m.leaveConversation()
	m.typing.Close()
	m.session.Close()
	m.sch.Close()
	if err := m.states.Close(); err != nil {
		m.log.Warn().Err(err).Msg("state save on exit failed")
	}
	if err := m.push.Close(); err != nil {
		m.log.Debug().Err(err).Msg("push channel close")
	}
	return tea.Quit
}
