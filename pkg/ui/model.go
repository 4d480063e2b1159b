// Package ui is the terminal front end of the chat client. It renders the
// conversation list and the active conversation from the session controller
// and redraws whenever the controller publishes an event.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/go-go-golems/chatterbox/pkg/session"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateInput         State = "input"
	StateSidebar       State = "sidebar"
	StateConfirmDelete State = "confirm-delete"
	StateRename        State = "rename"
)

const (
	maxSidebarWidth = 32
	inputHeight     = 3
)

// replyMsg is sent once a submitted message has been folded back.
type replyMsg struct {
	conversationID string
}

type model struct {
	ctx        context.Context
	controller *session.Controller

	state State
	// where to go back to once a modal state is left
	previousState     State
	lastFocusRequests int

	list        list.Model
	viewport    viewport.Model
	textArea    textarea.Model
	renameInput textinput.Model
	spinner     spinner.Model
	help        help.Model

	keyMap   KeyMap
	style    *Style
	markdown bool
	renderer *glamour.TermRenderer

	sessionState session.State
	activeTitle  string
	renameID     string
	err          error

	width  int
	height int
}

type ModelOption func(*model)

func WithStyle(style *Style) ModelOption {
	return func(m *model) {
		m.style = style
	}
}

func WithKeyMap(keyMap KeyMap) ModelOption {
	return func(m *model) {
		m.keyMap = keyMap
	}
}

// WithMarkdown toggles glamour rendering of assistant replies.
func WithMarkdown(enabled bool) ModelOption {
	return func(m *model) {
		m.markdown = enabled
	}
}

func InitialModel(ctx context.Context, controller *session.Controller, options ...ModelOption) model {
	ret := model{
		ctx:        ctx,
		controller: controller,
		state:      StateInput,
		keyMap:     DefaultKeyMap(),
		style:      DefaultStyles(),
		markdown:   true,
		help:       help.New(),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		viewport:   viewport.New(0, 0),
	}
	for _, option := range options {
		option(&ret)
	}

	ret.textArea = textarea.New()
	ret.textArea.Placeholder = "Type a message..."
	ret.textArea.ShowLineNumbers = false
	ret.textArea.CharLimit = 0
	ret.textArea.SetHeight(inputHeight)
	ret.textArea.KeyMap.InsertNewline = ret.keyMap.InsertNewline
	ret.textArea.Focus()

	ret.renameInput = textinput.New()
	ret.renameInput.Placeholder = conversation.DefaultTitle
	ret.renameInput.CharLimit = 100

	ret.list = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	ret.list.Title = "Conversations"
	ret.list.SetShowHelp(false)
	ret.list.SetShowStatusBar(false)
	ret.list.SetFilteringEnabled(false)
	ret.list.DisableQuitKeybindings()

	ret.lastFocusRequests = controller.State().FocusRequests
	ret.refresh()

	return ret
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recomputeSize()
		return m, nil

	case SessionEventMsg:
		log.Trace().Str("type", string(msg.Event.Type())).Msg("Session event")
		return m, m.refresh()

	case replyMsg:
		return m, m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keyMap.Quit) {
			return m, tea.Quit
		}

		switch m.state {
		case StateInput:
			return m.updateInput(msg)
		case StateSidebar:
			return m.updateSidebar(msg)
		case StateConfirmDelete:
			return m.updateConfirmDelete(msg)
		case StateRename:
			return m.updateRename(msg)
		}
	}

	var cmd tea.Cmd
	switch m.state {
	case StateInput:
		m.textArea, cmd = m.textArea.Update(msg)
	case StateRename:
		m.renameInput, cmd = m.renameInput.Update(msg)
	case StateSidebar, StateConfirmDelete:
	}
	return m, cmd
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.NewChat):
		return m, m.newChat()

	case key.Matches(msg, m.keyMap.SwitchFocus):
		m.state = StateSidebar
		return m, m.refresh()

	case key.Matches(msg, m.keyMap.ScrollUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.ScrollDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		return m, m.submit()
	}

	if m.sessionState.IsPending() {
		return m, nil
	}

	var cmd tea.Cmd
	m.textArea, cmd = m.textArea.Update(msg)
	return m, cmd
}

func (m model) updateSidebar(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.NewChat):
		return m, m.newChat()

	case key.Matches(msg, m.keyMap.SwitchFocus), key.Matches(msg, m.keyMap.Back):
		m.state = StateInput
		return m, m.refresh()

	case key.Matches(msg, m.keyMap.Select):
		if item, ok := m.selectedItem(); ok {
			m.controller.SwitchTo(item.id)
			m.state = StateInput
		}
		return m, m.refresh()

	case key.Matches(msg, m.keyMap.Delete):
		if item, ok := m.selectedItem(); ok && m.controller.RequestDeletion(item.id) {
			m.previousState = StateSidebar
			m.state = StateConfirmDelete
		}
		return m, m.refresh()

	case key.Matches(msg, m.keyMap.Rename):
		item, ok := m.selectedItem()
		if !ok {
			return m, nil
		}
		m.previousState = StateSidebar
		m.state = StateRename
		m.renameID = item.id
		m.renameInput.SetValue(item.title)
		m.renameInput.CursorEnd()
		cmd := m.renameInput.Focus()
		return m, tea.Batch(cmd, m.refresh())

	case key.Matches(msg, m.keyMap.ScrollUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.ScrollDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keyMap.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.recomputeSize()
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Confirm):
		m.err = m.controller.ConfirmDeletion(m.ctx)
		m.state = m.previousState
		return m, m.refresh()

	case key.Matches(msg, m.keyMap.Cancel):
		m.controller.CancelDeletion()
		m.state = m.previousState
		return m, m.refresh()
	}
	return m, nil
}

func (m model) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Save):
		m.err = m.controller.Rename(m.ctx, m.renameID, m.renameInput.Value())
		m.leaveRename()
		return m, m.refresh()

	case key.Matches(msg, m.keyMap.Back):
		m.leaveRename()
		return m, m.refresh()
	}

	var cmd tea.Cmd
	m.renameInput, cmd = m.renameInput.Update(msg)
	return m, cmd
}

func (m *model) leaveRename() {
	m.renameInput.Blur()
	m.renameInput.Reset()
	m.renameID = ""
	m.state = m.previousState
}

func (m *model) newChat() tea.Cmd {
	_, m.err = m.controller.StartNewSession(m.ctx)
	m.state = StateInput
	return m.refresh()
}

// submit hands the input to the controller and fetches the reply in a command,
// so the program keeps drawing while it is in flight.
func (m *model) submit() tea.Cmd {
	if m.sessionState.IsPending() {
		return nil
	}

	pending, err := m.controller.Submit(m.ctx, m.textArea.Value())
	m.err = err
	if pending == nil {
		return m.refresh()
	}
	m.textArea.Reset()

	ctx, controller := m.ctx, m.controller
	complete := func() tea.Msg {
		controller.Complete(ctx, pending)
		return replyMsg{conversationID: pending.ConversationID}
	}

	return tea.Batch(m.refresh(), complete)
}

func (m model) selectedItem() (conversationItem, bool) {
	item, ok := m.list.SelectedItem().(conversationItem)
	return item, ok
}

// refresh pulls the controller state into the widgets.
func (m *model) refresh() tea.Cmd {
	st := m.controller.State()
	m.sessionState = st

	conversations := m.controller.List()
	items := make([]list.Item, 0, len(conversations))
	activeIndex := -1
	m.activeTitle = ""
	for i, c := range conversations {
		items = append(items, newConversationItem(c, st.ActiveID))
		if c.ID == st.ActiveID {
			activeIndex = i
			m.activeTitle = c.Title
		}
	}
	cmds := []tea.Cmd{m.list.SetItems(items)}
	if activeIndex >= 0 && m.state != StateSidebar {
		m.list.Select(activeIndex)
	}

	if st.FocusRequests > m.lastFocusRequests {
		m.lastFocusRequests = st.FocusRequests
		if m.state == StateSidebar {
			m.state = StateInput
		}
	}

	if m.state == StateInput && !st.IsPending() {
		cmds = append(cmds, m.textArea.Focus())
	} else {
		m.textArea.Blur()
	}

	m.updateKeyBindings()
	m.viewport.SetContent(m.messageView())
	m.viewport.GotoBottom()

	return tea.Batch(cmds...)
}

func (m *model) updateKeyBindings() {
	input := m.state == StateInput
	sidebar := m.state == StateSidebar
	pending := m.sessionState.IsPending()
	hasItems := len(m.list.Items()) > 0

	m.keyMap.Submit.SetEnabled(input && !pending)
	m.keyMap.InsertNewline.SetEnabled(input && !pending)
	m.textArea.KeyMap.InsertNewline.SetEnabled(input && !pending)
	m.keyMap.NewChat.SetEnabled(input || sidebar)
	m.keyMap.SwitchFocus.SetEnabled(input || sidebar)
	m.keyMap.ScrollUp.SetEnabled(input || sidebar)
	m.keyMap.ScrollDown.SetEnabled(input || sidebar)

	m.keyMap.Select.SetEnabled(sidebar && hasItems)
	m.keyMap.Rename.SetEnabled(sidebar && hasItems)
	m.keyMap.Delete.SetEnabled(sidebar && hasItems)
	m.keyMap.Help.SetEnabled(sidebar)

	m.keyMap.Confirm.SetEnabled(m.state == StateConfirmDelete)
	m.keyMap.Cancel.SetEnabled(m.state == StateConfirmDelete)
	m.keyMap.Save.SetEnabled(m.state == StateRename)
	m.keyMap.Back.SetEnabled(sidebar || m.state == StateRename)
}

func (m *model) recomputeSize() {
	sidebarWidth := min(maxSidebarWidth, m.width/3)
	mainWidth := m.width - sidebarWidth

	// the sidebar border takes one column
	m.list.SetSize(max(0, sidebarWidth-1), m.height)

	m.textArea.SetWidth(max(0, mainWidth-2))
	m.renameInput.Width = max(0, mainWidth-12)
	m.help.Width = mainWidth

	headerHeight := lipgloss.Height(m.headerView())
	helpHeight := lipgloss.Height(m.help.View(m.keyMap))
	// input box borders plus the status line
	bottomHeight := m.textArea.Height() + 2 + 1

	m.viewport.Width = mainWidth
	m.viewport.Height = max(0, m.height-headerHeight-bottomHeight-helpHeight)

	if m.markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(10, mainWidth-6)),
		)
		if err != nil {
			log.Warn().Err(err).Msg("Could not create markdown renderer")
		}
		m.renderer = renderer
	}

	m.viewport.SetContent(m.messageView())
	m.viewport.GotoBottom()
}

func (m model) headerView() string {
	title := m.activeTitle
	if !m.sessionState.HasActive() {
		title = "No conversation selected"
	}
	return m.style.Header.Render(title)
}

func (m model) messageView() string {
	if !m.sessionState.HasActive() {
		return m.style.Status.Render("Type a message or press ctrl+n to start a conversation.")
	}
	if len(m.sessionState.Messages) == 0 {
		return m.style.Status.Render("Start the conversation by typing a message below.")
	}

	width := max(10, m.viewport.Width-2)
	parts := make([]string, 0, len(m.sessionState.Messages))
	for _, msg := range m.sessionState.Messages {
		parts = append(parts, m.renderMessage(msg, width))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m model) renderMessage(msg *conversation.Message, width int) string {
	label := "You"
	style := m.style.UserMessage
	content := msg.Content

	switch {
	case msg.IsError:
		label = "Error"
		style = m.style.ErrorMessage
	case msg.Role == conversation.RoleAssistant:
		label = "Assistant"
		style = m.style.AssistantMessage
		content = m.renderMarkdown(content)
	}

	header := label + " " + m.style.Timestamp.Render(msg.Timestamp.Local().Format("15:04"))
	return style.Width(width).Render(header + "\n" + strings.TrimRight(content, "\n"))
}

func (m model) renderMarkdown(content string) string {
	if !m.markdown || m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

func (m model) statusView() string {
	switch {
	case m.err != nil:
		return m.style.ErrorMessage.UnsetBorderStyle().UnsetPadding().Render(m.err.Error())
	case m.sessionState.IsPending():
		return m.style.Status.Render(m.spinner.View() + " Waiting for reply...")
	}
	return ""
}

func (m model) inputView() string {
	boxStyle := m.style.Input
	if m.state == StateInput || m.state == StateRename || m.state == StateConfirmDelete {
		boxStyle = m.style.FocusedInput
	}

	var content string
	switch m.state {
	case StateConfirmDelete:
		title := conversation.DefaultTitle
		if c, ok := m.stagedConversation(); ok {
			title = c.Title
		}
		content = m.style.Prompt.Render(fmt.Sprintf("Delete %q? This cannot be undone. (y/n)", title))
	case StateRename:
		content = m.style.Prompt.Render("Rename:") + " " + m.renameInput.View()
	case StateInput, StateSidebar:
		content = m.textArea.View()
	}

	return boxStyle.
		Width(max(0, m.viewport.Width-2)).
		Height(m.textArea.Height()).
		Render(content)
}

func (m model) stagedConversation() (*conversation.Conversation, bool) {
	for _, c := range m.controller.List() {
		if c.ID == m.sessionState.StagedDeletion {
			return c, true
		}
	}
	return nil, false
}

func (m model) View() string {
	sidebarStyle := m.style.Sidebar
	if m.state == StateSidebar {
		sidebarStyle = m.style.FocusedSidebar
	}
	sidebar := sidebarStyle.Height(m.height).Render(m.list.View())

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.statusView(),
		m.inputView(),
		m.help.View(m.keyMap),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
}
