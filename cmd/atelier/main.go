package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"atelier/internal/api"
	"atelier/internal/chat"
	"atelier/internal/config"
	"atelier/internal/logging"
	"atelier/internal/stream"
	"atelier/internal/workspace"
)

const (
	appTitle         = "Atelier"
	timelineMaxLines = 12
	timelineMaxChars = 1600
	homeHero         = "Describe what the team should build — e.g. \"build a landing page for a coffee shop\".\nA new session starts with your first message."
)

type appConfig struct {
	apiBase      string
	wsBase       string
	token        string
	email        string
	password     string
	dataDir      string
	debug        bool
	altScreen    bool
	httpTimeout  time.Duration
	pollInterval time.Duration
}

type tabID int

const (
	tabChat tabID = iota
	tabSessions
	tabFiles
	tabHelp
)

type model struct {
	cfg    appConfig
	client *api.Client
	ctrl   *workspace.Controller
	logs   *logging.FileLogger

	ready      bool
	loggedIn   bool
	profile    chat.UserProfile
	statusLine string
	activeTab  tabID

	inflight      bool
	sessionIndex  int
	confirmDelete string
	quitConfirm   bool

	feedChan <-chan chat.StreamEvent

	fileTree     chat.FileTree
	previewURL   string
	filesVersion int
	filesLoaded  bool
	filesBusy    bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	sidebar  viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

type authDoneMsg struct {
	token   string
	profile chat.UserProfile
	err     error
}

type sessionsDoneMsg struct {
	err error
}

type openDoneMsg struct {
	id  string
	err error
}

type sendDoneMsg struct {
	err error
}

type deleteDoneMsg struct {
	id  string
	err error
}

type homeDoneMsg struct {
	err error
}

type feedEventMsg struct {
	ch <-chan chat.StreamEvent
	ev chat.StreamEvent
}

type feedClosedMsg struct {
	ch <-chan chat.StreamEvent
}

type filesDoneMsg struct {
	version int
	tree    chat.FileTree
	preview chat.SandboxPreview
	err     error
}

type tickMsg time.Time

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	inputPanel  lipgloss.Style
	helpText    lipgloss.Style
	selected    lipgloss.Style
	modalFrame  lipgloss.Style
	senders     map[string]lipgloss.Style
}

func newTheme() uiTheme {
	rose := lipgloss.Color("#f472b6")
	sky := lipgloss.Color("#38bdf8")
	mint := lipgloss.Color("#34d399")
	amber := lipgloss.Color("#fbbf24")
	bg := lipgloss.Color("#0c1222")
	panelBg := lipgloss.Color("#131b31")
	text := lipgloss.Color("#e2e8f0")
	muted := lipgloss.Color("#7c8bb0")

	return uiTheme{
		root: lipgloss.NewStyle().Background(bg).Foreground(text).Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(sky).
			Padding(0, 1),
		tabActive: lipgloss.NewStyle().
			Background(sky).
			Foreground(lipgloss.Color("#0a1020")).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Background(lipgloss.Color("#1d2a4a")).
			Foreground(muted).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(sky).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().Foreground(mint).Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(rose).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(sky).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(rose).Bold(true),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		helpText: lipgloss.NewStyle().Foreground(muted),
		selected: lipgloss.NewStyle().
			Background(rose).
			Foreground(lipgloss.Color("#0a1020")).
			Bold(true).
			Padding(0, 1),
		modalFrame: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(rose).
			Padding(1, 2),
		senders: map[string]lipgloss.Style{
			"user":   lipgloss.NewStyle().Foreground(mint).Bold(true),
			"status": lipgloss.NewStyle().Foreground(amber).Bold(true),
			"mike":   lipgloss.NewStyle().Foreground(rose).Bold(true),
			"emma":   lipgloss.NewStyle().Foreground(sky).Bold(true),
			"bob":    lipgloss.NewStyle().Foreground(lipgloss.Color("#a78bfa")).Bold(true),
			"alex":   lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171")).Bold(true),
			"david":  lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80")).Bold(true),
			"iris":   lipgloss.NewStyle().Foreground(lipgloss.Color("#fb923c")).Bold(true),
			"agent":  lipgloss.NewStyle().Foreground(muted).Bold(true),
		},
	}
}

func newModel(cfg appConfig, client *api.Client, ctrl *workspace.Controller, logs *logging.FileLogger) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Ask the team to build or change something..."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#34d399"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4
	sidebar := viewport.New(0, 0)
	sidebar.MouseWheelEnabled = true
	sidebar.MouseWheelDelta = 4

	return model{
		cfg:        cfg,
		client:     client,
		ctrl:       ctrl,
		logs:       logs,
		statusLine: "signing in...",
		activeTab:  tabChat,
		input:      input,
		timeline:   timeline,
		sidebar:    sidebar,
		spinner:    sp,
		theme:      newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.authCmd(),
		tickEvery(m.cfg.pollInterval),
	)
}

func tickEvery(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) authCmd() tea.Cmd {
	cfg := m.cfg
	client := m.client
	return func() tea.Msg {
		ctx := context.Background()
		token := strings.TrimSpace(cfg.token)
		if token == "" {
			if cfg.email == "" || cfg.password == "" {
				return authDoneMsg{err: workspace.ErrUnauthenticated}
			}
			resp, err := client.Login(ctx, cfg.email, cfg.password)
			if err != nil {
				return authDoneMsg{err: err}
			}
			token = resp.AccessToken
		}
		profile, err := client.Profile(ctx, token)
		if err != nil {
			// A token without a readable profile is still usable.
			return authDoneMsg{token: token}
		}
		return authDoneMsg{token: token, profile: profile}
	}
}

func (m model) loadSessionsCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return sessionsDoneMsg{err: ctrl.RefreshSessions(context.Background())}
	}
}

func (m model) openSessionCmd(id string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return openDoneMsg{id: id, err: ctrl.OpenSession(context.Background(), id)}
	}
}

func (m model) sendCmd(content string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return sendDoneMsg{err: ctrl.Send(context.Background(), content)}
	}
}

func (m model) deleteSessionCmd(id string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return deleteDoneMsg{id: id, err: ctrl.DeleteSession(context.Background(), id)}
	}
}

func (m model) backHomeCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return homeDoneMsg{err: ctrl.BackHome(context.Background())}
	}
}

func (m model) fetchFilesCmd(version int) tea.Cmd {
	client := m.client
	token := m.cfg.token
	session := m.ctrl.ActiveSession()
	if session == "" {
		return nil
	}
	return func() tea.Msg {
		ctx := context.Background()
		tree, err := client.FileTree(ctx, token, session)
		if err != nil {
			return filesDoneMsg{version: version, err: err}
		}
		preview, err := client.SandboxPreview(ctx, token, session)
		if err != nil {
			// The preview server may not be up yet; the tree alone is
			// still worth showing.
			return filesDoneMsg{version: version, tree: tree}
		}
		return filesDoneMsg{version: version, tree: tree, preview: preview}
	}
}

// waitFeed blocks on one feed channel and reports either the next event or
// the channel's closure. The channel rides along so Update can tell stale
// pumps from the current one.
func waitFeed(ch <-chan chat.StreamEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return feedClosedMsg{ch: ch}
		}
		return feedEventMsg{ch: ch, ev: ev}
	}
}

// armFeed starts a pump for the controller's current subscription if one
// is open and not already being pumped.
func (m *model) armFeed() tea.Cmd {
	ch := m.ctrl.FeedEvents()
	if ch == nil || ch == m.feedChan {
		return nil
	}
	m.feedChan = ch
	return waitFeed(ch)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case authDoneMsg:
		m.ready = true
		if msg.err != nil {
			m.statusLine = "login required · set ATELIER_TOKEN or ATELIER_EMAIL/ATELIER_PASSWORD"
			m.renderPanes()
			break
		}
		m.loggedIn = true
		m.cfg.token = msg.token
		m.profile = msg.profile
		m.ctrl.SetToken(msg.token)
		if msg.profile.Name != "" {
			m.statusLine = "signed in as " + msg.profile.Name
		} else {
			m.statusLine = "signed in"
		}
		cmds = append(cmds, m.loadSessionsCmd())
	case sessionsDoneMsg:
		if msg.err != nil {
			m.statusLine = "session list failed"
		}
		m.clampSessionIndex()
		m.renderPanes()
	case openDoneMsg:
		m.inflight = false
		if msg.err != nil {
			m.statusLine = "open failed"
		} else {
			m.statusLine = "session " + shortID(msg.id)
			m.activeTab = tabChat
			m.input.Focus()
			m.filesLoaded = false
		}
		if cmd := m.armFeed(); cmd != nil {
			cmds = append(cmds, cmd)
		}
		m.renderPanes()
	case sendDoneMsg:
		m.inflight = false
		if msg.err != nil {
			if msg.err == workspace.ErrUnauthenticated {
				m.statusLine = "login required"
			} else {
				m.statusLine = "send failed"
			}
		} else {
			m.statusLine = "sent"
		}
		if cmd := m.armFeed(); cmd != nil {
			cmds = append(cmds, cmd)
		}
		m.renderPanes()
	case deleteDoneMsg:
		m.inflight = false
		if msg.err != nil {
			m.statusLine = "delete failed"
		} else {
			m.statusLine = "session deleted"
		}
		m.clampSessionIndex()
		m.renderPanes()
	case homeDoneMsg:
		m.inflight = false
		m.statusLine = "home"
		m.activeTab = tabChat
		m.input.Focus()
		m.filesLoaded = false
		m.renderPanes()
	case feedEventMsg:
		m.ctrl.ApplyEvent(msg.ev)
		if msg.ev.Type == chat.EventFileChange {
			m.filesLoaded = false
		}
		m.renderPanes()
		if msg.ch == m.feedChan {
			cmds = append(cmds, waitFeed(msg.ch))
		}
	case feedClosedMsg:
		if msg.ch == m.feedChan {
			m.feedChan = nil
			if cmd := m.armFeed(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
	case filesDoneMsg:
		m.filesBusy = false
		if msg.err != nil {
			m.statusLine = "file tree unavailable"
			m.renderPanes()
			break
		}
		m.fileTree = msg.tree
		m.previewURL = msg.preview.URL
		m.filesVersion = msg.version
		m.filesLoaded = true
		m.renderPanes()
	case tickMsg:
		if m.needFilesRefresh() {
			m.filesBusy = true
			if cmd := m.fetchFilesCmd(m.ctrl.FileVersion()); cmd != nil {
				cmds = append(cmds, cmd)
			} else {
				m.filesBusy = false
			}
		}
		if cmd := m.armFeed(); cmd != nil {
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, tickEvery(m.cfg.pollInterval))
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.inflight || m.ctrl.Sending() {
			m.renderPanes()
		}
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		switch m.activeTab {
		case tabChat:
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			cmds = append(cmds, cmd)
		case tabSessions, tabFiles:
			var cmd tea.Cmd
			m.sidebar, cmd = m.sidebar.Update(msg)
			cmds = append(cmds, cmd)
		}
	case tea.KeyMsg:
		return m.updateKey(msg, cmds)
	}
	return m, tea.Batch(cmds...)
}

func (m model) updateKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.ctrl.Close()
		return m, tea.Quit
	}
	if m.quitConfirm {
		switch msg.String() {
		case "y", "Y", "enter":
			m.ctrl.Close()
			return m, tea.Quit
		case "n", "N", "esc":
			m.quitConfirm = false
			m.statusLine = "quit canceled"
		}
		return m, tea.Batch(cmds...)
	}
	if m.confirmDelete != "" {
		switch msg.String() {
		case "y", "Y", "enter":
			id := m.confirmDelete
			m.confirmDelete = ""
			m.inflight = true
			cmds = append(cmds, m.deleteSessionCmd(id))
		case "n", "N", "esc":
			m.confirmDelete = ""
			m.statusLine = "delete canceled"
		}
		return m, tea.Batch(cmds...)
	}

	switch msg.String() {
	case "esc":
		m.quitConfirm = true
		return m, tea.Batch(cmds...)
	case "tab":
		m.setTab((m.activeTab + 1) % 4)
		return m, tea.Batch(cmds...)
	case "shift+tab":
		m.setTab((m.activeTab + 3) % 4)
		return m, tea.Batch(cmds...)
	case "ctrl+n":
		if !m.inflight {
			m.inflight = true
			cmds = append(cmds, m.backHomeCmd())
		}
		return m, tea.Batch(cmds...)
	case "ctrl+r":
		cmds = append(cmds, m.loadSessionsCmd())
		return m, tea.Batch(cmds...)
	}

	switch m.activeTab {
	case tabChat:
		switch msg.String() {
		case "enter":
			if m.inflight || !m.ready {
				return m, tea.Batch(cmds...)
			}
			content := strings.TrimSpace(m.input.Value())
			if content == "" {
				return m, tea.Batch(cmds...)
			}
			m.input.SetValue("")
			m.ctrl.ClearErr()
			m.inflight = true
			m.statusLine = "sending..."
			cmds = append(cmds, m.sendCmd(content))
			return m, tea.Batch(cmds...)
		case "pgup", "ctrl+b":
			m.timeline.LineUp(8)
			return m, tea.Batch(cmds...)
		case "pgdown", "ctrl+f":
			m.timeline.LineDown(8)
			return m, tea.Batch(cmds...)
		case "up":
			if strings.TrimSpace(m.input.Value()) == "" {
				m.timeline.LineUp(4)
				return m, tea.Batch(cmds...)
			}
		case "down":
			if strings.TrimSpace(m.input.Value()) == "" {
				m.timeline.LineDown(4)
				return m, tea.Batch(cmds...)
			}
		case "home":
			m.timeline.GotoTop()
			return m, tea.Batch(cmds...)
		case "end":
			m.timeline.GotoBottom()
			return m, tea.Batch(cmds...)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	case tabSessions:
		sessions := m.ctrl.Sessions()
		switch msg.String() {
		case "up", "k":
			if m.sessionIndex > 0 {
				m.sessionIndex--
			}
			m.renderPanes()
		case "down", "j":
			if m.sessionIndex < len(sessions)-1 {
				m.sessionIndex++
			}
			m.renderPanes()
		case "enter":
			if !m.inflight && m.sessionIndex < len(sessions) {
				m.inflight = true
				m.statusLine = "loading session..."
				cmds = append(cmds, m.openSessionCmd(sessions[m.sessionIndex].ID))
			}
		case "d", "delete":
			if m.sessionIndex < len(sessions) {
				m.confirmDelete = sessions[m.sessionIndex].ID
			}
		}
	case tabFiles:
		switch msg.String() {
		case "up", "k", "pgup":
			m.sidebar.LineUp(4)
		case "down", "j", "pgdown":
			m.sidebar.LineDown(4)
		case "r":
			m.filesLoaded = false
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *model) setTab(tab tabID) {
	m.activeTab = tab
	if tab == tabChat {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	if tab == tabFiles {
		m.filesLoaded = m.filesLoaded && m.filesVersion == m.ctrl.FileVersion()
	}
	m.renderPanes()
}

func (m *model) needFilesRefresh() bool {
	if m.filesBusy || m.ctrl.ActiveSession() == "" {
		return false
	}
	if m.activeTab != tabFiles {
		return false
	}
	return !m.filesLoaded || m.filesVersion != m.ctrl.FileVersion()
}

func (m *model) clampSessionIndex() {
	count := len(m.ctrl.Sessions())
	if m.sessionIndex >= count {
		m.sessionIndex = maxInt(0, count-1)
	}
}

func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return "loading..."
	}
	if m.quitConfirm {
		return m.theme.root.Width(m.width).Height(m.height).Render(m.renderConfirmModal(
			"LEAVE ATELIER?",
			"Sessions live on the server; nothing is lost.",
		))
	}
	if m.confirmDelete != "" {
		return m.theme.root.Width(m.width).Height(m.height).Render(m.renderConfirmModal(
			"DELETE SESSION?",
			"This removes the session and its messages for good.",
		))
	}
	sections := []string{
		m.renderHeader(),
		m.renderContent(),
		m.renderInput(),
		m.renderFooter(),
	}
	return m.theme.root.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *model) renderHeader() string {
	tabs := []struct {
		id    tabID
		label string
	}{
		{tabChat, "Chat"},
		{tabSessions, "Sessions"},
		{tabFiles, "Files"},
		{tabHelp, "Help"},
	}
	segments := make([]string, 0, len(tabs)+1)
	for _, tab := range tabs {
		style := m.theme.tabInactive
		if tab.id == m.activeTab {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(tab.label))
	}
	where := "home"
	if id := m.ctrl.ActiveSession(); id != "" {
		where = "session " + shortID(id)
	}
	meta := fmt.Sprintf("%s · %s", appTitle, where)
	if m.profile.Name != "" {
		meta += fmt.Sprintf(" · %s (%.0f credits)", m.profile.Name, m.profile.Credits)
	}
	segments = append(segments, m.theme.helpText.Render(meta))
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

func (m *model) renderContent() string {
	contentHeight := maxInt(8, m.height-12)
	contentWidth := maxInt(40, m.width-4)

	switch m.activeTab {
	case tabChat:
		return m.theme.panel.Width(contentWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Timeline") + "\n" + m.timeline.View(),
		)
	case tabSessions:
		return m.theme.panel.Width(contentWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Sessions") + "\n" + m.sidebar.View(),
		)
	case tabFiles:
		title := "Workspace Files"
		if m.previewURL != "" {
			title += " · preview " + m.previewURL
		}
		return m.theme.panel.Width(contentWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render(title) + "\n" + m.sidebar.View(),
		)
	case tabHelp:
		return m.theme.panel.Width(contentWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Help") + "\n" + m.renderHelp(),
		)
	default:
		return ""
	}
}

func (m *model) renderInput() string {
	contentWidth := maxInt(40, m.width-4)
	if m.activeTab != tabChat {
		return m.theme.inputPanel.Width(contentWidth).Render(
			m.theme.helpText.Render("Input lives on the Chat tab. Press Tab to return."),
		)
	}
	inputView := m.input.View()
	if m.inflight || m.ctrl.Sending() {
		inputView = m.spinner.View() + " working... " + inputView
	}
	return m.theme.inputPanel.Width(contentWidth).Render(inputView)
}

func (m *model) renderFooter() string {
	contentWidth := maxInt(40, m.width-4)
	line := m.theme.status.Render(compactSingleLine(m.statusLine, 160))
	if errText := m.ctrl.Err(); errText != "" {
		line = m.theme.errorStatus.Render(compactSingleLine("error: "+errText, 160))
	}
	hints := m.theme.helpText.Render("Tab views · Enter send/open · Ctrl+N home · Ctrl+R refresh · d delete · Esc quit")
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + hints)
}

func (m *model) renderConfirmModal(title, subtitle string) string {
	canvasWidth := maxInt(40, m.width-4)
	canvasHeight := maxInt(12, m.height-4)
	modalWidth := clampInt(int(float64(canvasWidth)*0.5), 40, 72)

	body := strings.Join([]string{
		m.theme.errorStatus.Render(title),
		m.theme.helpText.Render(subtitle),
		"",
		m.theme.selected.Render("[Y / Enter] Yes") + "   " + m.theme.helpText.Render("[N / Esc] No"),
	}, "\n")
	panel := m.theme.modalFrame.Width(modalWidth).Render(body)
	return lipgloss.Place(
		canvasWidth,
		canvasHeight,
		lipgloss.Center,
		lipgloss.Center,
		panel,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("#0c1222")),
	)
}

func (m *model) renderPanes() {
	prevTimelineAtBottom := m.timeline.AtBottom()
	prevTimelineYOffset := m.timeline.YOffset
	prevSidebarYOffset := m.sidebar.YOffset

	contentHeight := maxInt(8, m.height-12)
	contentWidth := maxInt(40, m.width-4)
	m.timeline.Width = maxInt(20, contentWidth-4)
	m.timeline.Height = maxInt(5, contentHeight-2)
	m.sidebar.Width = maxInt(20, contentWidth-4)
	m.sidebar.Height = maxInt(5, contentHeight-2)

	m.timeline.SetContent(m.renderTimeline())
	if prevTimelineAtBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(prevTimelineYOffset)
	}

	switch m.activeTab {
	case tabSessions:
		m.sidebar.SetContent(m.renderSessions())
	case tabFiles:
		m.sidebar.SetContent(m.renderFiles())
	}
	m.sidebar.SetYOffset(prevSidebarYOffset)
}

func (m *model) renderTimeline() string {
	if m.ctrl.HomeView() {
		return homeHero
	}
	messages := m.ctrl.Display()
	if len(messages) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for _, msg := range messages {
		label := string(msg.Sender)
		if msg.Agent != "" && msg.Sender != chat.RoleUser {
			label = strings.ToLower(msg.Agent)
		}
		style, ok := m.theme.senders[label]
		if !ok {
			style = m.theme.senders["agent"]
		}
		header := fmt.Sprintf("%s [%s]", shortTime(msg.Timestamp), label)
		if workspace.IsPlaceholder(msg.ID) {
			header += " ⋯"
		}
		b.WriteString(style.Render(header))
		b.WriteString("\n")
		preview := compactTimelineMessage(msg.Content, timelineMaxLines, timelineMaxChars)
		b.WriteString(wrapText(preview, maxInt(24, m.timeline.Width-2)))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func (m *model) renderSessions() string {
	sessions := m.ctrl.Sessions()
	if len(sessions) == 0 {
		return "No sessions yet. Send a message from the Chat tab to start one."
	}
	var b strings.Builder
	for i, session := range sessions {
		title := session.Title
		if strings.TrimSpace(title) == "" {
			title = "(untitled)"
		}
		line := fmt.Sprintf("%s  %s  %s", shortTime(session.CreatedAt), shortID(session.ID), compactSingleLine(title, 60))
		if session.ID == m.ctrl.ActiveSession() {
			line += " ·active"
		}
		if i == m.sessionIndex {
			b.WriteString(m.theme.selected.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func (m *model) renderFiles() string {
	if m.ctrl.ActiveSession() == "" {
		return "Open a session to browse its workspace files."
	}
	if !m.filesLoaded {
		return "Loading file tree..."
	}
	if len(m.fileTree.Entries) == 0 {
		return "Workspace is empty so far."
	}
	var b strings.Builder
	b.WriteString(m.theme.helpText.Render("root: "+m.fileTree.Root) + "\n")
	renderFileNodes(&b, m.fileTree.Entries, 0)
	return strings.TrimSpace(b.String())
}

func renderFileNodes(b *strings.Builder, nodes []chat.FileNode, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, node := range nodes {
		marker := "·"
		if node.Type == "directory" {
			marker = "▸"
		}
		fmt.Fprintf(b, "%s%s %s\n", indent, marker, node.Name)
		if len(node.Children) > 0 {
			renderFileNodes(b, node.Children, depth+1)
		}
	}
}

func (m *model) renderHelp() string {
	lines := []string{
		"Atelier — terminal workspace for the agent team",
		"",
		"Chat",
		"- Type and press Enter; the first message starts a session",
		"- Streaming replies, status lines, and tool calls appear live",
		"",
		"Sessions",
		"- Up/Down select · Enter open · d delete · Ctrl+N back home",
		"",
		"Files",
		"- Refreshes automatically when the agents change files",
		"- r forces a refresh; the preview URL sits in the panel title",
		"",
		"Keys",
		"- Tab/Shift+Tab switch views · Ctrl+R refresh sessions",
		"- Esc quit prompt · Ctrl+C quit",
	}
	return m.theme.helpText.Render(strings.Join(lines, "\n"))
}

func (m *model) resize() {
	contentWidth := maxInt(40, m.width-4)
	m.input.Width = maxInt(20, contentWidth-6)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func shortTime(iso string) string {
	parsed, ok := chat.ParseISO(iso)
	if !ok {
		return "--:--:--"
	}
	return parsed.Local().Format("15:04:05")
}

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	wrapped := make([]string, 0, len(lines))
	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			wrapped = append(wrapped, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if len(current)+1+len(word) <= width {
				current += " " + word
				continue
			}
			wrapped = append(wrapped, current)
			current = word
		}
		wrapped = append(wrapped, current)
	}
	return strings.Join(wrapped, "\n")
}

func compactTimelineMessage(text string, maxLines, maxChars int) string {
	normalized := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if normalized == "" {
		return ""
	}
	lines := strings.Split(normalized, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		hidden := len(lines) - maxLines
		lines = append(lines[:maxLines], fmt.Sprintf("[... %d lines hidden]", hidden))
	}
	joined := strings.TrimSpace(strings.Join(lines, "\n"))
	if maxChars > 0 && len(joined) > maxChars {
		return strings.TrimSpace(truncate(joined, maxChars-18) + "\n[... truncated]")
	}
	return joined
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	if limit <= 3 {
		return text[:limit]
	}
	return text[:limit-3] + "..."
}

func compactSingleLine(text string, limit int) string {
	compact := strings.Join(strings.Fields(text), " ")
	return truncate(compact, limit)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func parseFlags(defaults config.Config) appConfig {
	cfg := appConfig{}
	flag.StringVar(&cfg.apiBase, "api-base", defaults.APIBase, "Backend API base URL")
	flag.StringVar(&cfg.wsBase, "ws-base", defaults.WSBase, "Live feed base URL (defaults to the API host)")
	flag.StringVar(&cfg.token, "token", defaults.Token, "Bearer token (skips login)")
	flag.StringVar(&cfg.email, "email", defaults.Email, "Login email")
	flag.StringVar(&cfg.password, "password", defaults.Password, "Login password")
	flag.StringVar(&cfg.dataDir, "data-dir", defaults.DataDir, "Data directory for logs")
	flag.BoolVar(&cfg.debug, "debug", defaults.Debug, "Enable debug logging to the data directory")
	flag.BoolVar(&cfg.altScreen, "alt-screen", true, "Use alternate screen buffer")
	pollSeconds := flag.Int("poll-interval", int(defaults.PollInterval/time.Second), "Housekeeping tick interval seconds")
	timeoutSeconds := flag.Int("http-timeout", int(defaults.HTTPTimeout/time.Second), "Backend HTTP timeout seconds")
	flag.Parse()

	cfg.pollInterval = time.Duration(clampInt(*pollSeconds, 1, 60)) * time.Second
	cfg.httpTimeout = time.Duration(clampInt(*timeoutSeconds, 5, 300)) * time.Second
	return cfg
}

func main() {
	cfg := parseFlags(config.Load())

	fileLogger, err := logging.NewFileLogger(cfg.dataDir, cfg.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "atelier: logging setup failed: %v\n", err)
	}
	defer func() { _ = fileLogger.Close() }()
	logger := fileLogger.Logger

	client := api.New(cfg.apiBase, cfg.httpTimeout)
	wsBase := stream.ResolveWSBase(cfg.wsBase, client.Base())
	opener := func(sessionID string) (workspace.Subscription, error) {
		return stream.OpenFeed(wsBase, sessionID, logger)
	}
	ctrl := workspace.New(client, opener, cfg.token, logger)

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if cfg.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(cfg, client, ctrl, &fileLogger), opts...)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "atelier fatal error: %v\n", err)
		os.Exit(1)
	}
}
