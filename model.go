package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ─── Key Map ─────────────────────────────────────────────────────────────────

type keyMap struct {
	Navigate   key.Binding
	New        key.Binding
	Edit       key.Binding
	Delete     key.Binding
	MoveUp     key.Binding
	MoveDown   key.Binding
	Export     key.Binding
	Copy       key.Binding
	Filter     key.Binding
	ScrollDown key.Binding
	ScrollUp   key.Binding
	About      key.Binding
	Update     key.Binding
	Help       key.Binding
	Quit       key.Binding
	ForceQuit  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Navigate:   key.NewBinding(key.WithKeys("j", "k"), key.WithHelp("j/k", "navigate")),
		New:        key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new note")),
		Edit:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
		Delete:     key.NewBinding(key.WithKeys("#"), key.WithHelp("#", "delete note")),
		MoveUp:     key.NewBinding(key.WithKeys("K"), key.WithHelp("K/J", "move note up/down")),
		MoveDown:   key.NewBinding(key.WithKeys("J")),
		Export:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "export")),
		Copy:       key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy content")),
		Filter:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		ScrollDown: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "page down")),
		ScrollUp:   key.NewBinding(key.WithKeys("B"), key.WithHelp("B", "page up")),
		About:      key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "about")),
		Update:     key.NewBinding(key.WithKeys("U"), key.WithHelp("U", "check for update")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		ForceQuit:  key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.New, k.Edit, k.Export, k.Copy, k.MoveUp, k.Help}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		// Notes
		{k.New, k.Edit, k.Delete, k.MoveUp, k.Export, k.Copy},
		// Navigation / app
		{k.Navigate, k.ScrollDown, k.ScrollUp, k.Filter, k.About, k.Update, k.Help, k.Quit},
	}
}

// ─── Model ───────────────────────────────────────────────────────────────────

const statusTimeout = 3 * time.Second

type screen int

const (
	listScreen screen = iota
	editorScreen
	aboutScreen
)

type statusBarState struct {
	text    string
	id      int
	spinner spinner.Model
}

type exportPromptState struct {
	on    bool
	input textinput.Model
}

// app bundles the non-UI components the model drives.
type app struct {
	cfg         config
	store       *noteStore
	exporter    *exporter
	checker     *updateChecker
	installer   *updateInstaller
	launcher    packageLauncher
	log         *zap.Logger
	versionName string
	versionCode int
}

type model struct {
	// Layout
	list     list.Model
	viewport viewport.Model
	keys     keyMap
	help     help.Model
	width    int
	height   int
	ready    bool // true after first WindowSizeMsg

	glamourStyle string // "dark" or "light" based on terminal background

	app
	watcher *fsnotify.Watcher

	// Note data
	entries   map[string]noteEntry
	prevIndex int // tracks cursor changes to trigger preview updates

	changedFiles    map[string]bool // titles recently changed externally
	changedSpinID   int
	changedSpinView *string // shared with delegate for spinner frame

	// Screens, modals and transient state
	screen        screen
	editor        editorState
	confirmDelete bool
	exportPrompt  exportPromptState
	status        statusBarState
	update        updateModalState
}

func newModel(a app, watcher *fsnotify.Watcher) model {
	if a.log == nil {
		a.log = zap.NewNop()
	}
	chg := make(map[string]bool)
	var spinView string
	delegate := noteDelegate{changed: chg, spinnerView: &spinView}
	l := list.New(nil, delegate, 0, 0)
	l.Title = appName
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.Styles.Title = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	l.Styles.TitleBar = lipgloss.NewStyle().Padding(0, 1, 1, 2)
	l.KeyMap.Quit.SetKeys("q") // don't quit on esc
	l.FilterInput.Prompt = "Search: "

	h := help.New()
	h.ShortSeparator = " | "
	h.Styles.ShortKey = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	h.Styles.ShortDesc = lipgloss.NewStyle().Foreground(colorDim)
	h.Styles.ShortSeparator = lipgloss.NewStyle().Foreground(colorDim)
	h.Styles.FullKey = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Width(10)
	h.Styles.FullDesc = lipgloss.NewStyle().Foreground(colorFull)
	h.Styles.FullSeparator = lipgloss.NewStyle()

	s := spinner.New()
	s.Spinner = spinner.Pulse
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	ti := textinput.New()
	ti.Prompt = "Export to: "
	ti.CharLimit = 4096

	style := "dark"
	if !lipgloss.HasDarkBackground() {
		style = "light"
	}

	m := model{
		list:            l,
		viewport:        viewport.New(0, 0),
		keys:            newKeyMap(),
		help:            h,
		glamourStyle:    style,
		app:             a,
		watcher:         watcher,
		entries:         make(map[string]noteEntry),
		prevIndex:       -1,
		changedFiles:    chg,
		changedSpinView: &spinView,
		status:          statusBarState{spinner: s},
		exportPrompt:    exportPromptState{input: ti},
		update:          updateModalState{viewport: viewport.New(0, 0)},
	}
	// A failed scan leaves its notice in the status bar; Init arms the clear.
	_ = m.reloadNotes()
	return m
}

func (m model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.watcher != nil {
		cmds = append(cmds, watchDir(m.watcher))
	}
	if cmd := startupUpdateCmd(m.checker, m.cfg.PackageID, m.versionCode); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if m.status.text != "" {
		cmds = append(cmds, m.status.spinner.Tick, clearStatusAfter(m.status.id, statusTimeout))
	}
	if len(cmds) == 0 {
		return nil
	}
	return tea.Batch(cmds...)
}

func clearStatusAfter(id int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusClearMsg{id: id}
	})
}

// setStatus shows a transient message in the status bar with a spinner animation.
// If duration > 0, the message auto-clears after that time.
func (m *model) setStatus(text string, duration time.Duration) tea.Cmd {
	m.status.id++
	m.status.text = text
	cmds := []tea.Cmd{m.status.spinner.Tick}
	if duration > 0 {
		cmds = append(cmds, clearStatusAfter(m.status.id, duration))
	}
	return tea.Batch(cmds...)
}

func (m *model) clearStatus() {
	m.status.text = ""
}

// reloadNotes rescans the store. An unreadable notes directory shows an
// empty list; the returned command surfaces the notice.
func (m *model) reloadNotes() tea.Cmd {
	titles, err := m.store.list()
	if err != nil {
		m.log.Warn("list notes", zap.Error(err))
		m.entries = make(map[string]noteEntry)
		m.list.SetItems(nil)
		m.viewport.SetContent("")
		if errors.Is(err, errStorageUnavailable) {
			return m.setStatus("Notes storage unavailable", statusTimeout)
		}
		return m.setStatus(fmt.Sprintf("Error: %v", err), statusTimeout)
	}
	m.setNotes(titles)
	return nil
}

func (m *model) setNotes(titles []string) {
	entries := make(map[string]noteEntry, len(titles))
	for _, t := range titles {
		if e, err := m.store.stat(t); err == nil {
			entries[t] = e
		}
	}
	m.entries = entries
	m.list.SetItems(notesToItems(titles, entries))
}

func (m model) selectedTitle() string {
	if item, ok := m.list.SelectedItem().(noteItem); ok {
		return item.title
	}
	return ""
}

// selectTitle moves the cursor to title, or clamps the current index when
// the note is gone.
func (m *model) selectTitle(title string) {
	for i, item := range m.list.Items() {
		if n, ok := item.(noteItem); ok && n.title == title {
			m.list.Select(i)
			return
		}
	}
	if idx := m.list.Index(); idx >= len(m.list.Items()) && len(m.list.Items()) > 0 {
		m.list.Select(len(m.list.Items()) - 1)
	}
}

// refreshPreview shows the selected note as plain text.
func (m *model) refreshPreview() {
	m.prevIndex = m.list.Index()
	title := m.selectedTitle()
	if title == "" {
		m.viewport.SetContent("")
		return
	}
	content, err := m.store.read(title)
	if err != nil {
		content = fmt.Sprintf("Error reading %s: %v", title, err)
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(content))
	m.viewport.GotoTop()
}

func (m model) previewW() int {
	return m.width - (m.width * 40 / 100) - 2
}

// moveSelected shifts the selected note by delta and persists the new order.
func (m *model) moveSelected(delta int) tea.Cmd {
	if m.list.IsFiltered() || m.list.SettingFilter() {
		return m.setStatus("Clear the search to reorder notes", statusTimeout)
	}
	from := m.list.Index()
	titles, err := m.store.reorder(from, from+delta)
	if err != nil {
		if errors.Is(err, errIndexOutOfRange) {
			return nil
		}
		return m.setStatus(fmt.Sprintf("Error: %v", err), statusTimeout)
	}
	m.setNotes(titles)
	m.list.Select(from + delta)
	m.prevIndex = m.list.Index()
	return nil
}

// ─── Modal Key Handlers ──────────────────────────────────────────────────────

func (m model) handleDeleteConfirm(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "y":
		m.confirmDelete = false
		m.clearStatus()
		title := m.selectedTitle()
		if title == "" {
			return m, nil
		}
		if err := m.store.delete(title); err != nil {
			return m, m.setStatus(fmt.Sprintf("Error: %v", err), statusTimeout)
		}
		cmd := m.reloadNotes()
		m.selectTitle("")
		m.refreshPreview()
		if cmd != nil {
			return m, cmd
		}
		return m, m.setStatus("Deleted "+title, statusTimeout)
	case "n", "esc", "q":
		m.confirmDelete = false
		m.clearStatus()
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m model) handleExportPrompt(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.exportPrompt.on = false
		m.exportPrompt.input.Blur()
		_ = m.exporter.cancel()
		return m, m.setStatus("Export cancelled", statusTimeout)
	case tea.KeyEnter:
		m.exportPrompt.on = false
		m.exportPrompt.input.Blur()
		dst := fileDestination{path: m.exportPrompt.input.Value()}
		if err := m.exporter.resolve(dst); err != nil {
			m.log.Warn("export", zap.Error(err))
			return m, m.setStatus(fmt.Sprintf("Error: %v", err), statusTimeout)
		}
		return m, m.setStatus("Exported to "+dst.String(), statusTimeout)
	}
	var cmd tea.Cmd
	m.exportPrompt.input, cmd = m.exportPrompt.input.Update(msg)
	return m, cmd
}

// ─── Key Handling ─────────────────────────────────────────────────────────────

// handleKeyMsg processes keyboard input, returning handled=true for keys that
// should short-circuit Update (modals, commands, etc.) and handled=false for
// keys that should fall through to list.Update for default navigation/search.
func (m model) handleKeyMsg(msg tea.KeyMsg) (model, tea.Cmd, bool) {
	if m.update.on {
		mod, cmd := m.handleUpdateKey(msg)
		return mod, cmd, true
	}

	switch m.screen {
	case editorScreen:
		mod, cmd := m.handleEditorKey(msg)
		return mod, cmd, true
	case aboutScreen:
		mod, cmd := m.handleAboutKey(msg)
		return mod, cmd, true
	}

	// Help modal swallows everything except ?, esc and q
	if m.help.ShowAll {
		switch {
		case key.Matches(msg, m.keys.Help) || msg.String() == "esc":
			m.help.ShowAll = false
		case key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.ForceQuit):
			return m, tea.Quit, true
		}
		return m, nil, true
	}

	if m.confirmDelete {
		mod, cmd := m.handleDeleteConfirm(msg)
		return mod, cmd, true
	}
	if m.exportPrompt.on {
		mod, cmd := m.handleExportPrompt(msg)
		return mod, cmd, true
	}

	filtering := m.list.SettingFilter()
	if filtering {
		if key.Matches(msg, m.keys.ForceQuit) {
			return m, tea.Quit, true
		}
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.ForceQuit), key.Matches(msg, m.keys.Quit):
		return m, tea.Quit, true
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = true
		return m, nil, true
	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.HalfViewDown()
		return m, nil, true
	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.HalfViewUp()
		return m, nil, true
	case key.Matches(msg, m.keys.New):
		return m, m.openEditor(""), true
	case key.Matches(msg, m.keys.Edit):
		if title := m.selectedTitle(); title != "" {
			return m, m.openEditor(title), true
		}
		return m, nil, true
	case key.Matches(msg, m.keys.MoveUp):
		return m, m.moveSelected(-1), true
	case key.Matches(msg, m.keys.MoveDown):
		return m, m.moveSelected(1), true
	case key.Matches(msg, m.keys.Delete):
		if title := m.selectedTitle(); title != "" {
			m.confirmDelete = true
			m.status.id++
			m.status.text = fmt.Sprintf("Delete %s? (y/n)", title)
			return m, m.status.spinner.Tick, true
		}
		return m, nil, true
	case key.Matches(msg, m.keys.Export):
		title := m.selectedTitle()
		if title == "" {
			return m, nil, true
		}
		name, err := m.exporter.request(title)
		if err != nil {
			return m, m.setStatus(fmt.Sprintf("Error: %v", err), statusTimeout), true
		}
		m.exportPrompt.on = true
		m.exportPrompt.input.SetValue(suggestedExportPath(m.cfg.ExportDir, name))
		m.exportPrompt.input.CursorEnd()
		m.exportPrompt.input.Focus()
		return m, textinput.Blink, true
	case key.Matches(msg, m.keys.Copy):
		title := m.selectedTitle()
		if title == "" {
			return m, nil, true
		}
		content, err := m.store.read(title)
		if err != nil {
			return m, func() tea.Msg { return errMsg{err} }, true
		}
		return m, copyToClipboard(content, title), true
	case key.Matches(msg, m.keys.About):
		m.screen = aboutScreen
		return m, nil, true
	case key.Matches(msg, m.keys.Update):
		if m.update.version != nil {
			m.openUpdateModal()
			return m, nil, true
		}
		return m, tea.Batch(
			m.setStatus("Checking for updates…", 0),
			manualUpdateCmd(m.checker, m.cfg.PackageID, m.versionCode),
		), true
	}

	// Not handled; list.Update does default navigation and search
	return m, nil, false
}

// ─── Update ──────────────────────────────────────────────────────────────────

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		mod, cmd, handled := m.handleKeyMsg(msg)
		m = mod // Always apply model changes
		if handled {
			return m, cmd
		}

	case tea.MouseMsg:
		if m.screen != listScreen || m.update.on || msg.Action != tea.MouseActionPress {
			return m, nil
		}
		listW := m.width * 40 / 100
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			if msg.X < listW {
				m.list.CursorUp()
			} else {
				m.viewport.LineUp(3)
			}
		case tea.MouseButtonWheelDown:
			if msg.X < listW {
				m.list.CursorDown()
			} else {
				m.viewport.LineDown(3)
			}
		default:
			return m, nil
		}
		if m.list.Index() != m.prevIndex {
			m.refreshPreview()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		listW := m.width * 40 / 100
		innerListW := listW - 2
		innerPreviewW := m.previewW()
		innerH := m.height - 3 // -2 for borders, -1 for hint bar

		if innerListW < 10 {
			innerListW = 10
		}
		if innerPreviewW < 10 {
			innerPreviewW = 10
		}
		if innerH < 5 {
			innerH = 5
		}

		m.list.SetSize(innerListW, innerH-1)
		m.viewport.Width = innerPreviewW
		m.viewport.Height = innerH - 1
		if m.screen == editorScreen {
			m.editor.setSize(m.width, m.height)
		}
		m.exportPrompt.input.Width = m.width - 16
		m.refreshUpdateView()
		m.refreshPreview()
		return m, nil

	case fileChangedMsg:
		// Re-scan notes from disk, keeping the cursor on the same note.
		prev := m.selectedTitle()
		if cmd := m.reloadNotes(); cmd != nil {
			cmds = append(cmds, cmd)
		} else {
			m.selectTitle(prev)
			if m.screen == listScreen {
				m.refreshPreview()
			}
			if len(msg.files) > 0 {
				for _, f := range msg.files {
					m.changedFiles[strings.TrimSuffix(f, noteExt)] = true
				}
				m.changedSpinID++
				id := m.changedSpinID
				cmds = append(cmds, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
					return changedSpinExpiredMsg{id: id}
				}))
				label := strings.TrimSuffix(msg.files[0], noteExt)
				if len(msg.files) > 1 {
					label = fmt.Sprintf("%d notes", len(msg.files))
				}
				cmds = append(cmds, m.setStatus("Updated: "+label, 3*time.Second))
			}
		}
		if m.watcher != nil {
			cmds = append(cmds, watchDir(m.watcher))
		}
		return m, tea.Batch(cmds...)

	case changedSpinExpiredMsg:
		if msg.id == m.changedSpinID {
			clear(m.changedFiles)
			*m.changedSpinView = ""
		}
		return m, nil

	case spinner.TickMsg:
		if m.status.text != "" || len(m.changedFiles) > 0 {
			var cmd tea.Cmd
			m.status.spinner, cmd = m.status.spinner.Update(msg)
			*m.changedSpinView = m.status.spinner.View()
			return m, cmd
		}
		return m, nil

	case statusClearMsg:
		if msg.id == m.status.id {
			m.clearStatus()
		}
		return m, nil

	case noticeMsg:
		return m, m.setStatus(msg.text, statusTimeout)

	case errMsg:
		return m, m.setStatus(fmt.Sprintf("Error: %v", msg.err), statusTimeout)

	case updateAvailableMsg:
		v := msg.version
		m.update.version = &v
		if m.screen == listScreen {
			m.openUpdateModal()
		}
		return m, nil

	case updateCheckedMsg:
		if msg.latest == nil {
			return m, m.setStatus("You're on the latest version", statusTimeout)
		}
		m.clearStatus()
		m.update.version = msg.latest
		m.openUpdateModal()
		return m, nil

	case downloadStartedMsg, downloadProgressMsg, downloadDoneMsg, installResultMsg:
		return m.handleInstallerMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)

	// On cursor change, swap the preview to the newly selected note.
	if m.screen == listScreen && m.list.Index() != m.prevIndex {
		m.refreshPreview()
	}

	return m, tea.Batch(cmds...)
}
