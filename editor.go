package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// ─── Editor ──────────────────────────────────────────────────────────────────

type editorFocus int

const (
	focusTitle editorFocus = iota
	focusBody
)

type editorState struct {
	title       textinput.Model
	body        textarea.Model
	origTitle   string // "" for a note that has never been saved
	origContent string
	focus       editorFocus
	confirmExit bool
}

func newEditor(title, content string) editorState {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "Title"
	ti.CharLimit = 200
	ti.SetValue(title)

	ta := textarea.New()
	ta.Placeholder = "Write your note..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetValue(content)

	e := editorState{
		title:       ti,
		body:        ta,
		origTitle:   title,
		origContent: content,
	}
	if title == "" {
		e.focusOn(focusTitle)
	} else {
		e.focusOn(focusBody)
	}
	return e
}

func (e *editorState) focusOn(f editorFocus) {
	e.focus = f
	if f == focusTitle {
		e.body.Blur()
		e.title.Focus()
		e.title.CursorEnd()
	} else {
		e.title.Blur()
		e.body.Focus()
	}
}

func (e *editorState) setSize(width, height int) {
	w := width - 4
	if w < 10 {
		w = 10
	}
	h := height - 7 // borders, title row, separator and hint bar
	if h < 3 {
		h = 3
	}
	e.title.Width = w
	e.body.SetWidth(w)
	e.body.SetHeight(h)
}

// isNew reports whether the note has never been stored.
func (e editorState) isNew() bool {
	return e.origTitle == ""
}

// hasChanges compares the trimmed title and the raw content with what was
// loaded. A note that was never stored always counts as changed.
func (e editorState) hasChanges() bool {
	if e.isNew() {
		return true
	}
	return strings.TrimSpace(e.title.Value()) != e.origTitle || e.body.Value() != e.origContent
}

// openEditor switches to the editor for title, or for a new note when title is "".
func (m *model) openEditor(title string) tea.Cmd {
	content := ""
	if title != "" {
		c, err := m.store.read(title)
		if err != nil {
			return func() tea.Msg { return errMsg{err} }
		}
		content = c
	}
	m.editor = newEditor(title, content)
	m.editor.setSize(m.width, m.height)
	m.screen = editorScreen
	return textarea.Blink
}

// saveEditor stores the editor content, renaming when an existing note got
// a new title. It reports whether the note was persisted.
func (m *model) saveEditor() (bool, tea.Cmd) {
	title := strings.TrimSpace(m.editor.title.Value())
	content := m.editor.body.Value()
	if title == "" {
		m.editor.focusOn(focusTitle)
		return false, m.setStatus("Give the note a title before saving", statusTimeout)
	}

	var stored string
	var err error
	if !m.editor.isNew() && m.editor.origTitle != title {
		stored, err = m.store.rename(m.editor.origTitle, title, content)
	} else {
		stored, err = m.store.write(title, content)
	}
	if err != nil {
		if errors.Is(err, errInvalidTitle) {
			m.editor.focusOn(focusTitle)
			return false, m.setStatus("Titles cannot contain / or \\", statusTimeout)
		}
		m.log.Error("save note", zap.String("title", title), zap.Error(err))
		return false, m.setStatus(fmt.Sprintf("Error: %v", err), statusTimeout)
	}

	m.editor.origTitle = stored
	m.editor.origContent = content
	m.editor.title.SetValue(stored)
	m.reloadNotes()
	m.selectTitle(stored)
	return true, m.setStatus("Saved "+stored, statusTimeout)
}

func (m *model) closeEditor() {
	m.editor.confirmExit = false
	m.screen = listScreen
	m.refreshPreview()
}

func (m model) handleEditorKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.editor.confirmExit {
		switch msg.String() {
		case "s":
			m.editor.confirmExit = false
			ok, cmd := m.saveEditor()
			if ok {
				m.closeEditor()
			}
			return m, cmd
		case "d":
			m.clearStatus()
			m.closeEditor()
			return m, nil
		case "esc":
			m.editor.confirmExit = false
			m.clearStatus()
			return m, nil
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+s":
		_, cmd := m.saveEditor()
		return m, cmd
	case "esc":
		if !m.editor.hasChanges() {
			m.closeEditor()
			return m, nil
		}
		m.editor.confirmExit = true
		m.status.id++
		m.status.text = "Unsaved changes: s save · d discard · esc keep editing"
		return m, m.status.spinner.Tick
	case "tab", "shift+tab":
		if m.editor.focus == focusTitle {
			m.editor.focusOn(focusBody)
		} else {
			m.editor.focusOn(focusTitle)
		}
		return m, nil
	case "enter":
		if m.editor.focus == focusTitle {
			m.editor.focusOn(focusBody)
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.editor.focus == focusTitle {
		m.editor.title, cmd = m.editor.title.Update(msg)
	} else {
		m.editor.body, cmd = m.editor.body.Update(msg)
	}
	return m, cmd
}

func (m model) editorView() string {
	innerW := m.width - 2
	innerH := m.height - 3

	label := "Edit note"
	if m.editor.isNew() {
		label = "New note"
	}
	dot := ""
	if m.editor.hasChanges() {
		dot = " " + lipgloss.NewStyle().Foreground(colorYellow).Render("●")
	}
	header := paneTitleStyle.Render(label) + dot
	titleRow := " " + m.editor.title.View()
	sep := lipgloss.NewStyle().Foreground(colorDim).Render(strings.Repeat("─", max(innerW-2, 1)))
	content := header + "\n" + titleRow + "\n " + sep + "\n" + m.editor.body.View()

	pane := focusedBorder.Width(innerW).Height(innerH).Render(content)

	var bar string
	if m.status.text != "" {
		bar = " " + m.status.spinner.View() + " " + statusTextStyle.Render(m.status.text)
	} else {
		hint := lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
		dim := lipgloss.NewStyle().Foreground(colorDim)
		bar = " " + hint.Render("ctrl+s") + dim.Render(" save | ") +
			hint.Render("tab") + dim.Render(" title/body | ") +
			hint.Render("esc") + dim.Render(" back")
	}
	return pane + "\n" + bar
}
