package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// ─── Custom Delegate ─────────────────────────────────────────────────────────

var (
	dateStyle    = lipgloss.NewStyle().Foreground(colorDim)
	changedStyle = lipgloss.NewStyle().Foreground(colorAccent)
	selectedBar  = lipgloss.NewStyle().Foreground(colorAccent).SetString("│ ")
	normalBar    = lipgloss.NewStyle().SetString("  ")
)

// noteItem is one row of the notes list.
type noteItem struct {
	title   string
	created time.Time
}

func (n noteItem) FilterValue() string { return n.title }

func notesToItems(titles []string, entries map[string]noteEntry) []list.Item {
	items := make([]list.Item, len(titles))
	for i, t := range titles {
		items[i] = noteItem{title: t, created: entries[t].created}
	}
	return items
}

type noteDelegate struct {
	changed     map[string]bool // titles recently changed outside the app
	spinnerView *string
}

func (d noteDelegate) Height() int                             { return 1 }
func (d noteDelegate) Spacing() int                            { return 0 }
func (d noteDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// displayDate shows MM-DD for the current year, full YYYY-MM-DD otherwise.
func displayDate(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	s := ts.Format("2006-01-02")
	currentYear := strconv.Itoa(time.Now().Year())
	if strings.HasPrefix(s, currentYear+"-") {
		s = s[len(currentYear)+1:]
	}
	return s
}

func (d noteDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	n, ok := item.(noteItem)
	if !ok {
		return
	}

	bar := normalBar
	if index == m.Index() {
		bar = selectedBar
	}

	maxW := m.Width() - 3 // -2 for bar prefix, -1 for right padding
	if maxW < 10 {
		maxW = 10
	}

	date := displayDate(n.created)
	if d.changed[n.title] && d.spinnerView != nil && *d.spinnerView != "" {
		date = *d.spinnerView + " " + date
	}
	dateW := lipgloss.Width(date) + 1

	avail := maxW - dateW
	title := ansi.Truncate(n.title, avail-1, "…")
	pad := ""
	if tw := lipgloss.Width(title) + 1; tw < avail {
		pad = strings.Repeat(" ", avail-tw)
	}

	titleStyle := lipgloss.NewStyle()
	if index == m.Index() {
		titleStyle = titleStyle.Bold(true)
	} else if d.changed[n.title] {
		titleStyle = changedStyle
	}

	fmt.Fprintf(w, "%s %s%s %s ", bar, titleStyle.Render(title), pad, dateStyle.Render(date))
}
