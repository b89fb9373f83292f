package main

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ─── About ───────────────────────────────────────────────────────────────────

const (
	appName        = "Notepad"
	appDescription = "A simple plain-text notepad"
	shareText      = "Get Notepad, a simple notepad app, at https://leonportfolio.netlify.app/projects"
)

// donation is one way to support the app. Entries with a link are opened
// with the OS opener; the rest are copied.
type donation struct {
	key   string
	label string
	value string
	link  bool
}

var donations = []donation{
	{key: "e", label: "PayPal / PIX email", value: "leonardo132@gmail.com"},
	{key: "w", label: "Wise ID", value: "leonardot1427"},
	{key: "o", label: "Donate with Wise", value: "https://wise.com/pay/me/leonardot1427", link: true},
	{key: "l", label: "Lightning address", value: "mightynepal82@walletofsatoshi.com"},
	{key: "b", label: "Bitcoin (on-chain)", value: "bc1qjahmm3qtzpn9kc86j8uedejjuvtlp66z8w3wek"},
}

func (m model) handleAboutKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q", "i":
		m.screen = listScreen
		return m, nil
	case "s":
		return m, copyToClipboard(shareText, "share text")
	}
	for _, d := range donations {
		if msg.String() != d.key {
			continue
		}
		if d.link {
			return m, openLink(m.launcher, d.value)
		}
		return m, copyToClipboard(d.value, strings.ToLower(d.label))
	}
	return m, nil
}

func (m model) aboutView() string {
	brand := lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	dim := lipgloss.NewStyle().Foreground(colorDim)
	keyStyle := lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Width(3)

	var b strings.Builder
	b.WriteString(brand.Render(appName) + " " + dim.Render(m.versionName) + "\n")
	b.WriteString(dim.Render(appDescription) + "\n\n")
	b.WriteString(helpTitleStyle.Render("Support the project") + "\n")
	for _, d := range donations {
		b.WriteString(keyStyle.Render(d.key) + d.label + "  " + dim.Render(d.value) + "\n")
	}
	b.WriteString("\n" + keyStyle.Render("s") + "Copy share text\n")
	b.WriteString("\n" + dim.Render("esc back"))

	box := helpBoxStyle.Render(b.String())
	base := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, box)

	var bar string
	if m.status.text != "" {
		bar = " " + m.status.spinner.View() + " " + statusTextStyle.Render(m.status.text)
	}
	return base + "\n" + bar
}
