package prattui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pratchat/prat/internal/chat"
	"github.com/pratchat/prat/internal/timeline"
)

var (
	dayHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	authorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	timeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	editedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	reactionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("179"))
	ownReaction    = lipgloss.NewStyle().Foreground(lipgloss.Color("179")).Bold(true).Underline(true)
	attachStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("108"))
	selectedStyle  = lipgloss.NewStyle().Background(lipgloss.Color("236"))
)

// renderTimeline projects day groups into viewport lines and records which
// line each message starts at, for the selection cursor.
func renderTimeline(groups []timeline.DayGroup, width int, selectedID string) (lines []string, firstLine map[string]int) {
	if width < 20 {
		width = 20
	}
	firstLine = make(map[string]int)

	for _, g := range groups {
		rule := strings.Repeat("─", maxInt(0, (width-len(g.Label)-4)/2))
		lines = append(lines, dayHeaderStyle.Render(rule+"  "+g.Label+"  "+rule))

		for _, m := range g.Messages {
			firstLine[m.ID] = len(lines)
			lines = append(lines, renderMessageLines(m, width, m.ID == selectedID)...)
		}
	}
	return lines, firstLine
}

func renderMessageLines(m chat.Message, width int, selected bool) []string {
	head := timeStyle.Render(m.CreatedAt.Local().Format("15:04")) + " " +
		authorStyle.Render(m.AuthorLabel())
	if m.EditedAt != nil {
		head += " " + editedStyle.Render("(edited)")
	}

	out := []string{head}
	for _, line := range wrapText(m.Content, width-2) {
		out = append(out, "  "+line)
	}
	for _, a := range m.Attachments {
		label := fmt.Sprintf("  ⎘ %s", a.Filename)
		if a.Status == chat.StatusProcessing {
			label += " (processing)"
		}
		out = append(out, attachStyle.Render(label))
	}
	if len(m.Reactions) > 0 {
		parts := make([]string, 0, len(m.Reactions))
		for _, r := range m.Reactions {
			label := fmt.Sprintf("%s %d", emojiLabel(r), r.Count)
			if r.UserReacted {
				parts = append(parts, ownReaction.Render(label))
			} else {
				parts = append(parts, reactionStyle.Render(label))
			}
		}
		out = append(out, "  "+strings.Join(parts, "  "))
	}

	if selected {
		for i, line := range out {
			out[i] = selectedStyle.Render(line)
		}
	}
	return out
}

func emojiLabel(r chat.Reaction) string {
	if r.Emoji.Unicode != "" {
		return r.Emoji.Unicode
	}
	if r.Shortcode != "" {
		return r.Shortcode
	}
	return ":" + r.Emoji.EmojiID + ":"
}

// wrapText splits content into width-bounded lines on word boundaries,
// falling back to hard breaks for oversized words.
func wrapText(content string, width int) []string {
	if width < 8 {
		width = 8
	}
	var out []string
	for _, raw := range strings.Split(content, "\n") {
		words := strings.Fields(raw)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, word := range words {
			for len([]rune(word)) > width {
				runes := []rune(word)
				if line != "" {
					out = append(out, line)
					line = ""
				}
				out = append(out, string(runes[:width]))
				word = string(runes[width:])
			}
			switch {
			case line == "":
				line = word
			case len([]rune(line))+1+len([]rune(word)) <= width:
				line += " " + word
			default:
				out = append(out, line)
				line = word
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
