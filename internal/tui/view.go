package tui

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"

	"docsearch/internal/conversation"
	"docsearch/internal/domain"
	"docsearch/internal/geometry"
	"docsearch/internal/reader"
)

// Rendered pixels covered by one terminal cell in the overlay map.
const (
	cellWidth  = 24.0
	cellHeight = 48.0
)

var (
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	activeTab      = lipgloss.NewStyle().Bold(true).Underline(true)
	inactiveTab    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	agentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sentenceRe     = regexp.MustCompile(`[.!?]+(\s|$)`)
)

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	tabs := make([]string, 0, 2)
	for _, p := range []panel{panelResearch, panelReader} {
		if p == m.active {
			tabs = append(tabs, activeTab.Render(p.String()))
		} else {
			tabs = append(tabs, inactiveTab.Render(p.String()))
		}
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document Search") + "  " + strings.Join(tabs, " | ")
	body := lipgloss.JoinHorizontal(lipgloss.Top, boxStyle.Render(m.left.View()), boxStyle.Render(m.right.View()))

	var inputs string
	if m.active == panelResearch {
		inputs = boxStyle.Render(m.queryInput.View() + "\n" + m.researchInput.View())
	} else {
		inputs = boxStyle.Render(m.readerInput.View())
	}
	status := statusStyle.Render(m.status)
	if m.activeConversationPending() {
		status += dimStyle.Render("  (agent is thinking...)")
	}
	return header + "\n" + body + "\n" + inputs + "\n" + status
}

func (m Model) activeConversationPending() bool {
	if m.active == panelReader {
		return m.reader.Conversation().Pending()
	}
	return m.research.Conversation().Pending()
}

func (m *Model) layout() {
	fw, fh := boxStyle.GetFrameSize()
	inputLines := 2
	if m.active == panelReader {
		inputLines = 1
	}
	reserved := 1 + 1 + (inputLines + fh) + fh // header, status, input box, body frame
	h := max(3, m.height-reserved)
	w := max(20, m.width/2-fw)
	m.left.Width, m.left.Height = w, h
	m.right.Width, m.right.Height = w, h
	width := max(20, m.width-fw-2)
	m.queryInput.Width = width
	m.researchInput.Width = width
	m.readerInput.Width = width
}

// refresh re-renders both panes from the surfaces' current state.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.layout()
	if m.active == panelResearch {
		m.left.SetContent(m.renderResults())
		m.right.SetContent(renderChat(m.research.Conversation(), m.right.Width))
	} else {
		m.left.SetContent(m.renderPage())
		m.right.SetContent(renderChat(m.reader.Conversation(), m.right.Width))
	}
	m.right.GotoBottom()
}

func (m Model) renderResults() string {
	st := m.research.Snapshot()
	switch {
	case st.Loading:
		return "Searching..."
	case st.Err != nil:
		return "Search failed."
	case len(st.Results) == 0:
		return "No results yet."
	}
	var b strings.Builder
	for i, r := range st.Results {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%s  p.%d  [%s]  score=%.3f\n", marker, r.DocumentTitle, r.PageNum, r.ResultType, r.Score)
	}
	cur := st.Results[min(m.cursor, len(st.Results)-1)]
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Width(m.left.Width).Render(highlightSnippet(cur, st.Query)))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("ctrl+o open in reader · ctrl+t search/ask"))
	return b.String()
}

func (m Model) renderPage() string {
	if m.picking {
		return m.renderDocuments()
	}
	st := m.reader.Snapshot()
	if !st.Open {
		return "No document open. Press ctrl+l to pick one, or ctrl+o on a search result."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  page %d/%d  zoom %.2fx\n\n", st.Document.Filename, st.Page, st.Document.TotalPages, st.Viewport.Zoom)
	if st.Loading || !st.Viewport.Ready() {
		b.WriteString("Loading page...")
		return b.String()
	}
	boxes := m.reader.Overlay()
	selected, hasSel := m.reader.Selected()
	b.WriteString(renderOverlay(st, boxes, m.left.Width, m.left.Height/2))
	b.WriteString("\n")
	if len(boxes) == 0 {
		b.WriteString(dimStyle.Render("No regions on this page."))
		return b.String()
	}
	for i, box := range boxes {
		marker := "  "
		if i == m.regionCursor {
			marker = "> "
		}
		sel := " "
		if hasSel && selected.ID == box.Region.ID {
			sel = "*"
		}
		rb := box.Region.Box
		fmt.Fprintf(&b, "%s%s%d %s  (%.0f,%.0f)-(%.0f,%.0f) -> %.0f,%.0f %.0fx%.0f\n",
			marker, sel, i+1, box.Region.Label, rb.X0, rb.Y0, rb.X1, rb.Y1,
			box.Rect.Left, box.Rect.Top, box.Rect.Width, box.Rect.Height)
	}
	b.WriteString(dimStyle.Render("pgup/pgdown page · ctrl+s select · alt+= / alt+- zoom · ctrl+l documents"))
	return b.String()
}

func (m Model) renderDocuments() string {
	if len(m.documents) == 0 {
		return "No documents indexed yet. Esc to go back."
	}
	var b strings.Builder
	for i, d := range m.documents {
		marker := "  "
		if i == m.docCursor {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%s  (%d pages)\n", marker, d.Filename, d.TotalPages)
	}
	return b.String()
}

// renderOverlay draws the zoomed page as a character map, each region
// outlined by its list number.
func renderOverlay(st reader.State, boxes []geometry.OverlayBox, cols, rows int) string {
	pw, ph := st.Viewport.RenderedSize()
	w := min(cols, int(math.Ceil(pw/cellWidth)))
	h := min(rows, int(math.Ceil(ph/cellHeight)))
	if w <= 0 || h <= 0 {
		return ""
	}
	grid := make([][]rune, h)
	for y := range grid {
		grid[y] = []rune(strings.Repeat("·", w))
	}
	for i, box := range boxes {
		mark := rune('1' + i%9)
		x0 := int(box.Rect.Left / cellWidth)
		y0 := int(box.Rect.Top / cellHeight)
		x1 := int(math.Ceil((box.Rect.Left+box.Rect.Width)/cellWidth)) - 1
		y1 := int(math.Ceil((box.Rect.Top+box.Rect.Height)/cellHeight)) - 1
		for y := max(0, y0); y <= min(h-1, y1); y++ {
			for x := max(0, x0); x <= min(w-1, x1); x++ {
				if y == y0 || y == y1 || x == x0 || x == x1 {
					grid[y][x] = mark
				}
			}
		}
	}
	lines := make([]string, h)
	for y := range grid {
		lines[y] = string(grid[y])
	}
	return strings.Join(lines, "\n")
}

func renderChat(conv *conversation.Conversation, width int) string {
	body := renderTranscript(conv.Messages(), width)
	if title := conv.Title(); title != "" {
		return lipgloss.NewStyle().Bold(true).Render(title) + "\n\n" + body
	}
	return body
}

func renderTranscript(msgs []domain.Message, width int) string {
	if len(msgs) == 0 {
		return dimStyle.Render("No messages yet.")
	}
	wrap := lipgloss.NewStyle().Width(max(10, width))
	var b strings.Builder
	for _, msg := range msgs {
		if msg.Role == domain.RoleUser {
			b.WriteString(userStyle.Render("You"))
			switch msg.Status {
			case domain.StatusPending:
				b.WriteString(dimStyle.Render(" (sending)"))
			case domain.StatusFailed:
				b.WriteString(dimStyle.Render(" (not delivered)"))
			}
		} else {
			b.WriteString(agentStyle.Render("Agent"))
		}
		b.WriteString(dimStyle.Render("  " + msg.CreatedAt.Format("15:04")))
		b.WriteString("\n")
		b.WriteString(wrap.Render(msg.Content))
		b.WriteString("\n")
		for _, s := range msg.Sources {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" - [%s] %s", s.Type, sourceLabel(s))))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func sourceLabel(s domain.Source) string {
	switch {
	case s.Title != "" && s.Page > 0:
		return fmt.Sprintf("%s p.%d", s.Title, s.Page)
	case s.Title != "":
		return s.Title
	case s.Query != "":
		return s.Query
	}
	return "N/A"
}

// highlightSnippet emphasizes the snippet sentence sharing the most words
// with query. Image results carry a caption rather than page text and are
// shown as is.
func highlightSnippet(r domain.SearchResult, query string) string {
	text := strings.TrimSpace(r.Snippet)
	if text == "" || r.ResultType == "image" {
		return text
	}
	sentences := splitSentences(text)
	terms := queryTerms(query)
	best, bestHits := -1, 0
	for i, sent := range sentences {
		if hits := countTerms(terms, sent); hits > bestHits {
			best, bestHits = i, hits
		}
	}
	if best >= 0 {
		sentences[best] = highlightStyle.Render(sentences[best])
	}
	return strings.Join(sentences, " ")
}

// splitSentences cuts text after each terminal punctuation mark, keeping an
// unterminated tail as its own sentence.
func splitSentences(text string) []string {
	var out []string
	end := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if sent := strings.TrimSpace(text[end:loc[1]]); sent != "" {
			out = append(out, sent)
		}
		end = loc[1]
	}
	if tail := strings.TrimSpace(text[end:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func queryTerms(query string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, w := range words(query) {
		terms[w] = struct{}{}
	}
	return terms
}

// countTerms counts the distinct query terms present in sentence.
func countTerms(terms map[string]struct{}, sentence string) int {
	if len(terms) == 0 {
		return 0
	}
	found := make(map[string]struct{})
	for _, w := range words(sentence) {
		if _, ok := terms[w]; ok {
			found[w] = struct{}{}
		}
	}
	return len(found)
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
