package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"docsearch/internal/conversation"
	"docsearch/internal/domain"
	"docsearch/internal/reader"
	"docsearch/internal/research"
)

type panel int

const (
	panelResearch panel = iota
	panelReader
)

func (p panel) String() string {
	if p == panelReader {
		return "Reader"
	}
	return "Research"
}

// Options configures the terminal UI.
type Options struct {
	// Timeout bounds every backend round trip started from the UI.
	Timeout time.Duration
	// AutoAnalyze asks the agent to summarize each new result set.
	AutoAnalyze bool
	// PageWidth and PageHeight are the original page size handed to the
	// reader once a page is displayed.
	PageWidth, PageHeight float64
	// InitialQuery is searched as soon as the program starts.
	InitialQuery string
}

// Model is the Bubble Tea model hosting the research and reader surfaces.
type Model struct {
	research *research.Research
	reader   *reader.Reader

	timeout     time.Duration
	autoAnalyze bool
	pageWidth   float64
	pageHeight  float64

	active        panel
	chatFocused   bool // research panel: chat input instead of query input
	queryInput    textinput.Model
	researchInput textinput.Model
	readerInput   textinput.Model
	left          viewport.Model
	right         viewport.Model

	cursor        int
	regionCursor  int
	pendingRegion int
	picking       bool // reader panel: document list instead of page
	documents     []domain.Document
	docCursor     int
	status        string
	ready         bool
	width         int
	height        int
}

// New creates a new TUI model instance.
func New(res *research.Research, rd *reader.Reader, opts Options) Model {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	query := newInput("search> ", "Type a query and press Enter")
	query.SetValue(strings.TrimSpace(opts.InitialQuery))
	query.Focus()
	return Model{
		research:      res,
		reader:        rd,
		timeout:       opts.Timeout,
		autoAnalyze:   opts.AutoAnalyze,
		pageWidth:     opts.PageWidth,
		pageHeight:    opts.PageHeight,
		queryInput:    query,
		researchInput: newInput("ask> ", "Ask about these results"),
		readerInput:   newInput("ask> ", "Ask about this page (ctrl+s selects a region)"),
		left:          viewport.New(0, 0),
		right:         viewport.New(0, 0),
		status:        "Ready. Tab switches panels, ctrl+c quits.",
	}
}

func newInput(prompt, placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Placeholder = placeholder
	ti.CharLimit = 0
	return ti
}

// Init starts the cursor blink and the initial search, if any.
func (m Model) Init() tea.Cmd {
	if q := m.queryInput.Value(); q != "" {
		return tea.Batch(textinput.Blink, m.searchCmd(q))
	}
	return textinput.Blink
}

// Update handles key, window and backend events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width, m.height = msg.Width, msg.Height
		m.layout()
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		var handled bool
		m, cmd, handled = m.handleKey(msg)
		if !handled {
			cmd = m.updateInput(msg)
		}
	case searchDoneMsg:
		st := m.research.Snapshot()
		if st.Query != msg.query {
			break
		}
		if msg.err != nil {
			m.status = "Search failed: " + msg.err.Error()
			break
		}
		m.cursor = 0
		m.status = fmt.Sprintf("%d results for %q", len(st.Results), msg.query)
		cmd = m.analyzeCmd()
	case analysisDoneMsg:
		if msg.fired && msg.err == nil {
			m.status = "Analysis ready."
		}
	case chatDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, domain.ErrConversationReset) {
			m.status = msg.panel.String() + " chat: " + msg.err.Error()
		}
	case documentsLoadedMsg:
		if msg.err != nil {
			m.status = "Reader: " + msg.err.Error()
			break
		}
		m.documents, m.docCursor = msg.docs, 0
		m.picking = true
		m.status = fmt.Sprintf("%d documents. Enter opens, esc cancels.", len(msg.docs))
	case pageLoadedMsg:
		if msg.err != nil {
			m.status = "Reader: " + msg.err.Error()
			break
		}
		if msg.page != m.reader.Page() {
			break
		}
		m.reader.SetPageSize(m.pageWidth, m.pageHeight)
		m.regionCursor = 0
		if m.pendingRegion != 0 {
			_, _ = m.reader.SelectRegion(m.pendingRegion)
			m.pendingRegion = 0
		}
		st := m.reader.Snapshot()
		m.status = fmt.Sprintf("%s: page %d/%d, %d regions", st.Document.Filename, st.Page, st.Document.TotalPages, len(st.Regions))
	case sessionReadyMsg:
		if msg.err != nil && !errors.Is(msg.err, domain.ErrConversationReset) {
			m.reader.Conversation().Append(domain.Message{Role: domain.RoleAgent, Content: conversation.SessionFallbackReply})
			m.status = "Reader chat unavailable: " + msg.err.Error()
		}
	case RedrawMsg:
	default:
		cmd = m.updateInput(msg)
	}
	m.refresh()
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "tab":
		if m.active == panelResearch {
			m.active = panelReader
		} else {
			m.active = panelResearch
		}
		m.focus()
		return m, nil, true
	case "ctrl+n":
		if m.active == panelResearch {
			m.research.Reset()
		} else {
			m.reader.Conversation().Reset()
		}
		m.status = m.active.String() + " conversation cleared."
		return m, nil, true
	}
	if m.active == panelResearch {
		return m.handleResearchKey(msg)
	}
	return m.handleReaderKey(msg)
}

func (m Model) handleResearchKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	results := m.research.Snapshot().Results
	switch msg.String() {
	case "ctrl+t":
		m.chatFocused = !m.chatFocused
		m.focus()
		return m, nil, true
	case "enter":
		if m.chatFocused {
			text := strings.TrimSpace(m.researchInput.Value())
			if text == "" {
				return m, nil, true
			}
			if m.research.Conversation().Pending() {
				m.status = "Waiting for the previous reply..."
				return m, nil, true
			}
			m.researchInput.Reset()
			return m, m.askCmd(text), true
		}
		q := strings.TrimSpace(m.queryInput.Value())
		if q == "" {
			return m, nil, true
		}
		m.status = fmt.Sprintf("Searching for %q...", q)
		return m, m.searchCmd(q), true
	case "down":
		if len(results) > 0 {
			m.cursor = (m.cursor + 1) % len(results)
		}
		return m, nil, true
	case "up":
		if len(results) > 0 {
			m.cursor = (m.cursor - 1 + len(results)) % len(results)
		}
		return m, nil, true
	case "ctrl+o":
		if m.cursor >= len(results) {
			return m, nil, true
		}
		r := results[m.cursor]
		m.active = panelReader
		m.focus()
		m.pendingRegion = r.RegionID
		m.status = fmt.Sprintf("Opening %s page %d...", r.DocumentTitle, r.PageNum)
		return m, tea.Sequence(m.openDocumentCmd(r.DocumentID, r.PageNum), m.readerSessionCmd()), true
	}
	return m, nil, false
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "esc":
		m.picking = false
		return m, nil, true
	case "down":
		if n := len(m.documents); n > 0 {
			m.docCursor = (m.docCursor + 1) % n
		}
		return m, nil, true
	case "up":
		if n := len(m.documents); n > 0 {
			m.docCursor = (m.docCursor - 1 + n) % n
		}
		return m, nil, true
	case "enter":
		if m.docCursor >= len(m.documents) {
			return m, nil, true
		}
		doc := m.documents[m.docCursor]
		m.picking = false
		m.pendingRegion = 0
		m.status = fmt.Sprintf("Opening %s...", doc.Filename)
		return m, tea.Sequence(m.openDocumentCmd(doc.ID, 1), m.readerSessionCmd()), true
	}
	return m, nil, true
}

func (m Model) handleReaderKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	if m.picking {
		return m.handlePickerKey(msg)
	}
	st := m.reader.Snapshot()
	switch msg.String() {
	case "ctrl+l":
		m.status = "Loading documents..."
		return m, m.documentsCmd(), true
	case "enter":
		text := strings.TrimSpace(m.readerInput.Value())
		if text == "" {
			return m, nil, true
		}
		if m.reader.Conversation().Pending() {
			m.status = "Waiting for the previous reply..."
			return m, nil, true
		}
		m.readerInput.Reset()
		return m, m.readerSendCmd(text), true
	case "pgdown":
		if !st.Open {
			return m, nil, true
		}
		return m, m.pageStepCmd(1), true
	case "pgup":
		if !st.Open {
			return m, nil, true
		}
		return m, m.pageStepCmd(-1), true
	case "down":
		if n := len(st.Regions); n > 0 {
			m.regionCursor = (m.regionCursor + 1) % n
		}
		return m, nil, true
	case "up":
		if n := len(st.Regions); n > 0 {
			m.regionCursor = (m.regionCursor - 1 + n) % n
		}
		return m, nil, true
	case "ctrl+s":
		if m.regionCursor < len(st.Regions) {
			r := st.Regions[m.regionCursor]
			if on, err := m.reader.SelectRegion(r.ID); err == nil {
				if on {
					m.status = fmt.Sprintf("Selected %q for the next message.", r.Label)
				} else {
					m.status = "Selection cleared."
				}
			}
		}
		return m, nil, true
	case "alt+=", "alt++":
		m.status = fmt.Sprintf("Zoom %.2fx", m.reader.ZoomIn())
		return m, nil, true
	case "alt+-":
		m.status = fmt.Sprintf("Zoom %.2fx", m.reader.ZoomOut())
		return m, nil, true
	}
	return m, nil, false
}

func (m *Model) updateInput(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch {
	case m.active == panelReader:
		m.readerInput, cmd = m.readerInput.Update(msg)
	case m.chatFocused:
		m.researchInput, cmd = m.researchInput.Update(msg)
	default:
		m.queryInput, cmd = m.queryInput.Update(msg)
	}
	return cmd
}

func (m *Model) focus() {
	m.queryInput.Blur()
	m.researchInput.Blur()
	m.readerInput.Blur()
	switch {
	case m.active == panelReader:
		m.readerInput.Focus()
	case m.chatFocused:
		m.researchInput.Focus()
	default:
		m.queryInput.Focus()
	}
}
