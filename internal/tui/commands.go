package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"docsearch/internal/domain"
)

// RedrawMsg asks the model to re-render after a conversation changed outside
// the update loop.
type RedrawMsg struct{}

type searchDoneMsg struct {
	query string
	err   error
}

type analysisDoneMsg struct {
	fired bool
	err   error
}

type chatDoneMsg struct {
	panel panel
	err   error
}

type pageLoadedMsg struct {
	page int
	err  error
}

type sessionReadyMsg struct {
	err error
}

type documentsLoadedMsg struct {
	docs []domain.Document
	err  error
}

func (m Model) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.timeout)
}

func (m Model) searchCmd(query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.withTimeout()
		defer cancel()
		return searchDoneMsg{query: query, err: m.research.Search(ctx, query)}
	}
}

func (m Model) analyzeCmd() tea.Cmd {
	if !m.autoAnalyze {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := m.withTimeout()
		defer cancel()
		fired, err := m.research.Analyze(ctx)
		return analysisDoneMsg{fired: fired, err: err}
	}
}

func (m Model) askCmd(text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.withTimeout()
		defer cancel()
		return chatDoneMsg{panel: panelResearch, err: m.research.Ask(ctx, text)}
	}
}

func (m Model) readerSendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.withTimeout()
		defer cancel()
		return chatDoneMsg{panel: panelReader, err: m.reader.Send(ctx, text)}
	}
}

func (m Model) openDocumentCmd(documentID, page int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.withTimeout()
		defer cancel()
		if err := m.reader.OpenDocument(ctx, documentID); err != nil {
			return pageLoadedMsg{err: err}
		}
		if page > 1 {
			return pageLoadedMsg{page: page, err: m.reader.GoToPage(ctx, page)}
		}
		return pageLoadedMsg{page: m.reader.Page()}
	}
}

// pageStepCmd moves the reader one page forward (step > 0) or back.
func (m Model) pageStepCmd(step int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.withTimeout()
		defer cancel()
		var err error
		if step > 0 {
			err = m.reader.NextPage(ctx)
		} else {
			err = m.reader.PrevPage(ctx)
		}
		return pageLoadedMsg{page: m.reader.Page(), err: err}
	}
}

func (m Model) documentsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.withTimeout()
		defer cancel()
		docs, err := m.reader.Documents(ctx)
		return documentsLoadedMsg{docs: docs, err: err}
	}
}

// readerSessionCmd resolves the reader session when a document opens and
// pulls any stored history for it.
func (m Model) readerSessionCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.withTimeout()
		defer cancel()
		conv := m.reader.Conversation()
		if _, err := conv.EnsureSession(ctx); err != nil {
			return sessionReadyMsg{err: err}
		}
		return sessionReadyMsg{err: conv.LoadHistory(ctx)}
	}
}
