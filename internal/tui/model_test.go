package tui

import (
	"context"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/analysis"
	"docsearch/internal/conversation"
	"docsearch/internal/domain"
	"docsearch/internal/reader"
	"docsearch/internal/research"
)

type fakeBackend struct{}

func (fakeBackend) CreateSession(ctx context.Context) (domain.Session, error) {
	return domain.Session{ID: "s", Title: "Quarterly report"}, nil
}

func (fakeBackend) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return nil, nil
}

func (fakeBackend) Send(ctx context.Context, msg domain.OutboundMessage) (domain.Reply, error) {
	return domain.Reply{Text: "ok"}, nil
}

func (fakeBackend) SendStateless(ctx context.Context, msg domain.OutboundMessage) (domain.Reply, error) {
	return domain.Reply{Text: "ok"}, nil
}

func (fakeBackend) Search(ctx context.Context, q domain.SearchQuery) ([]domain.SearchResult, error) {
	return nil, nil
}

var testDocs = []domain.Document{
	{ID: 1, Filename: "report.pdf", TotalPages: 2, Pages: []domain.Page{{ID: 10, Num: 1}, {ID: 11, Num: 2}}},
	{ID: 2, Filename: "manual.pdf", TotalPages: 1, Pages: []domain.Page{{ID: 20, Num: 1}}},
}

func (fakeBackend) Documents(ctx context.Context) ([]domain.Document, error) { return testDocs, nil }

func (fakeBackend) Document(ctx context.Context, id int) (domain.Document, error) {
	for _, d := range testDocs {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Document{}, fmt.Errorf("document %d not found", id)
}

func (fakeBackend) PageRegions(ctx context.Context, documentID, pageNum int) ([]domain.Region, error) {
	return nil, nil
}

func newTestModel() Model {
	b := fakeBackend{}
	res := research.New(b, conversation.New(b, nil, conversation.Options{Name: "research"}),
		analysis.NewTrigger(0, 0), research.Options{}, nil)
	rd := reader.New(b, conversation.New(b, nil, conversation.Options{Name: "reader"}), nil)
	return New(res, rd, Options{PageWidth: 1224, PageHeight: 1584})
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func TestDocumentPicker_OpensChosenDocument(t *testing.T) {
	m := newTestModel()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, panelReader, m.active)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	require.True(t, m.picking)
	require.Len(t, m.documents, 2)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.NotNil(t, cmd)
	assert.False(t, m.picking)

	m, _ = update(t, m, m.openDocumentCmd(testDocs[m.docCursor].ID, 1)())
	st := m.reader.Snapshot()
	assert.Equal(t, "manual.pdf", st.Document.Filename)
	assert.Contains(t, m.status, "manual.pdf: page 1/1")
}

func TestDocumentPicker_Escape(t *testing.T) {
	m := newTestModel()
	m.active = panelReader
	m, _ = update(t, m, documentsLoadedMsg{docs: testDocs})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.False(t, m.picking)
	assert.False(t, m.reader.Snapshot().Open)
}

func TestPageStep(t *testing.T) {
	m := newTestModel()
	require.NoError(t, m.reader.OpenDocument(context.Background(), 1))

	m, _ = update(t, m, m.pageStepCmd(1)())
	assert.Equal(t, 2, m.reader.Page())

	m, _ = update(t, m, m.pageStepCmd(1)())
	assert.Equal(t, 2, m.reader.Page())
	assert.Contains(t, m.status, "out of range")
}

func TestResetErrorsAreSilent(t *testing.T) {
	m := newTestModel()
	before := m.status

	m, _ = update(t, m, chatDoneMsg{panel: panelReader, err: domain.ErrConversationReset})
	m, _ = update(t, m, sessionReadyMsg{err: fmt.Errorf("%w: %w", domain.ErrSessionCreation, domain.ErrConversationReset)})

	assert.Equal(t, before, m.status)
	assert.Empty(t, m.reader.Conversation().Messages())
}

func TestRenderChat_ShowsSessionTitle(t *testing.T) {
	m := newTestModel()
	conv := m.reader.Conversation()
	_, err := conv.EnsureSession(context.Background())
	require.NoError(t, err)

	assert.Contains(t, renderChat(conv, 40), "Quarterly report")
}
