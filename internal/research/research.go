// Package research is the search results surface and its analysis chat.
package research

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"docsearch/internal/analysis"
	"docsearch/internal/conversation"
	"docsearch/internal/domain"
)

// Options configures the search side of the surface.
type Options struct {
	TopK int
	Mode string
}

// Research binds a conversation to the search results and the auto-analysis
// trigger. Its conversation is independent of the reader's.
type Research struct {
	search  domain.SearchBackend
	conv    *conversation.Conversation
	trigger *analysis.Trigger
	opts    Options
	log     *zap.Logger

	mu      sync.Mutex
	seq     uint64
	query   string
	results []domain.SearchResult
	loading bool
	err     error
}

// New returns an empty research surface.
func New(search domain.SearchBackend, conv *conversation.Conversation, trigger *analysis.Trigger, opts Options, log *zap.Logger) *Research {
	if log == nil {
		log = zap.NewNop()
	}
	return &Research{
		search:  search,
		conv:    conv,
		trigger: trigger,
		opts:    opts,
		log:     log.With(zap.String("module", "research")),
	}
}

// Search runs query and replaces the result list. When several searches
// overlap only the most recent one is applied.
func (r *Research) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.query = query
	r.loading = true
	r.err = nil
	r.mu.Unlock()

	results, err := r.search.Search(ctx, domain.SearchQuery{Text: query, TopK: r.opts.TopK, Mode: r.opts.Mode})

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.seq {
		r.log.Debug("dropping stale results", zap.String("query", query))
		return nil
	}
	r.loading = false
	if err != nil {
		r.log.Warn("search failed", zap.String("query", query), zap.Error(err))
		r.results, r.err = nil, err
		return err
	}
	r.results = results
	return nil
}

// Analyze asks the agent to summarize the current results if the trigger
// fires for the current query. It reports whether a request was sent; the
// error is that of the send.
func (r *Research) Analyze(ctx context.Context) (bool, error) {
	r.mu.Lock()
	query, results, loading := r.query, r.results, r.loading
	r.mu.Unlock()

	prompt, ok := r.trigger.Evaluate(query, results, loading)
	if !ok {
		return false, nil
	}
	r.log.Info("auto analysis", zap.String("query", query), zap.Int("results", len(results)))
	return true, r.conv.Send(ctx, prompt, nil)
}

// Ask sends a follow-up question to the research conversation.
func (r *Research) Ask(ctx context.Context, text string) error {
	return r.conv.Send(ctx, text, nil)
}

// Reset clears the research conversation and re-arms the trigger.
func (r *Research) Reset() {
	r.conv.Reset()
	r.trigger.Reset()
}

// Conversation returns the research chat.
func (r *Research) Conversation() *conversation.Conversation { return r.conv }

// State is a consistent copy of the search side.
type State struct {
	Query   string
	Results []domain.SearchResult
	Loading bool
	Err     error
}

// Snapshot returns the current search state.
func (r *Research) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{Query: r.query, Results: r.results, Loading: r.loading, Err: r.err}
}
