// Package analysis decides when the research panel asks the agent to
// summarize a result set, and builds the context it sends.
package analysis

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"docsearch/internal/domain"
)

const (
	DefaultTopN         = 5
	DefaultSnippetChars = 200
)

// State is the trigger's position in its two-state machine.
type State int

const (
	Idle State = iota
	Fired
)

func (s State) String() string {
	if s == Fired {
		return "fired"
	}
	return "idle"
}

// Trigger fires one summarization per distinct query. Re-evaluating with the
// same query, for example after the result list is rebuilt, does nothing.
type Trigger struct {
	topN         int
	snippetChars int

	mu        sync.Mutex
	state     State
	lastQuery string
}

// NewTrigger returns an idle trigger. Non-positive limits fall back to the
// defaults.
func NewTrigger(topN, snippetChars int) *Trigger {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if snippetChars <= 0 {
		snippetChars = DefaultSnippetChars
	}
	return &Trigger{topN: topN, snippetChars: snippetChars}
}

// Evaluate moves the machine to Fired(query) and returns the summarization
// prompt when results are present, nothing is loading and query is a new
// non-empty value. Otherwise it returns false and the state is unchanged.
func (t *Trigger) Evaluate(query string, results []domain.SearchResult, loading bool) (string, bool) {
	q := strings.TrimSpace(query)
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(results) == 0 || loading || q == "" || q == t.lastQuery {
		return "", false
	}
	t.state, t.lastQuery = Fired, q
	return Prompt(q, Digest(results, t.topN, t.snippetChars)), true
}

// State returns the current state and the query it fired for.
func (t *Trigger) State() (State, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.lastQuery
}

// Reset returns the trigger to Idle so the next query fires even if it
// repeats the previous one.
func (t *Trigger) Reset() {
	t.mu.Lock()
	t.state, t.lastQuery = Idle, ""
	t.mu.Unlock()
}

// Digest renders the top n results, one entry per line, each reduced to
// title, page, type and a snippet of at most snippetChars runes.
func Digest(results []domain.SearchResult, n, snippetChars int) string {
	if n > len(results) {
		n = len(results)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		r := results[i]
		fmt.Fprintf(&b, "%d. %s (page %d, %s): %s\n",
			i+1, r.DocumentTitle, r.PageNum, r.ResultType, Truncate(r.Snippet, snippetChars))
	}
	return b.String()
}

// Prompt wraps a digest in the summarization request sent to the agent.
func Prompt(query, digest string) string {
	return fmt.Sprintf("Summarize what the indexed documents say about %q, "+
		"based on these top search results. Point out which documents and pages are most relevant.\n\n%s",
		query, digest)
}

// Truncate shortens s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
