package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/domain"
)

func newTestServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second, SearchCacheTTL: time.Minute}, nil)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestCreateSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"session_id": "abc", "title": "New chat"})
	})
	c := newTestServer(t, mux)

	s, err := c.CreateSession(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.Session{ID: "abc", Title: "New chat"}, s)
}

func TestSend_RegionContextOnWire(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/sessions/abc/messages", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, map[string]any{
			"reply":   "It is a bar chart.",
			"sources": []map[string]any{{"type": "local_search", "title": "report.pdf", "page": 3}},
		})
	})
	c := newTestServer(t, mux)

	reply, err := c.Send(context.Background(), domain.OutboundMessage{
		SessionID: "abc",
		Text:      "explain",
		Annotation: &domain.Annotation{
			Label: "Chart",
			Box:   domain.BoundingBox{X0: 1.2, Y0: 2.5, X1: 30.6, Y1: 40},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "explain", body["message"])
	assert.Equal(t, `[Region: "Chart" at (1,3)-(31,40)]`, body["selected_region_context"])
	assert.Equal(t, "It is a bar chart.", reply.Text)
	require.Len(t, reply.Sources, 1)
	assert.Equal(t, domain.Source{Type: "local_search", Title: "report.pdf", Page: 3}, reply.Sources[0])
}

func TestSend_OmitsEmptyRegionContext(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, map[string]any{"reply": "hi", "sources": []any{}})
	})
	c := newTestServer(t, mux)

	_, err := c.SendStateless(context.Background(), domain.OutboundMessage{Text: "hello"})

	require.NoError(t, err)
	_, present := body["selected_region_context"]
	assert.False(t, present)
}

func TestSend_RequiresSession(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"}, nil)
	_, err := c.Send(context.Background(), domain.OutboundMessage{Text: "hello"})
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /chat/sessions/abc/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"role": "user", "content": "q", "created_at": "2024-05-01T12:00:00Z"},
			{"role": "assistant", "content": "a", "created_at": "2024-05-01T12:00:05Z"},
		})
	})
	c := newTestServer(t, mux)

	msgs, err := c.History(context.Background(), "abc")

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, domain.RoleAgent, msgs[1].Role)
	assert.Equal(t, "a", msgs[1].Content)
	assert.Equal(t, 2024, msgs[0].CreatedAt.Year())
}

func TestPageRegions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents/7/pages/2/regions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{
			"id": 41, "page_id": 9, "label": "Table",
			"box_x0": 10.5, "box_y0": 20, "box_x1": 110, "box_y1": 220,
			"crop_path": "/data/crops/41.png",
		}})
	})
	c := newTestServer(t, mux)

	regions, err := c.PageRegions(context.Background(), 7, 2)

	require.NoError(t, err)
	require.Len(t, regions, 1)
	r := regions[0]
	assert.Equal(t, 41, r.ID)
	assert.Equal(t, 9, r.PageID)
	assert.Equal(t, domain.BoundingBox{X0: 10.5, Y0: 20, X1: 110, Y1: 220}, r.Box)
	assert.Equal(t, c.CropURL(7, 41), r.CropRef)
	assert.Contains(t, r.CropRef, "/render/crop/7/41")
}

func TestDocuments(t *testing.T) {
	doc := map[string]any{
		"id": 3, "filename": "report.pdf", "total_pages": 2,
		"pages": []map[string]any{{"id": 30, "page_num": 1, "has_image": true}, {"id": 31, "page_num": 2}},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{doc})
	})
	mux.HandleFunc("GET /documents/3", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, doc)
	})
	c := newTestServer(t, mux)

	docs, err := c.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "report.pdf", docs[0].Filename)

	d, err := c.Document(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalPages)
	assert.Equal(t, 31, d.PageID(2))
	assert.True(t, d.Pages[0].HasImage)
}

func TestSearch_CachesIdenticalQueries(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "solar", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("top_k"))
		assert.Equal(t, "keyword", r.URL.Query().Get("mode"))
		writeJSON(w, map[string]any{
			"query": "solar",
			"results": []map[string]any{
				{"document_id": 1, "document_title": "a.pdf", "page_id": 10, "page_num": 1, "result_type": "text", "snippet": "s", "score": 0.9},
				{"document_id": 1, "document_title": "a.pdf", "page_id": 11, "page_num": 2, "result_type": "image", "region_id": 5, "snippet": "t", "score": 0.4},
			},
		})
	})
	c := newTestServer(t, mux)
	q := domain.SearchQuery{Text: "solar", TopK: 5, Mode: "keyword"}

	first, err := c.Search(context.Background(), q)
	require.NoError(t, err)
	second, err := c.Search(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, 0, first[0].RegionID)
	assert.Equal(t, 5, first[1].RegionID)
}

func TestStatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents/9", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Document not found"}`, http.StatusNotFound)
	})
	c := newTestServer(t, mux)

	_, err := c.Document(context.Background(), 9)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Contains(t, se.Body, "Document not found")
	assert.Contains(t, err.Error(), "GET /documents/9: 404")
}
