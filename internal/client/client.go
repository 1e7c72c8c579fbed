// Package client talks to the document search API over HTTP/JSON.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"docsearch/internal/domain"
)

// Client implements the chat, document and search backends.
type Client struct {
	baseURL string
	client  *http.Client
	search  *cache.Cache
	log     *zap.Logger
}

// Config configures the API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// SearchCacheTTL keeps identical search responses for this long. Zero
	// disables the cache.
	SearchCacheTTL time.Duration
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, http.StatusText(e.Status), e.Body)
}

// New creates a client for the API at cfg.BaseURL.
func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.With(zap.String("module", "client")),
	}
	if cfg.SearchCacheTTL > 0 {
		c.search = cache.New(cfg.SearchCacheTTL, 2*cfg.SearchCacheTTL)
	}
	return c
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

// CreateSession opens a new persisted conversation.
func (c *Client) CreateSession(ctx context.Context) (domain.Session, error) {
	var out sessionResponse
	if err := c.do(ctx, http.MethodPost, "/chat/sessions", nil, &out); err != nil {
		return domain.Session{}, err
	}
	return domain.Session{ID: out.SessionID, Title: out.Title}, nil
}

type historyMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// History returns the stored messages of a session in order.
func (c *Client) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var out []historyMessage
	path := "/chat/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(out))
	for _, m := range out {
		role := domain.RoleAgent
		if m.Role == string(domain.RoleUser) {
			role = domain.RoleUser
		}
		msgs = append(msgs, domain.Message{Role: role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return msgs, nil
}

type chatRequest struct {
	Message               string  `json:"message"`
	SelectedRegionContext *string `json:"selected_region_context,omitempty"`
}

type chatResponse struct {
	Reply   string       `json:"reply"`
	Sources []chatSource `json:"sources"`
}

type chatSource struct {
	Type  string `json:"type"`
	Query string `json:"query"`
	Title string `json:"title"`
	Page  int    `json:"page"`
}

// Send posts a message to an existing session.
func (c *Client) Send(ctx context.Context, msg domain.OutboundMessage) (domain.Reply, error) {
	if msg.SessionID == "" {
		return domain.Reply{}, fmt.Errorf("send: missing session id")
	}
	return c.chat(ctx, "/chat/sessions/"+url.PathEscape(msg.SessionID)+"/messages", msg)
}

// SendStateless asks the agent without a persisted session.
func (c *Client) SendStateless(ctx context.Context, msg domain.OutboundMessage) (domain.Reply, error) {
	return c.chat(ctx, "/chat", msg)
}

func (c *Client) chat(ctx context.Context, path string, msg domain.OutboundMessage) (domain.Reply, error) {
	req := chatRequest{Message: msg.Text}
	if msg.Annotation != nil {
		s := msg.Annotation.String()
		req.SelectedRegionContext = &s
	}
	var out chatResponse
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return domain.Reply{}, err
	}
	reply := domain.Reply{Text: out.Reply}
	for _, s := range out.Sources {
		reply.Sources = append(reply.Sources, domain.Source{Type: s.Type, Query: s.Query, Title: s.Title, Page: s.Page})
	}
	return reply, nil
}

type regionResponse struct {
	ID       int     `json:"id"`
	PageID   int     `json:"page_id"`
	Label    string  `json:"label"`
	BoxX0    float64 `json:"box_x0"`
	BoxY0    float64 `json:"box_y0"`
	BoxX1    float64 `json:"box_x1"`
	BoxY1    float64 `json:"box_y1"`
	CropPath *string `json:"crop_path"`
}

// PageRegions lists the detected regions of one page.
func (c *Client) PageRegions(ctx context.Context, documentID, pageNum int) ([]domain.Region, error) {
	var out []regionResponse
	path := fmt.Sprintf("/documents/%d/pages/%d/regions", documentID, pageNum)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	regions := make([]domain.Region, 0, len(out))
	for _, r := range out {
		regions = append(regions, domain.Region{
			ID:      r.ID,
			PageID:  r.PageID,
			Label:   r.Label,
			Box:     domain.BoundingBox{X0: r.BoxX0, Y0: r.BoxY0, X1: r.BoxX1, Y1: r.BoxY1},
			CropRef: c.CropURL(documentID, r.ID),
		})
	}
	return regions, nil
}

// CropURL is where the backend serves the cropped image of a region.
func (c *Client) CropURL(documentID, regionID int) string {
	return fmt.Sprintf("%s/render/crop/%d/%d", c.baseURL, documentID, regionID)
}

type documentResponse struct {
	ID         int    `json:"id"`
	Filename   string `json:"filename"`
	TotalPages int    `json:"total_pages"`
	Pages      []struct {
		ID       int  `json:"id"`
		PageNum  int  `json:"page_num"`
		HasImage bool `json:"has_image"`
	} `json:"pages"`
}

func (d documentResponse) toDomain() domain.Document {
	doc := domain.Document{ID: d.ID, Filename: d.Filename, TotalPages: d.TotalPages}
	for _, p := range d.Pages {
		doc.Pages = append(doc.Pages, domain.Page{ID: p.ID, Num: p.PageNum, HasImage: p.HasImage})
	}
	return doc
}

// Documents lists all indexed documents, newest first.
func (c *Client) Documents(ctx context.Context) ([]domain.Document, error) {
	var out []documentResponse
	if err := c.do(ctx, http.MethodGet, "/documents", nil, &out); err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(out))
	for _, d := range out {
		docs = append(docs, d.toDomain())
	}
	return docs, nil
}

// Document returns one document with its page list.
func (c *Client) Document(ctx context.Context, documentID int) (domain.Document, error) {
	var out documentResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/documents/%d", documentID), nil, &out); err != nil {
		return domain.Document{}, err
	}
	return out.toDomain(), nil
}

type searchResponse struct {
	Query   string `json:"query"`
	Results []struct {
		DocumentID    int     `json:"document_id"`
		DocumentTitle string  `json:"document_title"`
		PageID        int     `json:"page_id"`
		PageNum       int     `json:"page_num"`
		ResultType    string  `json:"result_type"`
		RegionID      *int    `json:"region_id"`
		Snippet       string  `json:"snippet"`
		Score         float64 `json:"score"`
	} `json:"results"`
}

// Search runs a hybrid search. Identical queries within the cache TTL are
// served from memory.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", q.Text)
	if q.TopK > 0 {
		params.Set("top_k", strconv.Itoa(q.TopK))
	}
	if q.Mode != "" {
		params.Set("mode", q.Mode)
	}
	key := params.Encode()
	if c.search != nil {
		if v, ok := c.search.Get(key); ok {
			c.log.Debug("search cache hit", zap.String("query", q.Text))
			return v.([]domain.SearchResult), nil
		}
	}
	var out searchResponse
	if err := c.do(ctx, http.MethodGet, "/search?"+key, nil, &out); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(out.Results))
	for _, r := range out.Results {
		res := domain.SearchResult{
			DocumentID:    r.DocumentID,
			DocumentTitle: r.DocumentTitle,
			PageID:        r.PageID,
			PageNum:       r.PageNum,
			ResultType:    r.ResultType,
			Snippet:       r.Snippet,
			Score:         r.Score,
		}
		if r.RegionID != nil {
			res.RegionID = *r.RegionID
		}
		results = append(results, res)
	}
	if c.search != nil {
		c.search.SetDefault(key, results)
	}
	return results, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("request", zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
