package domain

import (
	"fmt"
	"math"
	"time"
)

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// MessageStatus tracks the two-phase write of an optimistic user entry.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
)

// Message is a single transcript entry. Values are never mutated after they
// are appended; a status change replaces the entry.
type Message struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
	Status    MessageStatus
	Sources   []Source
}

// Source is a reference the agent used to build a reply.
type Source struct {
	Type  string
	Query string
	Title string
	Page  int
}

// BoundingBox is a rectangle in original page pixel space.
type BoundingBox struct {
	X0, Y0, X1, Y1 float64
}

// Width returns the horizontal extent of the box.
func (b BoundingBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent of the box.
func (b BoundingBox) Height() float64 { return b.Y1 - b.Y0 }

// Region is a detected rectangular sub-area of a page.
type Region struct {
	ID      int
	PageID  int
	Label   string
	Box     BoundingBox
	CropRef string
}

// Annotation describes a selected region attached to one outgoing message.
type Annotation struct {
	RegionID int
	Label    string
	Box      BoundingBox
}

// String renders the bracketed form sent to the agent, with corners rounded
// to the nearest integer. The label is quoted with Go escaping so quotes in
// it cannot end the bracket early.
func (a Annotation) String() string {
	return fmt.Sprintf("[Region: %q at (%d,%d)-(%d,%d)]",
		a.Label,
		int(math.Round(a.Box.X0)), int(math.Round(a.Box.Y0)),
		int(math.Round(a.Box.X1)), int(math.Round(a.Box.Y1)),
	)
}

// OutboundMessage is the request side of a send. The annotation stays typed
// until the wire layer stringifies it.
type OutboundMessage struct {
	SessionID  string
	Text       string
	Annotation *Annotation
}

// Content is the text shown in the transcript: the raw text with the
// annotation on a line beneath it.
func (m OutboundMessage) Content() string {
	if m.Annotation == nil {
		return m.Text
	}
	return m.Text + "\n\n" + m.Annotation.String()
}

// Reply is the agent's answer to a send.
type Reply struct {
	Text    string
	Sources []Source
}

// Session is the backend identity correlating a conversation's history.
type Session struct {
	ID    string
	Title string
}

// SearchResult is one hit of the hybrid search.
type SearchResult struct {
	DocumentID    int
	DocumentTitle string
	PageID        int
	PageNum       int
	ResultType    string
	RegionID      int
	Snippet       string
	Score         float64
}

// SearchQuery selects what the backend should search for.
type SearchQuery struct {
	Text string
	TopK int
	Mode string
}

// Document is an indexed PDF.
type Document struct {
	ID         int
	Filename   string
	TotalPages int
	Pages      []Page
}

// Page summarizes one page of a document.
type Page struct {
	ID       int
	Num      int
	HasImage bool
}

// PageID returns the backend id of page num, or 0 when the page list does
// not include it.
func (d Document) PageID(num int) int {
	for _, p := range d.Pages {
		if p.Num == num {
			return p.ID
		}
	}
	return 0
}
