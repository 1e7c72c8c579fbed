package domain

import "context"

// SessionCreator establishes a new backend conversation identity.
type SessionCreator interface {
	CreateSession(ctx context.Context) (Session, error)
}

// ChatBackend exposes the conversation contracts of the agent API.
type ChatBackend interface {
	SessionCreator
	History(ctx context.Context, sessionID string) ([]Message, error)
	Send(ctx context.Context, msg OutboundMessage) (Reply, error)
	// SendStateless answers without persisting a session.
	SendStateless(ctx context.Context, msg OutboundMessage) (Reply, error)
}

// DocumentBackend exposes documents and their detected regions.
type DocumentBackend interface {
	Documents(ctx context.Context) ([]Document, error)
	Document(ctx context.Context, documentID int) (Document, error)
	PageRegions(ctx context.Context, documentID, pageNum int) ([]Region, error)
}

// SearchBackend runs queries against the indexed collection.
type SearchBackend interface {
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)
}
