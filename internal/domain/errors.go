package domain

import "errors"

var (
	// ErrSessionCreation means a conversation identity could not be established.
	ErrSessionCreation = errors.New("session creation failed")
	// ErrMessageSend means the backend did not answer a message.
	ErrMessageSend = errors.New("message send failed")
	// ErrRegionFetch means the regions of a page could not be loaded.
	ErrRegionFetch = errors.New("region fetch failed")
	// ErrHistoryLoad means a session transcript could not be loaded.
	ErrHistoryLoad = errors.New("history load failed")
	// ErrConversationReset means the conversation was reset while a call for
	// it was in flight; the call's result is discarded.
	ErrConversationReset = errors.New("conversation was reset")
	// ErrNoDocument is returned by reader operations before a document is open.
	ErrNoDocument = errors.New("no document open")
)
