// Package conversation implements one chat transcript bound to a backend
// session: optimistic sends, fallback replies and guarded history loads.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docsearch/internal/domain"
	"docsearch/internal/session"
)

const (
	// FallbackReply replaces a failed agent answer in the transcript.
	FallbackReply = "Sorry, I couldn't get a response right now. Please try again."
	// SessionFallbackReply is shown when no session could be established.
	SessionFallbackReply = "Couldn't start a conversation with the assistant. Please try again later."
)

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("empty message")

// Options configures a Conversation.
type Options struct {
	// Name tags log lines, e.g. "reader" or "research".
	Name string
	// Stateless sends without a persisted session.
	Stateless bool
	// OnChange is called after every transcript or pending-flag change, never
	// while internal locks are held.
	OnChange func()
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Conversation is an ordered exchange bound to one session identity. Each
// surface owns its own Conversation; they never share state.
type Conversation struct {
	backend  domain.ChatBackend
	sessions *session.Coordinator
	store    *Store
	log      *zap.Logger
	opts     Options

	mu      sync.Mutex
	epoch   uint64
	pending bool
}

// New builds a conversation over backend.
func New(backend domain.ChatBackend, log *zap.Logger, opts Options) *Conversation {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log = log.With(zap.String("module", "conversation"), zap.String("surface", opts.Name))
	return &Conversation{
		backend:  backend,
		sessions: session.NewCoordinator(backend, log),
		store:    NewStore(),
		log:      log,
		opts:     opts,
	}
}

// Send appends text as a user message right away, asks the agent and appends
// its reply. On failure a fixed fallback reply is appended instead and the
// returned error wraps domain.ErrSessionCreation or domain.ErrMessageSend.
// If the conversation is reset before the message goes out, nothing is sent
// and the error wraps domain.ErrConversationReset. Pending is cleared on every
// return path.
//
// Callers should not call Send while Pending is true.
func (c *Conversation) Send(ctx context.Context, text string, annotation *domain.Annotation) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	out := domain.OutboundMessage{Text: text, Annotation: annotation}

	user := domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleUser,
		Content:   out.Content(),
		CreatedAt: c.opts.Now(),
		Status:    domain.StatusPending,
	}

	c.mu.Lock()
	epoch := c.epoch
	gen := c.sessions.Generation()
	c.pending = true
	c.store.Append(user)
	c.mu.Unlock()
	defer c.release(epoch)
	c.changed()

	if !c.opts.Stateless {
		id, err := c.sessions.EnsureFor(ctx, gen)
		if err != nil {
			c.resolve(epoch, user, domain.StatusFailed, c.agentMessage(SessionFallbackReply, nil))
			return err
		}
		out.SessionID = id
	}
	if !c.current(epoch) {
		c.log.Debug("conversation reset before send, not sending")
		return domain.ErrConversationReset
	}

	var (
		reply domain.Reply
		err   error
	)
	if c.opts.Stateless {
		reply, err = c.backend.SendStateless(ctx, out)
	} else {
		reply, err = c.backend.Send(ctx, out)
	}
	if err != nil {
		c.log.Warn("send failed", zap.Error(err), zap.String("session_id", out.SessionID))
		c.resolve(epoch, user, domain.StatusFailed, c.agentMessage(FallbackReply, nil))
		return fmt.Errorf("%w: %v", domain.ErrMessageSend, err)
	}
	c.resolve(epoch, user, domain.StatusDelivered, c.agentMessage(reply.Text, reply.Sources))
	return nil
}

// resolve confirms or fails the tentative user entry and appends the agent
// entry, unless the conversation was reset since the send started.
func (c *Conversation) resolve(epoch uint64, user domain.Message, status domain.MessageStatus, agent domain.Message) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.log.Debug("dropping reply for reset conversation")
		return
	}
	user.Status = status
	if !c.store.Replace(user.ID, user) {
		// A history load replaced the transcript meanwhile; keep the pair.
		c.store.Append(user)
	}
	c.store.Append(agent)
	c.mu.Unlock()
	c.changed()
}

func (c *Conversation) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

func (c *Conversation) release(epoch uint64) {
	c.mu.Lock()
	if c.epoch == epoch {
		c.pending = false
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Conversation) agentMessage(text string, sources []domain.Source) domain.Message {
	return domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleAgent,
		Content:   text,
		CreatedAt: c.opts.Now(),
		Status:    domain.StatusDelivered,
		Sources:   sources,
	}
}

// Append adds a message without contacting the backend.
func (c *Conversation) Append(msg domain.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = c.opts.Now()
	}
	if msg.Status == "" {
		msg.Status = domain.StatusDelivered
	}
	c.store.Append(msg)
	c.changed()
}

// LoadHistory replaces the transcript with the session's stored history. It
// does nothing when there is no session yet, and a result that arrives after
// the conversation was reset is ignored. Failures leave the transcript as is
// and are only logged.
func (c *Conversation) LoadHistory(ctx context.Context) error {
	if c.opts.Stateless {
		return nil
	}
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	id := c.sessions.ID()
	if id == "" {
		return nil
	}
	msgs, err := c.backend.History(ctx, id)
	if err != nil {
		c.log.Info("history unavailable", zap.String("session_id", id),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrHistoryLoad, err)))
		return nil
	}
	c.mu.Lock()
	if c.epoch != epoch || c.sessions.ID() != id {
		c.mu.Unlock()
		c.log.Debug("dropping stale history", zap.String("session_id", id))
		return nil
	}
	for i := range msgs {
		if msgs[i].ID == "" {
			msgs[i].ID = uuid.NewString()
		}
		if msgs[i].Status == "" {
			msgs[i].Status = domain.StatusDelivered
		}
	}
	c.store.ReplaceAll(msgs)
	c.mu.Unlock()
	c.changed()
	return nil
}

// Reset starts a fresh conversation: the session id, transcript and pending
// flag are cleared and replies still in flight are dropped on arrival.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.epoch++
	c.pending = false
	c.sessions.Reset()
	c.store.ReplaceAll(nil)
	c.mu.Unlock()
	c.changed()
	c.log.Debug("conversation reset")
}

// Messages returns the transcript in append order.
func (c *Conversation) Messages() []domain.Message { return c.store.Snapshot() }

// Pending reports whether a send is awaiting its reply.
func (c *Conversation) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// SessionID returns the backend session id, or "" when none is assigned.
func (c *Conversation) SessionID() string { return c.sessions.ID() }

// Title returns the backend-assigned title of the session, if any.
func (c *Conversation) Title() string { return c.sessions.Title() }

// EnsureSession resolves the session without sending anything.
func (c *Conversation) EnsureSession(ctx context.Context) (string, error) {
	if c.opts.Stateless {
		return "", nil
	}
	return c.sessions.Ensure(ctx)
}

func (c *Conversation) changed() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}
