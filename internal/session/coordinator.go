// Package session resolves a backend conversation identity once per
// conversation generation.
package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"docsearch/internal/domain"
)

// Coordinator memoizes the session id of one conversation. Concurrent Ensure
// calls made before the creation resolves share the single in-flight call.
type Coordinator struct {
	creator domain.SessionCreator
	log     *zap.Logger

	mu    sync.Mutex
	id    string
	title string
	gen   uint64
	group singleflight.Group
}

// NewCoordinator returns a coordinator with no session.
func NewCoordinator(creator domain.SessionCreator, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{creator: creator, log: log.With(zap.String("module", "session"))}
}

// Ensure returns the session id, creating the session on first use. Failures
// are returned wrapped in domain.ErrSessionCreation and are not retried.
func (c *Coordinator) Ensure(ctx context.Context) (string, error) {
	return c.EnsureFor(ctx, c.Generation())
}

// EnsureFor is Ensure on behalf of a caller that started in generation gen.
// After a Reset it neither returns nor creates a session for that caller.
func (c *Coordinator) EnsureFor(ctx context.Context, gen uint64) (string, error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %w", domain.ErrSessionCreation, domain.ErrConversationReset)
	}
	if c.id != "" {
		id := c.id
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	// The creation outlives any single caller's cancellation.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.create(detached, gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) create(ctx context.Context, gen uint64) (string, error) {
	// A previous flight for this generation may have finished between the
	// caller's check and joining the group.
	c.mu.Lock()
	switch {
	case c.gen != gen:
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %w", domain.ErrSessionCreation, domain.ErrConversationReset)
	case c.id != "":
		id := c.id
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	s, err := c.creator.CreateSession(ctx)
	if err == nil && s.ID == "" {
		err = fmt.Errorf("empty session id")
	}
	if err != nil {
		c.log.Warn("session creation failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", domain.ErrSessionCreation, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		c.log.Debug("discarding session from reset generation", zap.String("session_id", s.ID))
		return "", fmt.Errorf("%w: %w", domain.ErrSessionCreation, domain.ErrConversationReset)
	}
	c.id, c.title = s.ID, s.Title
	c.log.Info("session created", zap.String("session_id", s.ID))
	return s.ID, nil
}

// ID returns the current session id, or "" when none is assigned.
func (c *Coordinator) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Title returns the backend-assigned title of the current session.
func (c *Coordinator) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// Generation identifies the current conversation lifetime.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Reset forgets the session. A creation still in flight is discarded when it
// resolves.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.id, c.title = "", ""
	c.gen++
	c.mu.Unlock()
}
