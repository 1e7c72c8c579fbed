package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/domain"
)

type fakeCreator struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (f *fakeCreator) CreateSession(ctx context.Context) (domain.Session, error) {
	n := f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return domain.Session{}, f.err
	}
	return domain.Session{ID: "s-" + string(rune('0'+n)), Title: "New chat"}, nil
}

func TestEnsure_ConcurrentCallersShareOneCreation(t *testing.T) {
	creator := &fakeCreator{release: make(chan struct{})}
	c := NewCoordinator(creator, nil)

	const n = 16
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = c.Ensure(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return creator.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(creator.release)
	wg.Wait()

	assert.Equal(t, int32(1), creator.calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "s-1", ids[i])
	}
	assert.Equal(t, "s-1", c.ID())
	assert.Equal(t, "New chat", c.Title())
}

func TestEnsure_Memoized(t *testing.T) {
	creator := &fakeCreator{}
	c := NewCoordinator(creator, nil)

	first, err := c.Ensure(context.Background())
	require.NoError(t, err)
	second, err := c.Ensure(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), creator.calls.Load())
}

func TestEnsure_FailureIsNotRetried(t *testing.T) {
	creator := &fakeCreator{err: errors.New("backend down")}
	c := NewCoordinator(creator, nil)

	_, err := c.Ensure(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSessionCreation)
	assert.Equal(t, int32(1), creator.calls.Load())
	assert.Empty(t, c.ID())
}

func TestEnsure_CallerCancellationDoesNotAbortCreation(t *testing.T) {
	creator := &fakeCreator{release: make(chan struct{})}
	c := NewCoordinator(creator, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Ensure(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return creator.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(creator.release)
	require.Eventually(t, func() bool { return c.ID() == "s-1" }, time.Second, time.Millisecond)
}

func TestReset_DiscardsInFlightCreation(t *testing.T) {
	creator := &fakeCreator{release: make(chan struct{})}
	c := NewCoordinator(creator, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Ensure(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return creator.calls.Load() == 1 }, time.Second, time.Millisecond)

	c.Reset()
	close(creator.release)

	err := <-done
	assert.ErrorIs(t, err, domain.ErrSessionCreation)
	assert.ErrorIs(t, err, domain.ErrConversationReset)
	assert.Empty(t, c.ID())

	id, err := c.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s-2", id)
	assert.Equal(t, uint64(1), c.Generation())
}

func TestEnsureFor_StaleGenerationCreatesNothing(t *testing.T) {
	creator := &fakeCreator{}
	c := NewCoordinator(creator, nil)
	gen := c.Generation()

	c.Reset()
	_, err := c.EnsureFor(context.Background(), gen)

	assert.ErrorIs(t, err, domain.ErrConversationReset)
	assert.Zero(t, creator.calls.Load())

	id, err := c.EnsureFor(context.Background(), c.Generation())
	require.NoError(t, err)
	assert.Equal(t, "s-1", id)

	c.Reset()
	_, err = c.EnsureFor(context.Background(), gen+1)
	assert.ErrorIs(t, err, domain.ErrConversationReset, "memoized id of an old generation is not handed out")
}
