package outbound

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/corkcrm/michael-mail-2/internal/gmail"
	"github.com/corkcrm/michael-mail-2/internal/gmail/gmailfake"
	"github.com/corkcrm/michael-mail-2/internal/logging"
	"github.com/corkcrm/michael-mail-2/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticAuth hands every call the same token.
type staticAuth struct{}

func (staticAuth) Do(_ context.Context, _ string, fn func(string) error) error {
	return fn("test-token")
}

// gatedAuth blocks each call until release is closed.
type gatedAuth struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedAuth) Do(_ context.Context, _ string, fn func(string) error) error {
	g.started <- struct{}{}
	<-g.release
	return fn("test-token")
}

// stubAPI fails every modify with err and counts calls.
type stubAPI struct {
	gmail.API
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubAPI) ModifyLabels(context.Context, string, string, []string, []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *stubAPI) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func closeQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
}

func TestReadAndStarJobs(t *testing.T) {
	assert.Equal(t, []string{LabelUnread}, ReadJob("u", "g", true).Remove)
	assert.Nil(t, ReadJob("u", "g", true).Add)
	assert.Equal(t, []string{LabelUnread}, ReadJob("u", "g", false).Add)
	assert.Equal(t, []string{LabelStarred}, StarJob("u", "g", true).Add)
	assert.Equal(t, []string{LabelStarred}, StarJob("u", "g", false).Remove)
}

func TestQueueAppliesJobs(t *testing.T) {
	fake := gmailfake.NewServer()
	defer fake.Close()
	fake.AddMessage(gmailfake.MessageSpec{ID: "m1", Labels: []string{"INBOX", "UNREAD"}}.Build())
	fake.AddMessage(gmailfake.MessageSpec{ID: "m2", Labels: []string{"INBOX"}}.Build())

	api := gmail.NewClient(gmail.Options{Endpoint: fake.Endpoint(), Timeout: 5 * time.Second})
	q := NewQueue(Config{Size: 8, Workers: 1, Timeout: 5 * time.Second}, api, staticAuth{}, logging.Discard())

	assert.True(t, q.Enqueue(ReadJob("user-1", "m1", true)))
	assert.True(t, q.Enqueue(StarJob("user-1", "m2", true)))
	closeQueue(t, q)

	assert.Equal(t, Stats{Enqueued: 2, Succeeded: 2}, q.Stats())
	assert.Equal(t, []string{"INBOX"}, fake.Message("m1").LabelIds)
	assert.ElementsMatch(t, []string{"INBOX", "STARRED"}, fake.Message("m2").LabelIds)

	mods := fake.Modifications()
	require.Len(t, mods, 2)
	assert.Equal(t, "m1", mods[0].MessageID)
	assert.Equal(t, []string{"UNREAD"}, mods[0].Remove)
}

func TestQueueFailuresAreCounted(t *testing.T) {
	fake := gmailfake.NewServer()
	defer fake.Close()

	api := gmail.NewClient(gmail.Options{Endpoint: fake.Endpoint(), Timeout: 5 * time.Second})
	q := NewQueue(Config{Size: 8, Workers: 2, Timeout: 5 * time.Second}, api, staticAuth{}, logging.Discard())

	assert.True(t, q.Enqueue(ReadJob("user-1", "missing", true)))
	closeQueue(t, q)

	assert.Equal(t, Stats{Enqueued: 1, Failed: 1}, q.Stats())
}

func TestQueueDropsWhenFull(t *testing.T) {
	auth := &gatedAuth{started: make(chan struct{}, 4), release: make(chan struct{})}
	api := &stubAPI{}
	q := NewQueue(Config{Size: 1, Workers: 1, Timeout: 5 * time.Second}, api, auth, logging.Discard())

	require.True(t, q.Enqueue(ReadJob("user-1", "m1", true)))
	<-auth.started

	assert.True(t, q.Enqueue(ReadJob("user-1", "m2", true)))
	assert.False(t, q.Enqueue(ReadJob("user-1", "m3", true)))

	close(auth.release)
	closeQueue(t, q)

	assert.Equal(t, Stats{Enqueued: 2, Succeeded: 2, Dropped: 1}, q.Stats())
	assert.Equal(t, 2, api.Calls())
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(Config{}, &stubAPI{}, staticAuth{}, logging.Discard())
	closeQueue(t, q)

	assert.False(t, q.Enqueue(StarJob("user-1", "m1", true)))
	assert.Equal(t, int64(1), q.Stats().Dropped)
	assert.ErrorIs(t, q.Close(context.Background()), ErrQueueClosed)
}

func TestQueueCloseInterrupted(t *testing.T) {
	auth := &gatedAuth{started: make(chan struct{}, 1), release: make(chan struct{})}
	q := NewQueue(Config{Size: 4, Workers: 1}, &stubAPI{}, auth, logging.Discard())

	require.True(t, q.Enqueue(ReadJob("user-1", "m1", true)))
	<-auth.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(auth.release)
	}()
	assert.ErrorIs(t, q.Close(ctx), context.Canceled)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	api := &stubAPI{err: &gmail.StatusError{Code: http.StatusServiceUnavailable, Status: "Service Unavailable"}}
	q := NewQueue(Config{Size: 16, Workers: 1, Timeout: 5 * time.Second}, api, staticAuth{}, logging.Discard())

	for i := 0; i < 10; i++ {
		require.True(t, q.Enqueue(StarJob("user-1", "m1", true)))
	}
	closeQueue(t, q)

	assert.Equal(t, 6, api.Calls())
	assert.Equal(t, int64(10), q.Stats().Failed)
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	api := &stubAPI{err: &gmail.StatusError{Code: http.StatusNotFound, Status: "Not Found"}}
	q := NewQueue(Config{Size: 16, Workers: 1, Timeout: 5 * time.Second}, api, staticAuth{}, logging.Discard())

	for i := 0; i < 10; i++ {
		require.True(t, q.Enqueue(StarJob("user-1", "m1", true)))
	}
	closeQueue(t, q)

	assert.Equal(t, 10, api.Calls())
	assert.Equal(t, int64(10), q.Stats().Failed)
}

func TestCountsAsHealthy(t *testing.T) {
	assert.True(t, countsAsHealthy(nil))
	assert.True(t, countsAsHealthy(token.ErrAuthExpired))
	assert.True(t, countsAsHealthy(&gmail.StatusError{Code: http.StatusForbidden}))
	assert.False(t, countsAsHealthy(&gmail.StatusError{Code: http.StatusTooManyRequests}))
	assert.False(t, countsAsHealthy(&gmail.StatusError{Code: http.StatusBadGateway}))
	assert.False(t, countsAsHealthy(context.DeadlineExceeded))
}
