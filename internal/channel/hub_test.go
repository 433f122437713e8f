package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarfin/be-fund-requests/internal/logger"
)

// fakeConn is an in-memory Conn.
type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	failing  bool
	closed   bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("write failed")
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	c.messages = append(c.messages, copied)
	return nil
}

func (c *fakeConn) WriteControl(_ int, _ []byte, _ time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func TestHubPublishReachesAttachedSessions(t *testing.T) {
	hub := NewHub(logger.Nop())

	owner := &fakeConn{}
	approver := &fakeConn{}
	hub.Attach(Subscriber{ID: "owner-1"}, []string{"user:owner-1"}, owner)
	hub.Attach(Subscriber{ID: "budget-1", Roles: []string{"budget"}}, []string{"role:budget"}, approver)

	require.NoError(t, hub.Publish(context.Background(), "user:owner-1", []byte(`{"v":1}`)))

	assert.Equal(t, 1, owner.count())
	assert.Equal(t, 0, approver.count())
}

func TestHubPublishUnknownChannelIsNoop(t *testing.T) {
	hub := NewHub(logger.Nop())
	require.NoError(t, hub.Publish(context.Background(), "user:nobody", []byte("x")))
}

func TestHubRemoveDetachesAndCloses(t *testing.T) {
	hub := NewHub(logger.Nop())

	conn := &fakeConn{}
	session := hub.Attach(Subscriber{ID: "owner-1"}, []string{"user:owner-1"}, conn)
	require.Equal(t, 1, hub.Subscribers("user:owner-1"))

	hub.Remove(session)

	assert.Equal(t, 0, hub.Subscribers("user:owner-1"))
	assert.True(t, conn.closed)

	require.NoError(t, hub.Publish(context.Background(), "user:owner-1", []byte("x")))
	assert.Equal(t, 0, conn.count())
}

func TestHubEvictsFailingConnections(t *testing.T) {
	hub := NewHub(logger.Nop())

	good := &fakeConn{}
	bad := &fakeConn{failing: true}
	hub.Attach(Subscriber{ID: "a"}, []string{"role:budget"}, good)
	hub.Attach(Subscriber{ID: "b"}, []string{"role:budget"}, bad)

	require.NoError(t, hub.Publish(context.Background(), "role:budget", []byte("x")))

	assert.Equal(t, 1, good.count())
	assert.Equal(t, 1, hub.Subscribers("role:budget"))
	assert.True(t, bad.closed)
}

// overlapConn flags any two writes that run at the same time. Websocket
// connections permit a single writer, so overlap is a protocol violation.
type overlapConn struct {
	active  int32
	overlap int32
	writes  int32
}

func (c *overlapConn) WriteMessage(_ int, _ []byte) error {
	if atomic.AddInt32(&c.active, 1) > 1 {
		atomic.StoreInt32(&c.overlap, 1)
	}
	time.Sleep(50 * time.Microsecond)
	atomic.AddInt32(&c.active, -1)
	atomic.AddInt32(&c.writes, 1)
	return nil
}

func (c *overlapConn) WriteControl(_ int, _ []byte, _ time.Time) error {
	if atomic.AddInt32(&c.active, 1) > 1 {
		atomic.StoreInt32(&c.overlap, 1)
	}
	atomic.AddInt32(&c.active, -1)
	return nil
}

func (c *overlapConn) Close() error { return nil }

func TestHubSerializesWritesToOneConnection(t *testing.T) {
	hub := NewHub(logger.Nop())

	conn := &overlapConn{}
	hub.Attach(Subscriber{ID: "budget-1", Roles: []string{"budget"}}, []string{"role:budget"}, conn)

	const publishers = 8
	const perPublisher = 25

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				_ = hub.Publish(context.Background(), "role:budget", []byte(`{"v":1}`))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), atomic.LoadInt32(&conn.overlap))
	assert.Equal(t, int32(publishers*perPublisher), atomic.LoadInt32(&conn.writes))
}

func TestHubMultipleConnectionsPerChannel(t *testing.T) {
	hub := NewHub(logger.Nop())

	first := &fakeConn{}
	second := &fakeConn{}
	hub.Attach(Subscriber{ID: "budget-1", Roles: []string{"budget"}}, []string{"role:budget"}, first)
	hub.Attach(Subscriber{ID: "budget-2", Roles: []string{"budget"}}, []string{"role:budget"}, second)

	require.NoError(t, hub.Publish(context.Background(), "role:budget", []byte("x")))

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())
}
