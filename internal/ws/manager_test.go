package ws

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	written  []any
	controls []int
	closed   bool
	fail     bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.written = append(f.written, v)
	return nil
}

func (f *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, messageType)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestManagerTracksConnections(t *testing.T) {
	m := NewManager(nil)

	a := m.Connect("u1", &fakeConn{})
	b := m.Connect("u1", &fakeConn{})
	c := m.Connect("u2", &fakeConn{})

	require.Equal(t, 3, m.Count())
	require.Equal(t, 2, m.UserConnections("u1"))
	require.NotEqual(t, a.ID, b.ID)

	m.Disconnect(a)
	m.Disconnect(a)
	require.Equal(t, 2, m.Count())
	require.Equal(t, 1, m.UserConnections("u1"))

	m.Disconnect(b)
	m.Disconnect(c)
	m.Disconnect(nil)
	require.Zero(t, m.Count())
	require.Zero(t, m.UserConnections("u1"))
}

func TestManagerSendToUser(t *testing.T) {
	m := NewManager(nil)

	ok := &fakeConn{}
	broken := &fakeConn{fail: true}
	m.Connect("u1", ok)
	m.Connect("u1", broken)
	m.Connect("u2", &fakeConn{})

	sent := m.SendToUser("u1", map[string]string{"type": "notice"})
	require.Equal(t, 1, sent)
	require.Len(t, ok.written, 1)
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := NewManager(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := m.Connect("u1", &fakeConn{})
			_ = m.Count()
			m.Disconnect(client)
		}()
	}
	wg.Wait()

	require.Zero(t, m.Count())
}

func TestCloseAllSendsCloseFrame(t *testing.T) {
	m := NewManager(nil)
	conn := &fakeConn{}
	m.Connect("u1", conn)

	m.CloseAll()

	require.True(t, conn.closed)
	require.Equal(t, []int{websocket.CloseMessage}, conn.controls)
	require.Zero(t, m.Count())
}
