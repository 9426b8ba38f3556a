package rcon

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeServer answers every request with the words returned by respond and
// can push events to the connected client.
type fakeServer struct {
	ln      net.Listener
	respond func(words []string) []string

	mu       sync.Mutex
	conn     net.Conn
	requests [][]string
	acks     chan Packet
}

func newFakeServer(t *testing.T, respond func([]string) []string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln, respond: respond, acks: make(chan Packet, 8)}
	go s.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.mu.Unlock()
	})
	return s
}

func (s *fakeServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		p, err := ReadPacket(conn)
		if err != nil {
			return
		}
		if p.IsResponse {
			s.acks <- p
			continue
		}
		s.mu.Lock()
		s.requests = append(s.requests, p.Words)
		s.mu.Unlock()

		data, _ := Packet{Sequence: p.Sequence, FromClient: true, IsResponse: true, Words: s.respond(p.Words)}.MarshalBinary()
		_, _ = conn.Write(data)
	}
}

func (s *fakeServer) push(t *testing.T, seq uint32, words ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	}, time.Second, 10*time.Millisecond)

	data, err := Packet{Sequence: seq, Words: words}.MarshalBinary()
	require.NoError(t, err)
	s.mu.Lock()
	_, err = s.conn.Write(data)
	s.mu.Unlock()
	require.NoError(t, err)
}

func alwaysOK(words []string) []string { return []string{"OK"} }

func TestSendMessageWithoutOpen(t *testing.T) {
	c := NewClient(nil)
	require.False(t, c.IsOpen())

	_, err := c.SendMessage(context.Background(), "serverInfo")
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestLoginAndRequest(t *testing.T) {
	srv := newFakeServer(t, func(words []string) []string {
		if words[0] == "serverInfo" {
			return []string{"OK", "My Server", "3", "64"}
		}
		return []string{"OK"}
	})

	c := NewClient(nil)
	require.NoError(t, c.Open(context.Background(), srv.ln.Addr().String()))
	defer c.Close()
	require.True(t, c.IsOpen())

	require.NoError(t, c.Login(context.Background(), "secret"))

	words, err := c.SendMessage(context.Background(), "serverInfo")
	require.NoError(t, err)
	require.Equal(t, []string{"OK", "My Server", "3", "64"}, words)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Equal(t, []string{"login.plainText", "secret"}, srv.requests[0])
}

func TestRejectedRequestReturnsRequestError(t *testing.T) {
	srv := newFakeServer(t, func(words []string) []string {
		return []string{"InvalidArguments"}
	})

	c := NewClient(nil)
	require.NoError(t, c.Open(context.Background(), srv.ln.Addr().String()))
	defer c.Close()

	words, err := c.SendMessage(context.Background(), "admin.kickPlayer")
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, "InvalidArguments", reqErr.Status)
	require.Equal(t, []string{"InvalidArguments"}, words)
}

func TestEventsAreAcknowledgedAndDelivered(t *testing.T) {
	srv := newFakeServer(t, alwaysOK)

	events := make(chan []string, 1)
	c := NewClient(func(words []string) { events <- words })
	require.NoError(t, c.Open(context.Background(), srv.ln.Addr().String()))
	defer c.Close()

	srv.push(t, 3, "player.onJoin", "Soldier", "guid")

	select {
	case words := <-events:
		require.Equal(t, []string{"player.onJoin", "Soldier", "guid"}, words)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}

	select {
	case ack := <-srv.acks:
		require.Equal(t, uint32(3), ack.Sequence)
		require.Equal(t, []string{"OK"}, ack.Words)
	case <-time.After(time.Second):
		t.Fatal("event was not acknowledged")
	}
}

func TestCloseFailsPendingAndAllowsReopen(t *testing.T) {
	srv := newFakeServer(t, alwaysOK)

	c := NewClient(nil)
	require.NoError(t, c.Open(context.Background(), srv.ln.Addr().String()))
	require.NoError(t, c.Close())
	require.False(t, c.IsOpen())
	require.NoError(t, c.Close())

	_, err := c.SendMessage(context.Background(), "serverInfo")
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestServerDisconnectClosesClient(t *testing.T) {
	srv := newFakeServer(t, alwaysOK)

	c := NewClient(nil)
	require.NoError(t, c.Open(context.Background(), srv.ln.Addr().String()))

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.conn != nil
	}, time.Second, 10*time.Millisecond)
	srv.mu.Lock()
	_ = srv.conn.Close()
	srv.mu.Unlock()

	require.Eventually(t, func() bool { return !c.IsOpen() }, time.Second, 10*time.Millisecond)
}

func TestOpenFailsWhenNothingListens(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := NewClient(nil)
	require.Error(t, c.Open(context.Background(), addr))
	require.False(t, c.IsOpen())
}
