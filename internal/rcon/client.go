package rcon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

// EventHandler receives the words of a server-originated packet. It runs on
// the connection's read goroutine and must not block.
type EventHandler func(words []string)

// Client is a Frostbite remote administration client. A Client can be
// opened again after Close.
type Client struct {
	onEvent     EventHandler
	dialTimeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	done    chan struct{}
	pending map[uint32]chan Packet
	nextSeq uint32

	writeMu sync.Mutex
}

// NewClient creates a client that forwards push notifications to onEvent.
func NewClient(onEvent EventHandler) *Client {
	return &Client{
		onEvent:     onEvent,
		dialTimeout: 10 * time.Second,
		pending:     make(map[uint32]chan Packet),
	}
}

// Open connects to the remote administration port at addr.
func (c *Client) Open(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("rcon connection already open")
	}
	done := make(chan struct{})
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	return nil
}

// IsOpen reports whether the connection is usable.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close drops the connection. Requests in flight fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.conn = nil
	close(c.done)
	c.mu.Unlock()

	return conn.Close()
}

// SendMessage sends words as one request and waits for the response. A
// response whose status is not OK is returned together with a *RequestError.
func (c *Client) SendMessage(ctx context.Context, words ...string) ([]string, error) {
	if len(words) == 0 {
		return nil, errors.New("rcon request has no words")
	}

	c.mu.Lock()
	conn, done := c.conn, c.done
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotOpen
	}
	seq := c.nextSeq & sequenceMask
	c.nextSeq++
	reply := make(chan Packet, 1)
	c.pending[seq] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
	}()

	if err := c.write(conn, Packet{Sequence: seq, FromClient: true, Words: words}); err != nil {
		return nil, err
	}

	select {
	case resp := <-reply:
		if resp.Status() != "OK" {
			return resp.Words, &RequestError{Status: resp.Status(), Words: resp.Words}
		}
		return resp.Words, nil
	case <-done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Login authenticates with a plain-text password.
func (c *Client) Login(ctx context.Context, password string) error {
	_, err := c.SendMessage(ctx, "login.plainText", password)
	return err
}

// EnableEvents asks the server to push event notifications on this connection.
func (c *Client) EnableEvents(ctx context.Context) error {
	_, err := c.SendMessage(ctx, "admin.eventsEnabled", "true")
	return err
}

func (c *Client) write(conn net.Conn, p Packet) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to write rcon packet: %w", err)
	}
	return nil
}

func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer c.teardown(conn, done)

	for {
		p, err := ReadPacket(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				select {
				case <-done:
				default:
					log.Printf("[RCON] Read failed: %v", err)
				}
			}
			return
		}

		if p.IsResponse {
			c.mu.Lock()
			reply, ok := c.pending[p.Sequence]
			c.mu.Unlock()
			if ok {
				select {
				case reply <- p:
				default:
				}
			}
			continue
		}

		// Server-originated packets expect an OK acknowledgement.
		ack := Packet{Sequence: p.Sequence, FromClient: p.FromClient, IsResponse: true, Words: []string{"OK"}}
		if err := c.write(conn, ack); err != nil {
			log.Printf("[RCON] Failed to acknowledge event: %v", err)
		}

		if c.onEvent != nil && len(p.Words) > 0 {
			c.onEvent(p.Words)
		}
	}
}

func (c *Client) teardown(conn net.Conn, done chan struct{}) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		close(done)
	}
	c.mu.Unlock()
	_ = conn.Close()
}
