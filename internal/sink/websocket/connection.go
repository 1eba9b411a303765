package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/poppop/racer/pkg/streaming"
)

const (
	outboxSize    = 4096
	ackBuffer     = 16
	maxRedials    = 10
	maxBackoff    = 30 * time.Second
	handshakeWait = 10 * time.Second
	writeWait     = 10 * time.Second
	ackTimeout    = 10 * time.Second
)

// link is one live socket. stop is closed when the socket is retired.
type link struct {
	sock *ws.Conn
	stop chan struct{}
	once sync.Once
}

func (l *link) retire() error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		err = l.sock.Close()
	})
	return err
}

// connection keeps a stream socket alive for the sink. All frames go through
// outbox to a single writer per link. When a link fails the connection
// redials and replays the running race's header and newest snapshot before
// resuming the outbox.
type connection struct {
	logger  *slog.Logger
	backoff time.Duration

	endpoint string
	outbox   chan []byte
	acks     chan streaming.AckMessage
	done     chan struct{}

	mu     sync.Mutex
	live   *link
	closed bool
	header []byte
	latest []byte
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		logger:  logger,
		backoff: time.Second,
		outbox:  make(chan []byte, outboxSize),
		acks:    make(chan streaming.AckMessage, ackBuffer),
		done:    make(chan struct{}),
	}
}

// streamURL adds the shared secret to the endpoint as a query parameter.
func streamURL(raw, secret string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// dial opens the first link. Later links are opened by redial.
func (c *connection) dial(raw, secret string) error {
	endpoint, err := streamURL(raw, secret)
	if err != nil {
		return err
	}
	c.endpoint = endpoint

	sock, err := c.open()
	if err != nil {
		return err
	}
	c.attach(sock)
	return nil
}

func (c *connection) open() (*ws.Conn, error) {
	dialer := ws.Dialer{HandshakeTimeout: handshakeWait}
	sock, _, err := dialer.Dial(c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return sock, nil
}

// attach makes sock the live link and starts its writer and reader. It
// reports false, closing sock, when the connection was shut down meanwhile.
func (c *connection) attach(sock *ws.Conn) bool {
	l := &link{sock: sock, stop: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sock.Close()
		return false
	}
	c.live = l
	c.mu.Unlock()

	go c.pump(l)
	go c.listen(l)
	return true
}

// remember sets the header of the running race. nil ends the race and
// forgets its newest snapshot too.
func (c *connection) remember(header []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header = header
	c.latest = nil
}

// track keeps the newest snapshot of the running race for replay.
func (c *connection) track(snapshot []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.header != nil {
		c.latest = snapshot
	}
}

func write(sock *ws.Conn, data []byte) error {
	if err := sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return sock.WriteMessage(ws.TextMessage, data)
}

// pump is the only writer on l.
func (c *connection) pump(l *link) {
	for {
		select {
		case <-c.done:
			return
		case <-l.stop:
			return
		case data := <-c.outbox:
			select {
			case <-l.stop:
				// picked up after the link was retired; hand it to the next one
				c.send(data)
				return
			default:
			}
			if err := write(l.sock, data); err != nil {
				c.lost(l, err)
				return
			}
		}
	}
}

// listen forwards server acks until l fails.
func (c *connection) listen(l *link) {
	for {
		_, raw, err := l.sock.ReadMessage()
		if err != nil {
			c.lost(l, err)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(raw, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Ignoring stream message", "raw", string(raw))
			continue
		}

		select {
		case c.acks <- ack:
		default:
			c.logger.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// lost retires l and starts a redial. Writer and reader both report the
// failure of a link; the first report wins.
func (c *connection) lost(l *link, cause error) {
	c.mu.Lock()
	if c.closed || c.live != l {
		c.mu.Unlock()
		return
	}
	c.live = nil
	c.mu.Unlock()

	_ = l.retire()
	c.logger.Warn("Stream connection lost", "error", cause)
	go c.redial()
}

func (c *connection) redial() {
	wait := c.backoff
	for attempt := 1; attempt <= maxRedials; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		sock, err := c.open()
		if err == nil {
			err = c.replay(sock)
			if err != nil {
				_ = sock.Close()
			}
		}
		if err != nil {
			c.logger.Warn("Stream redial failed", "attempt", attempt, "backoff", wait, "error", err)
			wait = min(wait*2, maxBackoff)
			continue
		}

		if c.attach(sock) {
			c.logger.Info("Stream reconnected", "attempt", attempt)
		}
		return
	}

	c.logger.Error("Stream redial gave up", "attempts", maxRedials)
}

// replay writes the running race's header and newest snapshot to a fresh
// socket so the viewer can render before the outbox resumes.
func (c *connection) replay(sock *ws.Conn) error {
	c.mu.Lock()
	frames := [][]byte{c.header, c.latest}
	c.mu.Unlock()

	for _, data := range frames {
		if data == nil {
			continue
		}
		if err := write(sock, data); err != nil {
			return fmt.Errorf("replaying race state: %w", err)
		}
	}
	return nil
}

// send hands data to the writer without blocking. A full outbox drops it.
func (c *connection) send(data []byte) bool {
	select {
	case c.outbox <- data:
		return true
	default:
		c.logger.Warn("Stream outbox full, dropping frame")
		return false
	}
}

// sendAndWait sends data and waits for the server to ack the message type.
func (c *connection) sendAndWait(data []byte, kind string, timeout time.Duration) error {
	if !c.send(data) {
		return fmt.Errorf("send queue full for %q", kind)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case ack := <-c.acks:
			if ack.For == kind {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("timeout waiting for ack of %q", kind)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", kind)
		}
	}
}

// close says goodbye on the live link and stops every goroutine. It is safe
// to call more than once.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	l := c.live
	c.live = nil
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	_ = l.sock.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, "race server shutting down"),
		time.Now().Add(time.Second))
	return l.retire()
}
