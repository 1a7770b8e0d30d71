package hub

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/event"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type ClientList map[*Client]bool

// Client is one live channel session. It may or may not have declared an identity.
type Client struct {
	ID          string
	conn        *websocket.Conn
	manager     *Hub
	egress      chan event.WsEvent
	connectedAt time.Time

	identity   string
	identityMu sync.RWMutex

	// cancel or stop goroutine
	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool
	closedMu       sync.RWMutex
}

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	pongWait           = 60 * time.Second       // time allowed to read the next pong message from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxMessageSize     = 64 * 1024              // max inbound message size (64KB)
	sendBufSize        = 256                    // per-connection outbound buffer size
	workerPoolSize     = 16                     // number of workers to process inbound sends
	sendTimeout        = 2 * time.Second        // timeout for enqueuing outbound messages
	kickOnFull         = true                   // when true, disconnect client when egress is full
	inboundSendTimeout = 500 * time.Millisecond // timeout for sending to inbound channel
	storeTimeout       = 10 * time.Second       // budget for the durable append behind a live send
)

func newClient(identity string, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(h.ctx)
	return &Client{
		ID:          uuid.New().String(),
		identity:    identity,
		conn:        conn,
		manager:     h,
		egress:      make(chan event.WsEvent, sendBufSize),
		connectedAt: time.Now().UTC(),
		cancel:      cancel,
		ctx:         ctx,
		connClosed:  make(chan struct{}),
	}
}

// RegisterClient attaches a session for conn and starts its pumps. identity may be empty
// when the client will send an identify event later.
func RegisterClient(identity string, conn *websocket.Conn, h *Hub) *Client {
	client := newClient(identity, conn, h)
	h.attach(client)

	go client.ReadMessages()
	go client.WriteMessage()

	h.logger.Info("client registered",
		zap.String("client_id", client.ID),
		zap.String("identity", identity),
	)
	return client
}

// Identity returns the declared identity, or "" before identify.
func (c *Client) Identity() string {
	c.identityMu.RLock()
	defer c.identityMu.RUnlock()
	return c.identity
}

func (c *Client) setIdentity(identity string) {
	c.identityMu.Lock()
	defer c.identityMu.Unlock()
	c.identity = identity
}

func (c *Client) ReadMessages() {
	logger := c.manager.logger.With(zap.String("client_id", c.ID))

	defer func() {
		c.manager.detach(c)
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var ev event.WsEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				logger.Debug("client disconnected")
				return
			}

			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Info("client timed out - closing connection")
				return
			}

			if websocket.IsUnexpectedCloseError(err) {
				logger.Warn("unexpected close", zap.Error(err))
				return
			}

			if _, ok := err.(*websocket.CloseError); ok {
				return
			}

			// A frame that is not a valid envelope does not end the session.
			if isDecodeError(err) {
				c.replyError(event.CodeBadPayload, "frame is not a valid event envelope")
				continue
			}

			logger.Debug("read failed", zap.Error(err))
			return
		}

		// Identify is handled inline so a following send always sees the identity.
		if ev.Event == event.EventIdentify {
			c.manager.handleIdentify(c, ev)
			continue
		}

		select {
		case c.manager.inbound <- inboundMessage{client: c, event: ev}:
			// accepted for processing
		case <-time.After(inboundSendTimeout):
			logger.Warn("inbound send timeout: dropping client")
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingInterval)
	logger := c.manager.logger.With(zap.String("client_id", c.ID))

	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()

		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})

		logger.Debug("write pump exiting")
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev := <-c.egress:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

// Close stops both pumps. The egress channel is never closed, so concurrent SafeSend calls are safe.
func (c *Client) Close() {
	c.once.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.cancel()

		if c.conn == nil {
			return
		}

		// Wait for WriteMessage to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
				c.manager.logger.Warn("safety timeout: force closed connection", zap.String("client_id", c.ID))
			}
		}()
	})
}

// IsClosed returns true if the client has been closed
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// SafeSend attempts to send an event to the client's egress channel.
// Returns true if sent successfully, false if client is closed or timeout.
func (c *Client) SafeSend(ev event.WsEvent, timeout time.Duration) bool {
	if c.IsClosed() {
		return false
	}

	select {
	case <-c.ctx.Done():
		return false
	case c.egress <- ev:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (c *Client) sendEvent(name string, payload any) bool {
	ev, err := event.New(name, payload)
	if err != nil {
		c.manager.logger.Error("failed to encode event", zap.String("event", name), zap.Error(err))
		return false
	}
	return c.SafeSend(ev, sendTimeout)
}

func (c *Client) replyError(code, message string) {
	c.sendEvent(event.EventError, event.Error{Code: code, Message: message})
}
