package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"

	"github.com/anik12136/uiu-pathshala-server/internal/event"
	"github.com/anik12136/uiu-pathshala-server/internal/metrics"
	"github.com/anik12136/uiu-pathshala-server/internal/model"
	"github.com/anik12136/uiu-pathshala-server/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageSender performs the durable append and live push behind a send event.
type MessageSender interface {
	SendMessage(ctx context.Context, in service.AppendInput) (*service.SendResult, error)
}

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

// Hub is the presence broadcaster. It owns the identity -> session mapping for this process.
type Hub struct {
	clients     ClientList
	onlineUsers map[string]*Client
	mu          sync.RWMutex

	rosterChanged chan struct{}
	inbound       chan inboundMessage

	sender   MessageSender
	logger   *zap.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewHub starts the roster loop and the inbound worker pool. allowedOrigins may hold "*".
func NewHub(sender MessageSender, logger *zap.Logger, m *metrics.Metrics, allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:       make(ClientList),
		onlineUsers:   make(map[string]*Client),
		rosterChanged: make(chan struct{}, 1),
		inbound:       make(chan inboundMessage, 4096), // buffer for burst handling
		sender:        sender,
		logger:        logger,
		metrics:       m,
		ctx:           ctx,
		cancel:        cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	h.wg.Add(1)
	go h.run()

	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-h.inbound:
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventSend:
		h.handleSend(c, ev)
	default:
		h.logger.Debug("unknown event type", zap.String("event", ev.Event), zap.String("client_id", c.ID))
		c.replyError(event.CodeUnknownEvent, "unknown event: "+ev.Event)
	}
}

func (h *Hub) handleIdentify(c *Client, ev event.WsEvent) {
	var in event.Identify
	if err := json.Unmarshal(ev.Payload, &in); err != nil {
		c.replyError(event.CodeBadPayload, "identify payload must be {\"identity\": string}")
		return
	}
	if !h.identify(c, in.Identity) {
		c.replyError(event.CodeInvalid, "identity is required")
	}
}

func (h *Hub) handleSend(c *Client, ev event.WsEvent) {
	var in event.Send
	if err := json.Unmarshal(ev.Payload, &in); err != nil {
		c.replyError(event.CodeBadPayload, "send payload is malformed")
		return
	}

	identity := c.Identity()
	if identity == "" {
		c.replyError(event.CodeNotIdentified, "identify before sending")
		return
	}
	if in.Sender != "" && model.NormalizeIdentity(in.Sender) != identity {
		c.replyError(event.CodeInvalid, "sender does not match the session identity")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()

	res, err := h.sender.SendMessage(ctx, service.AppendInput{
		Sender:          identity,
		Recipient:       in.Recipient,
		Text:            in.Text,
		ClientMessageID: in.ClientMessageID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidArgument):
			c.replyError(event.CodeInvalid, err.Error())
		case errors.Is(err, service.ErrNotFound):
			c.replyError(event.CodeNotFound, err.Error())
		default:
			h.logger.Error("live send failed",
				zap.String("client_id", c.ID),
				zap.String("sender", identity),
				zap.Error(err),
			)
			c.replyError(event.CodeInternal, "message could not be stored")
		}
		return
	}

	if res.Delivered || res.Replayed {
		return
	}
	recipient := model.NormalizeIdentity(in.Recipient)
	if h.isOnline(recipient) {
		c.sendEvent(event.EventDeliveryFailed, event.Undelivered(recipient))
		return
	}
	c.sendEvent(event.EventDeliveryFailed, event.Offline(recipient))
}

func (h *Hub) isOnline(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.onlineUsers[identity]
	return ok
}

// NotifyMessage pushes msg to recipient's registered session. It never queues or retries.
func (h *Hub) NotifyMessage(recipient string, msg event.IncomingMessage) bool {
	h.mu.RLock()
	c, ok := h.onlineUsers[model.NormalizeIdentity(recipient)]
	h.mu.RUnlock()

	if !ok {
		h.metrics.RecordDelivery(metrics.DeliveryOffline)
		return false
	}

	if !c.sendEvent(event.EventIncomingMessage, msg) {
		h.metrics.RecordDelivery(metrics.DeliveryDropped)
		h.logger.Warn("live delivery dropped",
			zap.String("recipient", recipient),
			zap.String("client_id", c.ID),
		)
		return false
	}

	h.metrics.RecordDelivery(metrics.DeliveryDelivered)
	return true
}

// Online returns the sorted roster of identities with a registered session.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rosterLocked()
}

func (h *Hub) rosterLocked() []string {
	roster := make([]string, 0, len(h.onlineUsers))
	for identity := range h.onlineUsers {
		roster = append(roster, identity)
	}
	sort.Strings(roster)
	return roster
}

func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	if identity := model.NormalizeIdentity(c.Identity()); identity != "" {
		c.setIdentity(identity)
		h.onlineUsers[identity] = c
	}
	h.mu.Unlock()

	h.presenceChanged()
}

// identify registers c for identity. Last writer wins; a session that switches identity
// releases the previous one if it still holds it.
func (h *Hub) identify(c *Client, identity string) bool {
	identity = model.NormalizeIdentity(identity)
	if identity == "" {
		return false
	}

	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return false
	}
	if prev := c.Identity(); prev != "" && prev != identity && h.onlineUsers[prev] == c {
		delete(h.onlineUsers, prev)
	}
	c.setIdentity(identity)
	h.onlineUsers[identity] = c
	h.mu.Unlock()

	h.logger.Info("identity online", zap.String("identity", identity), zap.String("client_id", c.ID))
	h.presenceChanged()
	return true
}

// detach forgets c. The identity mapping is removed only if c is still the registered session.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)

	removed := false
	identity := c.Identity()
	if identity != "" && h.onlineUsers[identity] == c {
		delete(h.onlineUsers, identity)
		removed = true
	}
	sessions, identities := len(h.clients), len(h.onlineUsers)
	h.mu.Unlock()

	if removed {
		h.logger.Info("identity offline", zap.String("identity", identity), zap.String("client_id", c.ID))
		h.presenceChanged()
		return
	}
	h.metrics.SetPresence(sessions, identities)
}

// presenceChanged schedules a roster broadcast. Pending broadcasts coalesce into one that
// carries the latest roster.
func (h *Hub) presenceChanged() {
	select {
	case h.rosterChanged <- struct{}{}:
	default:
	}
}

func (h *Hub) broadcastRoster() {
	h.mu.RLock()
	roster := h.rosterLocked()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	sessions := len(h.clients)
	h.mu.RUnlock()

	h.metrics.SetPresence(sessions, len(roster))

	ev, err := event.New(event.EventPresenceRoster, event.PresenceRoster{Identities: roster})
	if err != nil {
		h.logger.Error("failed to encode roster", zap.Error(err))
		return
	}

	for _, c := range targets {
		if c.SafeSend(ev, sendTimeout) || c.IsClosed() {
			continue
		}
		h.logger.Warn("egress full while broadcasting roster", zap.String("client_id", c.ID))
		if kickOnFull {
			c.Close()
		}
	}
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.rosterChanged:
			h.broadcastRoster()
		}
	}
}

// Stop closes every session and waits for the hub goroutines.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		h.mu.RLock()
		for c := range h.clients {
			c.Close()
		}
		h.mu.RUnlock()

		h.wg.Wait()
	})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] {
			return true
		}
		return set[origin]
	}
}

// ServeWS upgrades the request. The optional email query parameter identifies the session
// without a separate identify event.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(r.URL.Query().Get("email"), conn, h)
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
