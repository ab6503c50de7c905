package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/logx"
	"chatgate/internal/pkg/metrics"
	"chatgate/internal/pkg/randx"
)

// HandlerFunc handles one inbound event for c. A returned error is sent back to c only.
type HandlerFunc func(ctx context.Context, c *Client, data json.RawMessage) error

// Config tunes the Gateway.
type Config struct {
	// SendQueueSize bounds each connection's outbound queue.
	SendQueueSize int

	// EventRate and EventBurst bound inbound events per connection.
	EventRate  rate.Limit
	EventBurst int

	// EventTimeout bounds the storage work of a single event.
	EventTimeout time.Duration

	// HistoryLimit is the number of recent messages sent in reply to join_room.
	HistoryLimit int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SendQueueSize: 256,
		EventRate:     rate.Limit(10),
		EventBurst:    20,
		EventTimeout:  10 * time.Second,
		HistoryLimit:  50,
	}
}

// Gateway owns every live connection, the presence store and the dispatch table.
type Gateway struct {
	store    Store
	presence *Presence
	handlers map[string]HandlerFunc
	cfg      Config
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	clients  map[string]*Client
	shutdown bool

	roomMu    sync.Mutex
	roomLocks map[int64]*sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGateway returns a Gateway backed by store. m may be nil.
func NewGateway(store Store, cfg Config, m *metrics.Metrics) *Gateway {
	def := DefaultConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.EventRate <= 0 {
		cfg.EventRate = def.EventRate
	}
	if cfg.EventBurst <= 0 {
		cfg.EventBurst = def.EventBurst
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = def.EventTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}

	ctx, cancel := context.WithCancel(context.Background())

	g := &Gateway{
		store:     store,
		presence:  NewPresence(),
		cfg:       cfg,
		metrics:   m,
		logger:    logx.Component("gateway"),
		now:       time.Now,
		clients:   make(map[string]*Client),
		roomLocks: make(map[int64]*sync.Mutex),
		ctx:       ctx,
		cancel:    cancel,
	}

	g.handlers = map[string]HandlerFunc{
		EventSendMessage: g.handleSendMessage,
		EventJoinRoom:    g.handleJoinRoom,
		EventLeaveRoom:   g.handleLeaveRoom,
		EventTypingStart: g.handleTypingStart,
		EventTypingStop:  g.handleTypingStop,
		EventMarkRead:    g.handleMarkRead,
	}

	return g
}

// Presence exposes the presence store for read-only use by HTTP handlers.
func (g *Gateway) Presence() *Presence {
	return g.presence
}

// Attach takes ownership of an upgraded connection for id and starts its pumps.
func (g *Gateway) Attach(conn *websocket.Conn, id user.Identity) (*Client, error) {
	c := newClient(g, conn, randx.ConnectionID(), id)

	if err := g.open(g.ctx, c, 2); err != nil {
		c.Kick(websocket.CloseTryAgainLater, "server unavailable")
		return nil, err
	}

	go func() {
		defer g.wg.Done()
		c.WritePump()
	}()
	go func() {
		defer g.wg.Done()
		c.ReadPump(g.ctx)
	}()

	return c, nil
}

// open registers c, joins it to every room it is a member of and announces it. pumps is
// the number of goroutines the caller starts for c; Shutdown waits for them.
func (g *Gateway) open(ctx context.Context, c *Client, pumps int) error {
	g.mu.Lock()
	if g.shutdown {
		g.mu.Unlock()
		return fmt.Errorf("gateway is shutting down")
	}
	g.clients[c.id] = c
	g.wg.Add(pumps)
	g.mu.Unlock()

	g.metrics.ConnectionOpened()

	first := g.presence.Register(Entry{
		ConnID:   c.id,
		UserID:   c.identity.ID,
		Username: c.identity.Username,
		JoinedAt: g.now(),
	})

	ctx, cancel := context.WithTimeout(ctx, g.cfg.EventTimeout)
	defer cancel()

	rooms, err := g.store.ListMemberRooms(ctx, c.identity.ID)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to list member rooms on connect")
		c.SendError(errs.Wrap(errs.ErrPersistence, err))
		rooms = nil
	}

	joined := make([]int64, 0, len(rooms))
	for _, roomID := range rooms {
		if !g.presence.Join(c.id, roomID) {
			return nil
		}
		joined = append(joined, roomID)
	}

	for _, roomID := range joined {
		c.emit(EventJoinedRoom, JoinedRoomPayload{
			RoomID:      roomID,
			OnlineUsers: g.presence.Snapshot(roomID),
		})
	}

	if first {
		g.emit(g.presence.Peers(c.identity.ID, joined), EventUserOnline, UserPayload{UserID: c.identity.ID})
	}

	c.logger.Info().Int("rooms", len(joined)).Bool("first_connection", first).Msg("Client connected")
	return nil
}

// disconnect runs the cleanup of c exactly once.
func (g *Gateway) disconnect(c *Client) {
	c.cleanupOnce.Do(func() {
		g.mu.Lock()
		delete(g.clients, c.id)
		g.mu.Unlock()

		rm := g.presence.Unregister(c.id)

		for _, roomID := range rm.TypingRooms {
			g.emit(g.presence.Connections(roomID, rm.UserID), EventUserStopTyping, TypingPayload{
				UserID: rm.UserID,
				RoomID: roomID,
			})
		}

		if rm.LastConnection {
			g.emit(g.presence.Peers(rm.UserID, rm.Rooms), EventUserOffline, UserPayload{UserID: rm.UserID})
		}

		c.shutSend()
		if c.conn != nil {
			_ = c.conn.Close()
		}

		g.metrics.ConnectionClosed()
		c.logger.Info().Bool("last_connection", rm.LastConnection).Msg("Client disconnected")
	})
}

// dispatch decodes one frame and runs its handler. Handler panics are recovered so the
// connection and its cleanup survive.
func (g *Gateway) dispatch(ctx context.Context, c *Client, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		g.metrics.Event("invalid", errs.KindInput.String())
		return
	}

	handler, ok := g.handlers[env.Event]
	if !ok {
		c.SendError(errs.NewError(errs.ErrUnsupportedEvent))
		g.metrics.Event("unsupported", errs.KindInput.String())
		return
	}

	if !c.limiter.Allow() {
		c.SendError(errs.NewError(errs.ErrRateLimitExceeded))
		g.metrics.Event(env.Event, "rate_limited")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.EventTimeout)
	defer cancel()

	if err := g.safeCall(ctx, handler, c, env); err != nil {
		c.SendError(err)
		g.metrics.Event(env.Event, errs.KindOf(err).String())
		return
	}

	g.metrics.Event(env.Event, "ok")
}

func (g *Gateway) safeCall(ctx context.Context, h HandlerFunc, c *Client, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("event", env.Event).
				Interface("panic", r).
				Msg("Recovered from panic in event handler")
			err = errs.Wrap(errs.ErrUnknown, fmt.Errorf("panic: %v", r))
		}
	}()

	return h(ctx, c, env.Data)
}

// client returns the live client with connID.
func (g *Gateway) client(connID string) (*Client, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c, ok := g.clients[connID]
	return c, ok
}

// emit encodes event once and enqueues it on every listed connection.
func (g *Gateway) emit(connIDs []string, event string, data any) {
	if len(connIDs) == 0 {
		return
	}

	frame, err := encodeEvent(event, data)
	if err != nil {
		g.logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return
	}

	for _, connID := range connIDs {
		if c, ok := g.client(connID); ok {
			c.enqueue(frame)
		}
	}
}

// roomLock returns the mutex serializing persist and fan-out for roomID.
func (g *Gateway) roomLock(roomID int64) *sync.Mutex {
	g.roomMu.Lock()
	defer g.roomMu.Unlock()

	l, ok := g.roomLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		g.roomLocks[roomID] = l
	}
	return l
}

// ConnectionCount returns the number of live connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Shutdown closes every connection and waits for their pumps, or for ctx.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.shutdown = true
	clients := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	g.logger.Info().Int("connections", len(clients)).Msg("Gateway shutting down")

	for _, c := range clients {
		c.Kick(websocket.CloseGoingAway, "server shutting down")
	}
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
