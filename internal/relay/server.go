// ABOUTME: Relay server: websocket rooms with optional backplane and mDNS
// ABOUTME: Routes join-room, leave-room and sync-action envelopes between clients
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/syncwatch/syncwatch-go/internal/discovery"
	"github.com/syncwatch/syncwatch-go/internal/version"
	"github.com/syncwatch/syncwatch-go/pkg/protocol"
)

const (
	defaultAddr         = ":8080"
	defaultQueueSize    = 64
	defaultPingInterval = 30 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Config holds relay configuration
type Config struct {
	// Addr is the listen address (default ":8080")
	Addr string

	// Name is advertised over mDNS
	Name string

	// InstanceID tags frames on the backplane (default: random uuid)
	InstanceID string

	// Redis enables the backplane when set
	Redis *redis.Client

	// Advertise announces the relay over mDNS
	Advertise bool

	// QueueSize bounds each client's pending frames
	QueueSize int

	// PingInterval is the keepalive period; a client silent for two
	// intervals is dropped
	PingInterval time.Duration

	Logger *zerolog.Logger
}

// Server is a room relay
type Server struct {
	config   Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	mu      sync.RWMutex
	rooms   map[string]map[*client]struct{}
	clients map[*client]struct{}

	bus *backplane
	wg  sync.WaitGroup
}

// New creates a relay. Nothing listens until Run or Serve.
func New(config Config) *Server {
	if config.Addr == "" {
		config.Addr = defaultAddr
	}
	if config.Name == "" {
		config.Name = version.Product + "-relay"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if config.PingInterval == 0 {
		config.PingInterval = defaultPingInterval
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "relay").Str("instance", config.InstanceID).Logger()
	}

	s := &Server{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			// Relays serve native clients and trusted local networks
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms:   make(map[string]map[*client]struct{}),
		clients: make(map[*client]struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)
	r.Get("/rooms", s.handleRooms)
	s.router = r

	return s
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// InstanceID returns the id used on the backplane
func (s *Server) InstanceID() string {
	return s.config.InstanceID
}

// Run listens on the configured address until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.StartBackplane(ctx); err != nil {
		ln.Close()
		return err
	}

	var mdns *discovery.Manager
	if addr, ok := ln.Addr().(*net.TCPAddr); ok && s.config.Advertise {
		mdns = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        addr.Port,
			Logger:      s.config.Logger,
		})
		if err := mdns.Advertise(); err != nil {
			s.logger.Warn().Err(err).Msg("mDNS advertisement failed")
		}
	}

	httpServer := &http.Server{Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("relay listening")

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("relay shutting down")
	case serveErr = <-errCh:
		s.logger.Error().Err(serveErr).Msg("http server failed")
	}

	if mdns != nil {
		mdns.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("http shutdown error")
	}

	s.Close()
	s.logger.Info().Msg("relay stopped")
	return serveErr
}

// StartBackplane subscribes to Redis when configured. Serve calls it;
// callers using Handler directly call it themselves.
func (s *Server) StartBackplane(ctx context.Context) error {
	if s.config.Redis == nil || s.bus != nil {
		return nil
	}
	bus, err := startBackplane(ctx, s.config.Redis, s.config.InstanceID, s.logger, s.deliverRemote)
	if err != nil {
		return err
	}
	s.bus = bus
	s.logger.Info().Msg("backplane subscribed")
	return nil
}

// Close disconnects every client and stops the backplane
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.conn.Close()
	}
	s.wg.Wait()

	if s.bus != nil {
		if err := s.bus.close(); err != nil {
			s.logger.Debug().Err(err).Msg("backplane close")
		}
		s.bus = nil
	}
}

// Rooms returns the local member count per room
func (s *Server) Rooms() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.rooms))
	for roomID, members := range s.rooms {
		out[roomID] = len(members)
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"instance": s.config.InstanceID,
		"version":  version.Version,
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Rooms())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := r.URL.Query().Get("client")
	if id == "" {
		id = uuid.NewString()
	}
	c := newClient(id, conn, s.config.QueueSize, s.logger.With().Str("client", id).Logger())

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	c.logger.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writer(s.config.PingInterval)
	}()

	s.readLoop(c)

	s.removeClient(c)
	<-writerDone
	conn.Close()
	c.logger.Info().Msg("client disconnected")
}

func (s *Server) readLoop(c *client) {
	pongWait := 2 * s.config.PingInterval
	extend := func() { _ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	c.conn.SetPingHandler(func(data string) error {
		extend()
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("read error")
			}
			return
		}
		extend()
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleFrame(c, data)
	}
}

func (s *Server) handleFrame(c *client, frame []byte) {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping frame")
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		roomID, err := protocol.DecodeRoomID(env.Data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("bad join-room")
			return
		}
		s.join(c, roomID)

	case protocol.EventLeaveRoom:
		roomID, err := protocol.DecodeRoomID(env.Data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("bad leave-room")
			return
		}
		s.leave(c, roomID)

	case protocol.EventSyncAction:
		var target struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(env.Data, &target); err != nil || target.RoomID == "" {
			c.logger.Warn().Msg("sync-action without room")
			return
		}
		if !c.memberOf(target.RoomID) {
			c.logger.Debug().Str("room", target.RoomID).Msg("sender not in room, dropping")
			return
		}
		s.fanout(target.RoomID, c, frame)
		if s.bus != nil {
			s.bus.publish(context.Background(), target.RoomID, frame)
		}

	default:
		c.logger.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
}

func (s *Server) join(c *client, roomID string) {
	s.mu.Lock()
	members, ok := s.rooms[roomID]
	if !ok {
		members = make(map[*client]struct{})
		s.rooms[roomID] = members
	}
	members[c] = struct{}{}
	count := len(members)
	s.mu.Unlock()

	c.addRoom(roomID)
	c.logger.Info().Str("room", roomID).Int("members", count).Msg("joined room")
}

func (s *Server) leave(c *client, roomID string) {
	s.mu.Lock()
	s.leaveLocked(c, roomID)
	s.mu.Unlock()

	c.removeRoom(roomID)
	c.logger.Info().Str("room", roomID).Msg("left room")
}

func (s *Server) leaveLocked(c *client, roomID string) {
	members := s.rooms[roomID]
	delete(members, c)
	if len(members) == 0 {
		delete(s.rooms, roomID)
	}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	for _, roomID := range c.roomList() {
		s.leaveLocked(c, roomID)
	}
	delete(s.clients, c)
	s.mu.Unlock()

	c.close()
}

// fanout queues frame for every local member of roomID except sender
func (s *Server) fanout(roomID string, sender *client, frame []byte) {
	s.mu.RLock()
	peers := make([]*client, 0, len(s.rooms[roomID]))
	for m := range s.rooms[roomID] {
		if m != sender {
			peers = append(peers, m)
		}
	}
	s.mu.RUnlock()

	for _, p := range peers {
		p.enqueue(frame)
	}
}

func (s *Server) deliverRemote(roomID string, frame []byte) {
	s.fanout(roomID, nil, frame)
}
