package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/guildserver/cache"
	"github.com/kasuganosora/guildserver/config"
	"github.com/kasuganosora/guildserver/game/guild"
	"github.com/kasuganosora/guildserver/game/presence"
	mw "github.com/kasuganosora/guildserver/middleware"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws. A connection marks the player
// online for as long as it stays open, carries guild commands and pushes
// the player's guild feed.
type Handler struct {
	sec      config.SecurityConfig
	tracker  *presence.Tracker
	guilds   presence.GuildLookup
	pubsub   cache.PubSub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	sec config.SecurityConfig,
	tracker *presence.Tracker,
	guilds presence.GuildLookup,
	pubsub cache.PubSub,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		sec:      sec,
		tracker:  tracker,
		guilds:   guilds,
		pubsub:   pubsub,
		router:   router,
		logger:   logger,
		sessions: make(map[int64]*Session),
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	s := NewSession(claims.Identity, claims.Name, conn, h.logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.tracker.Connect(ctx, guild.Player{Identity: s.Identity, Name: s.Name}); err != nil {
		h.logger.Error("ws presence connect failed", zap.Int64("identity", s.Identity), zap.Error(err))
		s.Close()
		return
	}
	if h.pubsub != nil {
		msgs, unsub, err := h.pubsub.Subscribe(ctx, presence.FeedChannels...)
		if err != nil {
			h.logger.Warn("ws feed subscribe failed", zap.Int64("identity", s.Identity), zap.Error(err))
		} else {
			defer unsub()
			go h.feedPump(ctx, s, msgs)
		}
	}
	h.register(s)
	s.Reply(0, "connected", gin.H{"identity": s.Identity, "name": s.Name})

	// Blocks until the connection closes.
	h.readPump(s)
}

// feedPump forwards the player's guild feed until ctx ends.
func (h *Handler) feedPump(ctx context.Context, s *Session, msgs <-chan *cache.Message) {
	feed := presence.NewFeed(ctx, s.Identity, h.guilds, h.logger)
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			name, data, ok := feed.Match(ctx, msg)
			if !ok {
				continue
			}
			s.Send(&Packet{Type: name, Payload: json.RawMessage(data)})
		case <-ctx.Done():
			return
		case <-s.Done:
			return
		}
	}
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *Session) {
	defer h.handleDisconnect(s)

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("identity", s.Identity),
					zap.Error(err))
			}
			return
		}
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

// register records s, closing any previous connection of the same player.
func (h *Handler) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[s.Identity]; ok {
		old.Close()
		h.logger.Info("duplicate session displaced", zap.Int64("identity", s.Identity))
	}
	h.sessions[s.Identity] = s
}

// handleDisconnect closes s and, unless a newer connection displaced it,
// takes the player offline.
func (h *Handler) handleDisconnect(s *Session) {
	s.Close()

	h.mu.Lock()
	current := h.sessions[s.Identity] == s
	if current {
		delete(h.sessions, s.Identity)
	}
	h.mu.Unlock()

	if current {
		h.tracker.Disconnect(s.Identity)
	}
	h.logger.Info("ws disconnected", zap.Int64("identity", s.Identity), zap.Bool("displaced", !current))
}

// Count returns the number of open connections.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
