package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildserver/cache"
	"github.com/kasuganosora/guildserver/config"
	"github.com/kasuganosora/guildserver/game/presence"
	mw "github.com/kasuganosora/guildserver/middleware"
	"go.uber.org/zap"
)

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	guilds    presence.GuildLookup
	sec       config.SecurityConfig
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, guilds presence.GuildLookup, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, guilds: guilds, sec: sec, keepalive: 30 * time.Second, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>.
// It streams the caller's guild feed: every event of the guild they are in,
// events naming them (invites, kicks) and their own scoreboard tag changes.
// Events come from the cluster-wide relay channels, so a client sees
// activity from every node.
func (h *Handler) ServeSSE(c *gin.Context) {
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
	me := claims.Identity

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, presence.FeedChannels...)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"identity\":%d}\n\n", me)
	c.Writer.Flush()

	feed := presence.NewFeed(subCtx, me, h.guilds, h.logger)

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			name, data, ok := feed.Match(subCtx, msg)
			if !ok {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, data)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
