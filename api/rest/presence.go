package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildserver/game/guild"
	"github.com/kasuganosora/guildserver/game/presence"
	mw "github.com/kasuganosora/guildserver/middleware"
	"go.uber.org/zap"
)

// PresenceHandler lets the game server report player sessions and gameplay
// moments for the authenticated player.
type PresenceHandler struct {
	tracker *presence.Tracker
	logger  *zap.Logger
}

func NewPresenceHandler(tracker *presence.Tracker, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{tracker: tracker, logger: logger}
}

// Connect handles POST /api/presence/connect.
func (h *PresenceHandler) Connect(c *gin.Context) {
	p := guild.Player{Identity: mw.GetIdentity(c), Name: mw.GetPlayerName(c)}
	if err := h.tracker.Connect(c.Request.Context(), p); err != nil {
		h.logger.Error("presence connect failed", zap.Int64("identity", p.Identity), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	sess, _ := h.tracker.Get(p.Identity)
	c.JSON(http.StatusOK, sess)
}

// Disconnect handles POST /api/presence/disconnect.
func (h *PresenceHandler) Disconnect(c *gin.Context) {
	h.tracker.Disconnect(mw.GetIdentity(c))
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// Hook handles POST /api/presence/hooks/:hook (spawn, death, kill,
// round_start, round_end).
func (h *PresenceHandler) Hook(c *gin.Context) {
	hk, ok := guild.ParsePerkHook(c.Param("hook"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown hook"})
		return
	}
	me := mw.GetIdentity(c)
	n, err := h.tracker.Dispatch(c.Request.Context(), me, hk)
	if err != nil {
		h.logger.Error("perk dispatch failed", zap.Int64("identity", me), zap.Stringer("hook", hk), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hook": hk.String(), "perks": n})
}

// Online handles GET /api/presence/online.
func (h *PresenceHandler) Online(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.tracker.Count(), "players": h.tracker.All()})
}

func (h *PresenceHandler) Register(authed *gin.RouterGroup) {
	authed.POST("/presence/connect", h.Connect)
	authed.POST("/presence/disconnect", h.Disconnect)
	authed.POST("/presence/hooks/:hook", h.Hook)
	authed.GET("/presence/online", h.Online)
}
