package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildserver/audit"
	"github.com/kasuganosora/guildserver/config"
	"github.com/kasuganosora/guildserver/game/guild"
	"github.com/kasuganosora/guildserver/game/presence"
	mw "github.com/kasuganosora/guildserver/middleware"
	"github.com/kasuganosora/guildserver/scheduler"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	svc     *guild.Service
	tracker *presence.Tracker
	sched   *scheduler.Scheduler
	audit   *audit.Service
	sec     config.SecurityConfig
	logger  *zap.Logger
}

// NewAdminHandler creates an AdminHandler. auditSvc may be nil.
func NewAdminHandler(
	svc *guild.Service,
	tracker *presence.Tracker,
	sched *scheduler.Scheduler,
	auditSvc *audit.Service,
	sec config.SecurityConfig,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{svc: svc, tracker: tracker, sched: sched, audit: auditSvc, sec: sec, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	guilds, identities := h.svc.Cache().Stats()
	c.JSON(http.StatusOK, gin.H{
		"online_players":   h.tracker.Count(),
		"cached_guilds":    guilds,
		"cached_members":   identities,
		"pending_invites":  h.svc.Invites().Len(),
		"registered_perks": len(h.svc.ListRegisteredPerks()),
		"scheduler_tasks":  h.sched.ListTickers(),
	})
}

// ListPlayers returns a snapshot of all online players.
// GET /api/admin/players
func (h *AdminHandler) ListPlayers(c *gin.Context) {
	sessions := h.tracker.All()
	c.JSON(http.StatusOK, gin.H{"players": sessions, "count": len(sessions)})
}

// KickPlayer ends an online player's session.
// POST /api/admin/kick/:identity
func (h *AdminHandler) KickPlayer(c *gin.Context) {
	identity, err := strconv.ParseInt(c.Param("identity"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}
	if !h.tracker.IsOnline(identity) {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not online"})
		return
	}
	h.tracker.Disconnect(identity)
	h.logger.Info("admin kicked player", zap.Int64("identity", identity))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSchedulerTasks returns run statistics for every ticker task.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTasks()})
}

// RunInterest applies bank interest to every guild now.
// POST /api/admin/interest
func (h *AdminHandler) RunInterest(c *gin.Context) {
	n, err := h.svc.ApplyInterest(c.Request.Context())
	if err != nil {
		h.logger.Error("manual interest sweep failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"credited": n})
}

// GuildAudit returns a guild's most recent audit entries.
// GET /api/admin/guilds/:id/audit?limit=
func (h *AdminHandler) GuildAudit(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit disabled"})
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.audit.Recent(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Error("audit query failed", zap.Int64("guild_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type bankAdjustRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

// AdjustBank credits (positive amount) or debits (negative amount) a guild
// bank on behalf of another game module.
// POST /api/admin/guilds/:id/bank
func (h *AdminHandler) AdjustBank(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req bankAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Reason == "" {
		req.Reason = "admin"
	}
	var res guild.Result
	if req.Amount > 0 {
		res, err = h.svc.AddToBank(c.Request.Context(), id, req.Amount, req.Reason)
	} else {
		res, err = h.svc.RemoveFromBank(c.Request.Context(), id, -req.Amount, req.Reason)
	}
	if err != nil {
		h.logger.Error("bank adjust failed", zap.Int64("guild_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(statusFor(res.Kind), res)
}

type issueTokenRequest struct {
	Identity int64  `json:"identity" binding:"required"`
	Name     string `json:"name"     binding:"required"`
}

// IssueToken signs a player token for the game server to hand out.
// POST /api/admin/tokens
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Identity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity and name required"})
		return
	}
	token, err := mw.GenerateToken(req.Identity, req.Name, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		h.logger.Error("token signing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "identity": req.Identity})
}

func (h *AdminHandler) Register(admin *gin.RouterGroup) {
	admin.GET("/metrics", h.Metrics)
	admin.GET("/players", h.ListPlayers)
	admin.POST("/kick/:identity", h.KickPlayer)
	admin.GET("/scheduler", h.ListSchedulerTasks)
	admin.POST("/interest", h.RunInterest)
	admin.GET("/guilds/:id/audit", h.GuildAudit)
	admin.POST("/guilds/:id/bank", h.AdjustBank)
	admin.POST("/tokens", h.IssueToken)
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
