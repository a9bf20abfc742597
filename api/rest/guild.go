package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildserver/game/chat"
	"github.com/kasuganosora/guildserver/game/guild"
	"github.com/kasuganosora/guildserver/game/presence"
	mw "github.com/kasuganosora/guildserver/middleware"
	"github.com/kasuganosora/guildserver/model"
	"go.uber.org/zap"
)

// OnlineDirectory resolves online players for invites.
type OnlineDirectory interface {
	Get(identity int64) (presence.Session, bool)
	GetByName(name string) (presence.Session, bool)
}

// GuildHandler handles guild REST endpoints. Every mutating route acts on
// the caller's own guild.
type GuildHandler struct {
	svc    *guild.Service
	online OnlineDirectory
	chat   *chat.Service
	logger *zap.Logger
}

// NewGuildHandler creates a new GuildHandler. online may be nil, in which
// case invites are not restricted to online players.
func NewGuildHandler(svc *guild.Service, online OnlineDirectory, logger *zap.Logger) *GuildHandler {
	return &GuildHandler{svc: svc, online: online, logger: logger}
}

// statusFor maps a result kind to its HTTP status.
func statusFor(k guild.Kind) int {
	switch k {
	case guild.KindOK:
		return http.StatusOK
	case guild.KindValidation:
		return http.StatusBadRequest
	case guild.KindPermissionDenied:
		return http.StatusForbidden
	case guild.KindNotFound:
		return http.StatusNotFound
	case guild.KindConflict:
		return http.StatusConflict
	case guild.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case guild.KindCapacityExceeded:
		return http.StatusUnprocessableEntity
	case guild.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *GuildHandler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error("guild request failed",
		zap.String("op", op),
		zap.String("trace_id", mw.GetTraceID(c)),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// reply writes res (or err) with any extra fields merged in on success.
func (h *GuildHandler) reply(c *gin.Context, op string, res guild.Result, err error, extra gin.H) {
	if err != nil {
		h.internalError(c, op, err)
		return
	}
	body := gin.H{"kind": res.Kind, "message": res.Message}
	if len(res.Args) > 0 {
		body["args"] = res.Args
	}
	if res.OK() {
		for k, v := range extra {
			body[k] = v
		}
	}
	c.JSON(statusFor(res.Kind), body)
}

func caller(c *gin.Context) guild.Player {
	return guild.Player{Identity: mw.GetIdentity(c), Name: mw.GetPlayerName(c)}
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

type guildView struct {
	*model.Guild
	MaxSlots        int     `json:"max_slots"`
	MaxBankCapacity int64   `json:"max_bank_capacity"`
	XPBoostPercent  int     `json:"xp_boost_percent"`
	InterestPercent float64 `json:"interest_percent"`
}

func (h *GuildHandler) view(g *model.Guild) guildView {
	return guildView{
		Guild:           g,
		MaxSlots:        h.svc.MaxSlots(g),
		MaxBankCapacity: h.svc.MaxBankCapacity(g),
		XPBoostPercent:  h.svc.XPBoostPercent(g),
		InterestPercent: h.svc.InterestPercent(g),
	}
}

type createGuildRequest struct {
	Name string `json:"name" binding:"required"`
	Tag  string `json:"tag"  binding:"required"`
}

// Create handles POST /api/guilds.
func (h *GuildHandler) Create(c *gin.Context) {
	var req createGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, res, err := h.svc.Create(c.Request.Context(), caller(c), req.Name, req.Tag)
	if err == nil && res.OK() {
		body := gin.H{"kind": res.Kind, "message": res.Message, "args": res.Args, "guild": h.view(g)}
		c.JSON(http.StatusCreated, body)
		return
	}
	h.reply(c, "create", res, err, nil)
}

// List handles GET /api/guilds?page=&size=.
func (h *GuildHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	guilds, err := h.svc.ListGuilds(c.Request.Context(), page, size)
	if err != nil {
		h.internalError(c, "list", err)
		return
	}
	if guilds == nil {
		guilds = []*model.Guild{}
	}
	c.JSON(http.StatusOK, gin.H{"guilds": guilds, "page": page})
}

// Detail handles GET /api/guilds/:id.
func (h *GuildHandler) Detail(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	g, err := h.svc.GetGuild(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, "detail", err)
		return
	}
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "guild not found"})
		return
	}
	c.JSON(http.StatusOK, h.view(g))
}

// Mine handles GET /api/guild.
func (h *GuildHandler) Mine(c *gin.Context) {
	ctx := c.Request.Context()
	me := mw.GetIdentity(c)
	g, err := h.svc.GetPlayerGuild(ctx, me)
	if err != nil {
		h.internalError(c, "mine", err)
		return
	}
	if g == nil {
		h.reply(c, "mine", guild.Result{Kind: guild.KindNotFound, Message: guild.ErrMsgNotInGuild}, nil, nil)
		return
	}
	member, err := h.svc.GetMember(ctx, me)
	if err != nil {
		h.internalError(c, "mine", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guild": h.view(g), "member": member})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// Rename handles PUT /api/guild/name.
func (h *GuildHandler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.Rename(c.Request.Context(), mw.GetIdentity(c), req.Name, h.svc.Config().RenameCost)
	h.reply(c, "rename", res, err, nil)
}

// Disband handles DELETE /api/guild.
func (h *GuildHandler) Disband(c *gin.Context) {
	res, err := h.svc.Disband(c.Request.Context(), mw.GetIdentity(c))
	h.reply(c, "disband", res, err, nil)
}

type inviteRequest struct {
	Identity int64  `json:"identity"`
	Name     string `json:"name"`
}

// Invite handles POST /api/guild/invites. The invitee is named by identity
// or, when an online directory is wired, by display name.
func (h *GuildHandler) Invite(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target := guild.Player{Identity: req.Identity, Name: req.Name}
	if h.online != nil {
		var (
			sess presence.Session
			ok   bool
		)
		if req.Identity > 0 {
			sess, ok = h.online.Get(req.Identity)
		} else {
			sess, ok = h.online.GetByName(req.Name)
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not online"})
			return
		}
		target = guild.Player{Identity: sess.Identity, Name: sess.Name}
	}
	if target.Identity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity"})
		return
	}
	res, err := h.svc.Invite(c.Request.Context(), mw.GetIdentity(c), target)
	h.reply(c, "invite", res, err, nil)
}

// AcceptInvite handles POST /api/guild/invite/accept.
func (h *GuildHandler) AcceptInvite(c *gin.Context) {
	res, err := h.svc.AcceptInvite(c.Request.Context(), caller(c))
	h.reply(c, "accept", res, err, nil)
}

// DeclineInvite handles POST /api/guild/invite/decline.
func (h *GuildHandler) DeclineInvite(c *gin.Context) {
	h.reply(c, "decline", h.svc.DeclineInvite(mw.GetIdentity(c)), nil, nil)
}

// Leave handles POST /api/guild/leave.
func (h *GuildHandler) Leave(c *gin.Context) {
	res, err := h.svc.Leave(c.Request.Context(), mw.GetIdentity(c))
	h.reply(c, "leave", res, err, nil)
}

// Kick handles DELETE /api/guild/members/:identity.
func (h *GuildHandler) Kick(c *gin.Context) {
	target, ok := paramID(c, "identity")
	if !ok {
		return
	}
	res, err := h.svc.Kick(c.Request.Context(), mw.GetIdentity(c), target)
	h.reply(c, "kick", res, err, nil)
}

// Promote handles POST /api/guild/members/:identity/promote.
func (h *GuildHandler) Promote(c *gin.Context) {
	target, ok := paramID(c, "identity")
	if !ok {
		return
	}
	res, err := h.svc.Promote(c.Request.Context(), mw.GetIdentity(c), target)
	h.reply(c, "promote", res, err, nil)
}

// Demote handles POST /api/guild/members/:identity/demote.
func (h *GuildHandler) Demote(c *gin.Context) {
	target, ok := paramID(c, "identity")
	if !ok {
		return
	}
	res, err := h.svc.Demote(c.Request.Context(), mw.GetIdentity(c), target)
	h.reply(c, "demote", res, err, nil)
}

type amountRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// Deposit handles POST /api/guild/bank/deposit.
func (h *GuildHandler) Deposit(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.Deposit(c.Request.Context(), mw.GetIdentity(c), req.Amount)
	h.reply(c, "deposit", res, err, nil)
}

// Withdraw handles POST /api/guild/bank/withdraw.
func (h *GuildHandler) Withdraw(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.Withdraw(c.Request.Context(), mw.GetIdentity(c), req.Amount)
	h.reply(c, "withdraw", res, err, nil)
}

type upgradeView struct {
	Type     string `json:"type"`
	Enabled  bool   `json:"enabled"`
	Level    int    `json:"level"`
	MaxLevel int    `json:"max_level"`
	NextCost int64  `json:"next_cost"`
}

// Upgrades handles GET /api/guild/upgrades.
func (h *GuildHandler) Upgrades(c *gin.Context) {
	g, ok := h.myGuild(c, "upgrades")
	if !ok {
		return
	}
	settings := h.svc.Upgrades()
	out := make([]upgradeView, 0, model.NumUpgradeTypes)
	for t := model.UpgradeType(0); t < model.NumUpgradeTypes; t++ {
		out = append(out, upgradeView{
			Type:     t.String(),
			Enabled:  settings[t].Enabled,
			Level:    h.svc.GetUpgradeLevel(g, t),
			MaxLevel: settings[t].MaxLevel,
			NextCost: h.svc.GetUpgradeCost(g, t),
		})
	}
	c.JSON(http.StatusOK, gin.H{"bank_balance": g.BankBalance, "upgrades": out})
}

// PurchaseUpgrade handles POST /api/guild/upgrades/:type.
func (h *GuildHandler) PurchaseUpgrade(c *gin.Context) {
	t, ok := model.ParseUpgradeType(c.Param("type"))
	if !ok {
		h.reply(c, "upgrade", guild.Result{Kind: guild.KindValidation, Message: guild.ErrMsgUpgradeUnknown}, nil, nil)
		return
	}
	res, err := h.svc.PurchaseUpgrade(c.Request.Context(), mw.GetIdentity(c), t)
	h.reply(c, "upgrade", res, err, nil)
}

type perkView struct {
	*guild.PerkDefinition
	Level    int   `json:"level"`
	Active   bool  `json:"active"`
	NextCost int64 `json:"next_cost"`
}

// Perks handles GET /api/guild/perks.
func (h *GuildHandler) Perks(c *gin.Context) {
	g, ok := h.myGuild(c, "perks")
	if !ok {
		return
	}
	defs := h.svc.ListRegisteredPerks()
	out := make([]perkView, 0, len(defs))
	for _, d := range defs {
		level := h.svc.Perks().Level(g, d.ID)
		next := int64(-1)
		if level < d.MaxLevel {
			next = d.CostFor(level + 1)
		}
		out = append(out, perkView{
			PerkDefinition: d,
			Level:          level,
			Active:         h.svc.Perks().Active(g, d.ID),
			NextCost:       next,
		})
	}
	c.JSON(http.StatusOK, gin.H{"perks": out})
}

// BuyPerk handles POST /api/guild/perks/:id.
func (h *GuildHandler) BuyPerk(c *gin.Context) {
	res, err := h.svc.BuyPerk(c.Request.Context(), mw.GetIdentity(c), c.Param("id"))
	h.reply(c, "buy_perk", res, err, nil)
}

// TogglePerk handles POST /api/guild/perks/:id/toggle.
func (h *GuildHandler) TogglePerk(c *gin.Context) {
	res, err := h.svc.TogglePerkFor(c.Request.Context(), mw.GetIdentity(c), c.Param("id"))
	h.reply(c, "toggle_perk", res, err, nil)
}

func (h *GuildHandler) myGuild(c *gin.Context, op string) (*model.Guild, bool) {
	g, err := h.svc.GetPlayerGuild(c.Request.Context(), mw.GetIdentity(c))
	if err != nil {
		h.internalError(c, op, err)
		return nil, false
	}
	if g == nil {
		h.reply(c, op, guild.Result{Kind: guild.KindNotFound, Message: guild.ErrMsgNotInGuild}, nil, nil)
		return nil, false
	}
	return g, true
}

// WithChat enables the guild chat routes.
func (h *GuildHandler) WithChat(cs *chat.Service) *GuildHandler {
	h.chat = cs
	return h
}

type chatRequest struct {
	Content string `json:"content" binding:"required"`
}

// SendChat handles POST /api/guild/chat.
func (h *GuildHandler) SendChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.chat.Send(c.Request.Context(), caller(c), req.Content)
	h.reply(c, "chat", res, err, nil)
}

// ChatHistory handles GET /api/guild/chat?limit=N.
func (h *GuildHandler) ChatHistory(c *gin.Context) {
	g, ok := h.myGuild(c, "chat_history")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	c.JSON(http.StatusOK, gin.H{"messages": h.chat.History(g.ID, limit)})
}

// Register mounts the public and authenticated guild routes.
func (h *GuildHandler) Register(public, authed *gin.RouterGroup) {
	public.GET("/guilds", h.List)
	public.GET("/guilds/:id", h.Detail)

	authed.POST("/guilds", h.Create)
	authed.GET("/guild", h.Mine)
	authed.DELETE("/guild", h.Disband)
	authed.PUT("/guild/name", h.Rename)
	authed.POST("/guild/invites", h.Invite)
	authed.POST("/guild/invite/accept", h.AcceptInvite)
	authed.POST("/guild/invite/decline", h.DeclineInvite)
	authed.POST("/guild/leave", h.Leave)
	authed.DELETE("/guild/members/:identity", h.Kick)
	authed.POST("/guild/members/:identity/promote", h.Promote)
	authed.POST("/guild/members/:identity/demote", h.Demote)
	authed.POST("/guild/bank/deposit", h.Deposit)
	authed.POST("/guild/bank/withdraw", h.Withdraw)
	authed.GET("/guild/upgrades", h.Upgrades)
	authed.POST("/guild/upgrades/:type", h.PurchaseUpgrade)
	authed.GET("/guild/perks", h.Perks)
	authed.POST("/guild/perks/:id", h.BuyPerk)
	authed.POST("/guild/perks/:id/toggle", h.TogglePerk)
	if h.chat != nil {
		authed.GET("/guild/chat", h.ChatHistory)
		authed.POST("/guild/chat", h.SendChat)
	}
}
