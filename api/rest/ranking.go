package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RankingHandler serves the guild leaderboards.
type RankingHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(db *gorm.DB, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{db: db, logger: logger}
}

const rankingTop = 100

// RankEntry is one row in the leaderboard.
type RankEntry struct {
	Rank        int    `json:"rank"`
	GuildID     int64  `json:"guild_id"`
	Name        string `json:"name"`
	Tag         string `json:"tag"`
	BankBalance int64  `json:"bank_balance"`
	MemberCount int    `json:"member_count"`
}

// orderings maps the by= query value to the ORDER BY clause.
var orderings = map[string]string{
	"bank":    "bank_balance DESC, id ASC",
	"members": "member_count DESC, id ASC",
}

// TopGuilds returns the leading guilds by bank balance or member count.
// GET /api/ranking/guilds?by=bank|members&limit=20
func (h *RankingHandler) TopGuilds(c *gin.Context) {
	by := c.DefaultQuery("by", "bank")
	order, ok := orderings[by]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "by must be bank or members"})
		return
	}
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingTop {
		limit = l
	}

	var rows []RankEntry
	err := h.db.WithContext(c.Request.Context()).
		Table("guilds").
		Select("guilds.id AS guild_id, guilds.name, guilds.tag, guilds.bank_balance, " +
			"(SELECT COUNT(*) FROM members WHERE members.guild_id = guilds.id) AS member_count").
		Order(order).
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		h.logger.Error("ranking query failed", zap.String("by", by), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	c.JSON(http.StatusOK, gin.H{"by": by, "ranking": rows})
}

func (h *RankingHandler) Register(public *gin.RouterGroup) {
	public.GET("/ranking/guilds", h.TopGuilds)
}
