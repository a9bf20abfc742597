package guild

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/guildserver/cache/local"
	"github.com/kasuganosora/guildserver/model"
)

// Invalidation names the cache keys a mutation made stale. Exactly one of
// GuildID or Identity is set.
type Invalidation struct {
	GuildID  int64 `json:"guild_id,omitempty"`
	Identity int64 `json:"identity,omitempty"`
}

// GuildCache is a read-through TTL cache of guild aggregates keyed by guild
// id and by member identity. Cached *model.Guild values are shared and
// must be treated as read-only.
type GuildCache struct {
	store      Store
	byID       *local.TTL[int64, *model.Guild]
	byIdentity *local.TTL[int64, *model.Guild]
	onInval    atomic.Pointer[func(Invalidation)]
}

// NewGuildCache creates a cache over store. now may be nil.
func NewGuildCache(store Store, ttl, gcInterval time.Duration, now func() time.Time) *GuildCache {
	cfg := local.TTLConfig{TTL: ttl, GCInterval: gcInterval, Now: now}
	return &GuildCache{
		store:      store,
		byID:       local.NewTTL[int64, *model.Guild](cfg),
		byIdentity: local.NewTTL[int64, *model.Guild](cfg),
	}
}

// OnInvalidate registers fn to observe every local invalidation, replacing
// any previous observer. nil detaches.
func (c *GuildCache) OnInvalidate(fn func(Invalidation)) {
	if fn == nil {
		c.onInval.Store(nil)
		return
	}
	c.onInval.Store(&fn)
}

func (c *GuildCache) notify(inv Invalidation) {
	if fn := c.onInval.Load(); fn != nil {
		(*fn)(inv)
	}
}

func (c *GuildCache) Close() {
	c.byID.Close()
	c.byIdentity.Close()
}

// Get returns the guild, or nil if it does not exist.
func (c *GuildCache) Get(ctx context.Context, guildID int64) (*model.Guild, error) {
	g, _, err := c.byID.GetOrLoad(ctx, guildID, func(ctx context.Context, id int64) (*model.Guild, bool, error) {
		g, err := c.store.GetGuild(ctx, id)
		return g, g != nil, err
	})
	return g, err
}

// GetByIdentity returns the guild identity belongs to, or nil. A loaded
// guild is cached under its id as well.
func (c *GuildCache) GetByIdentity(ctx context.Context, identity int64) (*model.Guild, error) {
	idGen := c.byID.Generation()
	loaded := false
	g, found, err := c.byIdentity.GetOrLoad(ctx, identity, func(ctx context.Context, id int64) (*model.Guild, bool, error) {
		loaded = true
		g, err := c.store.GetGuildByIdentity(ctx, id)
		return g, g != nil, err
	})
	if err != nil {
		return nil, err
	}
	if loaded && found {
		c.byID.SetIfGeneration(idGen, g.ID, g)
	}
	return g, nil
}

// InvalidateGuild drops the guild entry and every identity entry pointing at it.
func (c *GuildCache) InvalidateGuild(guildID int64) {
	c.Apply(Invalidation{GuildID: guildID})
	c.notify(Invalidation{GuildID: guildID})
}

// InvalidateIdentity drops only that identity's entry.
func (c *GuildCache) InvalidateIdentity(identity int64) {
	c.Apply(Invalidation{Identity: identity})
	c.notify(Invalidation{Identity: identity})
}

// InvalidateMember drops both the member's identity entry and their guild.
func (c *GuildCache) InvalidateMember(identity, guildID int64) {
	c.InvalidateIdentity(identity)
	c.InvalidateGuild(guildID)
}

// Apply performs an invalidation without notifying the observer.
func (c *GuildCache) Apply(inv Invalidation) {
	if inv.Identity != 0 {
		c.byIdentity.Delete(inv.Identity)
	}
	if inv.GuildID != 0 {
		id := inv.GuildID
		c.byID.Delete(id)
		c.byIdentity.DeleteWhere(func(_ int64, g *model.Guild, found bool) bool {
			return found && g.ID == id
		})
	}
}

// Stats reports entry counts per keyspace.
func (c *GuildCache) Stats() (guilds, identities int) {
	return c.byID.Len(), c.byIdentity.Len()
}
