package guild

import (
	"sync"
	"time"
)

// Invite is a pending offer for an identity to join a guild.
type Invite struct {
	GuildID   int64     `json:"guild_id"`
	Inviter   int64     `json:"inviter"`
	Invitee   int64     `json:"invitee"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InviteRegistry keeps at most one pending invite per invitee in memory.
// Expired invites are swept lazily on read; there is no background timer.
type InviteRegistry struct {
	mu      sync.Mutex
	pending map[int64]Invite // invitee → invite
	ttl     time.Duration
	now     func() time.Time
}

// NewInviteRegistry creates a registry whose invites live for ttl.
// now may be nil to use the wall clock.
func NewInviteRegistry(ttl time.Duration, now func() time.Time) *InviteRegistry {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &InviteRegistry{pending: make(map[int64]Invite), ttl: ttl, now: now}
}

// sweepLocked drops every expired invite. Caller holds mu.
func (r *InviteRegistry) sweepLocked() {
	now := r.now()
	for k, inv := range r.pending {
		if !now.Before(inv.ExpiresAt) {
			delete(r.pending, k)
		}
	}
}

func (r *InviteRegistry) HasPending(invitee int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	_, ok := r.pending[invitee]
	return ok
}

func (r *InviteRegistry) Get(invitee int64) (Invite, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	inv, ok := r.pending[invitee]
	return inv, ok
}

// Create records an invite, replacing any existing one for invitee.
func (r *InviteRegistry) Create(guildID, inviter, invitee int64) Invite {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv := Invite{GuildID: guildID, Inviter: inviter, Invitee: invitee, ExpiresAt: r.now().Add(r.ttl)}
	r.pending[invitee] = inv
	return inv
}

// CreateIfAbsent records an invite only when invitee has none pending.
func (r *InviteRegistry) CreateIfAbsent(guildID, inviter, invitee int64) (Invite, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	if _, ok := r.pending[invitee]; ok {
		return Invite{}, false
	}
	inv := Invite{GuildID: guildID, Inviter: inviter, Invitee: invitee, ExpiresAt: r.now().Add(r.ttl)}
	r.pending[invitee] = inv
	return inv, true
}

// Accept consumes the invite if it targets guildID.
func (r *InviteRegistry) Accept(invitee, guildID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	inv, ok := r.pending[invitee]
	if !ok || inv.GuildID != guildID {
		return false
	}
	delete(r.pending, invitee)
	return true
}

func (r *InviteRegistry) Decline(invitee int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, invitee)
}

// RemoveAllForGuild drops every invite to guildID and returns the count.
func (r *InviteRegistry) RemoveAllForGuild(guildID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, inv := range r.pending {
		if inv.GuildID == guildID {
			delete(r.pending, k)
			n++
		}
	}
	return n
}

// Len counts pending invites, expired ones included until the next sweep.
func (r *InviteRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
