package hook

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Kind names a guild event.
type Kind string

const (
	GuildCreated   Kind = "guild_created"
	GuildRenamed   Kind = "guild_renamed"
	GuildDisbanded Kind = "guild_disbanded"
	MemberJoined   Kind = "member_joined"
	MemberLeft     Kind = "member_left"
	MemberKicked   Kind = "member_kicked"
	MemberPromoted Kind = "member_promoted"
	MemberDemoted  Kind = "member_demoted"
	InviteSent     Kind = "invite_sent"

	BankChanged      Kind = "bank_changed"
	UpgradePurchased Kind = "upgrade_purchased"
	PerkPurchased    Kind = "perk_purchased"
	PerkToggled      Kind = "perk_toggled"

	// Any subscribes to every kind.
	Any Kind = "*"
)

// Event describes a completed guild mutation. Fields that do not apply to a
// kind are left zero.
type Event struct {
	Kind          Kind      `json:"kind"`
	GuildID       int64     `json:"guild_id"`
	GuildName     string    `json:"guild_name,omitempty"`
	GuildTag      string    `json:"guild_tag,omitempty"`
	Identity      int64     `json:"identity,omitempty"`       // subject: joiner, kicked member, invitee...
	ActorIdentity int64     `json:"actor_identity,omitempty"` // who caused it
	RankPriority  int       `json:"rank_priority,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Balance       int64     `json:"balance,omitempty"`
	Level         int       `json:"level,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Detail        string    `json:"detail,omitempty"` // upgrade type, perk id, old name...
	At            time.Time `json:"at"`
}

// HandlerFn receives published events on the publisher's goroutine.
type HandlerFn func(ctx context.Context, ev Event)

type handlerEntry struct {
	id       uint64
	kind     Kind
	priority int
	name     string
	fn       HandlerFn
}

// Bus delivers events synchronously to subscribers in priority order
// (lower runs first). A panicking handler is logged and skipped.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]*handlerEntry
	nextID   atomic.Uint64
	logger   *zap.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{handlers: make(map[Kind][]*handlerEntry), logger: logger}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus  *Bus
	kind Kind
	id   uint64
	once sync.Once
}

// Unsubscribe detaches the handler. Calling it again is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.kind, s.id) })
}

// Subscribe attaches fn to events of kind, or to every event when kind is Any.
func (b *Bus) Subscribe(kind Kind, priority int, name string, fn HandlerFn) *Subscription {
	e := &handlerEntry{id: b.nextID.Add(1), kind: kind, priority: priority, name: name, fn: fn}
	b.mu.Lock()
	entries := append(b.handlers[kind], e)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].priority < entries[j].priority })
	b.handlers[kind] = entries
	b.mu.Unlock()
	return &Subscription{bus: b, kind: kind, id: e.id}
}

func (b *Bus) remove(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[kind]
	out := entries[:0]
	for _, e := range entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		delete(b.handlers, kind)
		return
	}
	b.handlers[kind] = out
}

// Count reports how many handlers would receive an event of kind.
func (b *Bus) Count(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if kind == Any {
		return len(b.handlers[Any])
	}
	return len(b.handlers[kind]) + len(b.handlers[Any])
}

// Publish runs every handler for ev.Kind, then every Any handler, before
// returning. A zero ev.At is stamped with the current time.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	entries := make([]*handlerEntry, 0, len(b.handlers[ev.Kind])+len(b.handlers[Any]))
	entries = append(entries, b.handlers[ev.Kind]...)
	if ev.Kind != Any {
		entries = append(entries, b.handlers[Any]...)
	}
	b.mu.RUnlock()

	for _, e := range entries {
		b.call(ctx, e, ev)
	}
}

func (b *Bus) call(ctx context.Context, e *handlerEntry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("handler", e.name),
				zap.String("kind", string(ev.Kind)),
				zap.Any("recover", r))
		}
	}()
	e.fn(ctx, ev)
}
