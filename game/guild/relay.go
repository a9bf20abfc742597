package guild

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/guildserver/cache"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"go.uber.org/zap"
)

// PubSub channels shared by every node.
const (
	ChannelInvalidate = "guild:invalidate"
	ChannelEvents     = "guild:events"
)

const relayQueueSize = 1024

type invalidationMsg struct {
	Node string `json:"node"`
	Invalidation
}

type eventMsg struct {
	Node  string     `json:"node"`
	Event hook.Event `json:"event"`
}

type outbound struct {
	channel string
	payload []byte
}

// Relay keeps peer nodes' guild caches coherent. Local invalidations and
// events are published on PubSub; invalidations from peers are applied to
// the local cache and their events handed to OnRemoteEvent handlers.
// A node ignores its own messages.
type Relay struct {
	ps     cache.PubSub
	cache  *GuildCache
	bus    *hook.Bus
	nodeID string
	logger *zap.Logger

	qmu    sync.RWMutex
	queue  chan outbound
	closed bool

	mu       sync.RWMutex
	onRemote []hook.HandlerFn

	sub    *hook.Subscription
	cancel func()
	wg     sync.WaitGroup
	once   sync.Once
}

func NewRelay(ps cache.PubSub, gc *GuildCache, bus *hook.Bus, logger *zap.Logger) *Relay {
	return &Relay{
		ps:     ps,
		cache:  gc,
		bus:    bus,
		nodeID: uuid.NewString(),
		logger: logger,
		queue:  make(chan outbound, relayQueueSize),
	}
}

// NodeID identifies this process on the relay channels.
func (r *Relay) NodeID() string { return r.nodeID }

// OnRemoteEvent registers fn for events that happened on other nodes.
func (r *Relay) OnRemoteEvent(fn hook.HandlerFn) {
	r.mu.Lock()
	r.onRemote = append(r.onRemote, fn)
	r.mu.Unlock()
}

// Start subscribes to peer traffic and begins forwarding local changes.
func (r *Relay) Start(ctx context.Context) error {
	msgs, cancel, err := r.ps.Subscribe(ctx, ChannelInvalidate, ChannelEvents)
	if err != nil {
		return err
	}
	r.cancel = cancel
	r.cache.OnInvalidate(r.forwardInvalidation)
	if r.bus != nil {
		r.sub = r.bus.Subscribe(hook.Any, 1000, "guild-relay", r.forwardEvent)
	}

	r.wg.Add(2)
	go r.receive(ctx, msgs)
	go r.send()
	return nil
}

// Stop detaches from the cache, bus and PubSub. Safe to call more than once.
func (r *Relay) Stop() {
	r.once.Do(func() {
		r.cache.OnInvalidate(nil)
		if r.sub != nil {
			r.sub.Unsubscribe()
		}
		if r.cancel != nil {
			r.cancel()
		}
		r.qmu.Lock()
		r.closed = true
		close(r.queue)
		r.qmu.Unlock()
		r.wg.Wait()
	})
}

func (r *Relay) enqueue(channel string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("relay marshal", zap.String("channel", channel), zap.Error(err))
		return
	}
	r.qmu.RLock()
	defer r.qmu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- outbound{channel: channel, payload: b}:
	default:
		// Peers fall back to TTL expiry.
		r.logger.Warn("relay queue full, dropping", zap.String("channel", channel))
	}
}

func (r *Relay) forwardInvalidation(inv Invalidation) {
	r.enqueue(ChannelInvalidate, invalidationMsg{Node: r.nodeID, Invalidation: inv})
}

func (r *Relay) forwardEvent(_ context.Context, ev hook.Event) {
	r.enqueue(ChannelEvents, eventMsg{Node: r.nodeID, Event: ev})
}

func (r *Relay) send() {
	defer r.wg.Done()
	for out := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.ps.Publish(ctx, out.channel, string(out.payload)); err != nil {
			r.logger.Warn("relay publish failed", zap.String("channel", out.channel), zap.Error(err))
		}
		cancel()
	}
}

func (r *Relay) receive(ctx context.Context, msgs <-chan *cache.Message) {
	defer r.wg.Done()
	for msg := range msgs {
		switch msg.Channel {
		case ChannelInvalidate:
			var m invalidationMsg
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.logger.Warn("relay bad invalidation", zap.Error(err))
				continue
			}
			if m.Node == r.nodeID {
				continue
			}
			r.cache.Apply(m.Invalidation)
		case ChannelEvents:
			var m eventMsg
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.logger.Warn("relay bad event", zap.Error(err))
				continue
			}
			if m.Node == r.nodeID {
				continue
			}
			r.mu.RLock()
			handlers := r.onRemote
			r.mu.RUnlock()
			for _, fn := range handlers {
				fn(ctx, m.Event)
			}
		}
	}
}
