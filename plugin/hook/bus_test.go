package hook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestPublish_NoHandlers(t *testing.T) {
	b := NewBus(nop())
	assert.NotPanics(t, func() { b.Publish(context.Background(), Event{Kind: GuildCreated}) })
}

func TestPublish_DeliversMatchingKind(t *testing.T) {
	b := NewBus(nop())
	var got []Event
	b.Subscribe(MemberJoined, 0, "joins", func(_ context.Context, ev Event) { got = append(got, ev) })

	b.Publish(context.Background(), Event{Kind: MemberJoined, GuildID: 7, Identity: 42})
	b.Publish(context.Background(), Event{Kind: MemberLeft, GuildID: 7, Identity: 42})

	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].Identity)
	assert.False(t, got[0].At.IsZero(), "publish stamps the event time")
}

func TestPublish_PriorityOrder(t *testing.T) {
	b := NewBus(nop())
	var order []string
	b.Subscribe(GuildCreated, 10, "late", func(context.Context, Event) { order = append(order, "late") })
	b.Subscribe(Any, 0, "any", func(context.Context, Event) { order = append(order, "any") })
	b.Subscribe(GuildCreated, 1, "early", func(context.Context, Event) { order = append(order, "early") })

	b.Publish(context.Background(), Event{Kind: GuildCreated})
	assert.Equal(t, []string{"early", "late", "any"}, order)
}

func TestSubscription_Unsubscribe(t *testing.T) {
	b := NewBus(nop())
	calls := 0
	sub := b.Subscribe(InviteSent, 0, "h", func(context.Context, Event) { calls++ })
	other := b.Subscribe(InviteSent, 0, "h", func(context.Context, Event) {})
	assert.Equal(t, 2, b.Count(InviteSent))

	sub.Unsubscribe()
	sub.Unsubscribe()
	b.Publish(context.Background(), Event{Kind: InviteSent})
	assert.Zero(t, calls)
	assert.Equal(t, 1, b.Count(InviteSent), "same-named handlers are detached independently")

	other.Unsubscribe()
	assert.Zero(t, b.Count(InviteSent))
}

func TestPublish_HandlerPanicIsolated(t *testing.T) {
	b := NewBus(nop())
	reached := false
	b.Subscribe(GuildDisbanded, 0, "bad", func(context.Context, Event) { panic("boom") })
	b.Subscribe(GuildDisbanded, 1, "good", func(context.Context, Event) { reached = true })

	assert.NotPanics(t, func() { b.Publish(context.Background(), Event{Kind: GuildDisbanded}) })
	assert.True(t, reached)
}

func TestSubscribe_DuringPublish(t *testing.T) {
	b := NewBus(nop())
	calls := 0
	b.Subscribe(MemberKicked, 0, "adder", func(context.Context, Event) {
		b.Subscribe(MemberKicked, 0, "added", func(context.Context, Event) { calls++ })
	})
	b.Publish(context.Background(), Event{Kind: MemberKicked})
	assert.Zero(t, calls, "handlers added mid-publish see the next event only")
	b.Publish(context.Background(), Event{Kind: MemberKicked})
	assert.Equal(t, 1, calls)
}
