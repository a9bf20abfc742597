package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/guildserver/config"
	"github.com/kasuganosora/guildserver/game/chat"
	"github.com/kasuganosora/guildserver/game/guild"
	mw "github.com/kasuganosora/guildserver/middleware"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"github.com/kasuganosora/guildserver/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wsSecret = "ws-secret"

func newWSServer(t *testing.T) (*guildFixture, *Handler, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newGuildFixture(t)
	ps := testutil.SetupTestPubSub(t)
	relay := guild.NewRelay(ps, f.svc.Cache(), f.svc.Bus(), nop())
	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(relay.Stop)

	cs := chat.NewService(f.svc, ps, config.DefaultGuild(), nop())
	require.NoError(t, cs.Start(context.Background()))
	t.Cleanup(cs.Stop)
	NewGuildHandlers(f.svc, f.tracker, nop()).WithChat(cs).Register(f.router)

	h := NewHandler(config.SecurityConfig{JWTSecret: wsSecret}, f.tracker, f.svc, ps, f.router, nop())
	r := gin.New()
	r.GET("/ws", h.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, h, srv
}

func dial(t *testing.T, srv *httptest.Server, identity int64, name string) *websocket.Conn {
	t.Helper()
	tok, err := mw.GenerateToken(identity, name, wsSecret, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType reads packets until one of type want arrives.
func readType(t *testing.T, conn *websocket.Conn, want string) Packet {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var p Packet
		require.NoError(t, json.Unmarshal(raw, &p))
		if p.Type == want {
			return p
		}
	}
}

func TestServeWS_Unauthorized(t *testing.T) {
	_, _, srv := newWSServer(t)
	for _, q := range []string{"", "?token=bogus"} {
		resp, err := http.Get(srv.URL + "/ws" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, q)
	}
}

func TestServeWS_PresenceAndFeed(t *testing.T) {
	f, h, srv := newWSServer(t)
	ctx := context.Background()

	conn := dial(t, srv, 1, "alice")
	readType(t, conn, "connected")
	assert.True(t, f.tracker.IsOnline(1))
	assert.Equal(t, 1, h.Count())

	require.NoError(t, f.wallet.AddBalance(ctx, 1, "credits", 5000))
	_, res, err := f.svc.Create(ctx, guild.Player{Identity: 1, Name: "alice"}, "Socket", "SK")
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	readType(t, conn, string(hook.GuildCreated))

	pkt, err := json.Marshal(Packet{Seq: 1, Type: "guild_info"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, pkt))
	p := readType(t, conn, "guild_info")
	assert.Equal(t, uint64(1), p.Seq)
	assert.Contains(t, string(p.Payload), `"tag":"[SK]"`)

	pkt, err = json.Marshal(Packet{Seq: 2, Type: "guild_chat", Payload: json.RawMessage(`{"content":"hello"}`)})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, pkt))
	p = readType(t, conn, "chat")
	var line chat.Message
	require.NoError(t, json.Unmarshal(p.Payload, &line))
	assert.Equal(t, "hello", line.Content)
	assert.Equal(t, "alice", line.FromName)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !f.tracker.IsOnline(1) }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_ReconnectDisplacesOldSession(t *testing.T) {
	f, h, srv := newWSServer(t)

	first := dial(t, srv, 3, "carol")
	readType(t, first, "connected")
	second := dial(t, srv, 3, "carol")
	readType(t, second, "connected")

	// the displaced connection closing must not take the player offline
	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.tracker.IsOnline(3))
}
