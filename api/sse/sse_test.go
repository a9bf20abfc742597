package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildserver/cache"
	"github.com/kasuganosora/guildserver/config"
	"github.com/kasuganosora/guildserver/game/guild"
	mw "github.com/kasuganosora/guildserver/middleware"
	"github.com/kasuganosora/guildserver/model"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"github.com/kasuganosora/guildserver/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "sse-secret"

type fakeGuilds struct {
	mu     sync.Mutex
	guilds map[int64]int64 // identity -> guild id
}

func (f *fakeGuilds) set(identity, guildID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if guildID == 0 {
		delete(f.guilds, identity)
		return
	}
	f.guilds[identity] = guildID
}

func (f *fakeGuilds) GetPlayerGuild(_ context.Context, identity int64) (*model.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.guilds[identity]; ok {
		return &model.Guild{ID: id}, nil
	}
	return nil, nil
}

func newHandler(t *testing.T) (*Handler, cache.PubSub, *fakeGuilds) {
	ps := testutil.SetupTestPubSub(t)
	fg := &fakeGuilds{guilds: map[int64]int64{}}
	h := NewHandler(ps, fg, config.SecurityConfig{JWTSecret: secret}, zap.NewNop())
	return h, ps, fg
}

func eventPayload(t *testing.T, ev hook.Event) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"node": "peer", "event": ev})
	require.NoError(t, err)
	return string(b)
}

func TestServeSSE_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, _ := newHandler(t)
	r := gin.New()
	r.GET("/sse", h.ServeSSE)

	for _, path := range []string{"/sse", "/sse?token=bogus"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestServeSSE_StreamsGuildEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, ps, fg := newHandler(t)
	fg.set(1, 10)
	r := gin.New()
	r.GET("/sse", h.ServeSSE)
	srv := httptest.NewServer(r)
	defer srv.Close()

	tok, err := mw.GenerateToken(1, "alice", secret, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse?token="+tok, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if l := lines.Text(); strings.HasPrefix(l, "event: ") {
				return strings.TrimPrefix(l, "event: ")
			}
		}
		return ""
	}
	require.Equal(t, "connected", next())

	require.NoError(t, ps.Publish(ctx, guild.ChannelEvents, eventPayload(t, hook.Event{Kind: hook.MemberLeft, GuildID: 99})))
	require.NoError(t, ps.Publish(ctx, guild.ChannelEvents, eventPayload(t, hook.Event{Kind: hook.MemberJoined, GuildID: 10, Identity: 5})))
	assert.Equal(t, string(hook.MemberJoined), next(), "the unrelated guild's event is skipped")
}
