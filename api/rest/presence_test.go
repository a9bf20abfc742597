package rest_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/kasuganosora/guildserver/game/guild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence_ConnectShowsTag(t *testing.T) {
	s := newGuildSetup(t)
	tok := tokenFor(t, 1, "alice")
	s.createGuild(t, tok, 1, "Knights")

	w := doJSON(s.r, http.MethodPost, "/api/presence/connect", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[KN]", decode(t, w)["tag"])

	w = doJSON(s.r, http.MethodGet, "/api/presence/online", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = doJSON(s.r, http.MethodPost, "/api/presence/disconnect", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.tracker.IsOnline(1))
}

func TestPresence_HookDispatchesActivePerks(t *testing.T) {
	s := newGuildSetup(t)
	var spawns atomic.Int32
	require.NoError(t, s.svc.RegisterPerk(guild.PerkDefinition{
		ID: "shield", Name: "Shield", Type: guild.PerkPurchasable,
		OnSpawn: func(context.Context, guild.PerkContext) { spawns.Add(1) },
	}))
	tok := tokenFor(t, 1, "alice")
	s.createGuild(t, tok, 1, "Knights")
	require.Equal(t, http.StatusOK, doJSON(s.r, http.MethodPost, "/api/guild/perks/shield", tok, nil).Code)

	w := doJSON(s.r, http.MethodPost, "/api/presence/hooks/spawn", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["perks"], "offline players are ignored")

	require.Equal(t, http.StatusOK, doJSON(s.r, http.MethodPost, "/api/presence/connect", tok, nil).Code)
	w = doJSON(s.r, http.MethodPost, "/api/presence/hooks/spawn", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["perks"])
	assert.Equal(t, int32(1), spawns.Load())

	w = doJSON(s.r, http.MethodPost, "/api/presence/hooks/teleport", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
