package guild

import (
	"context"
	"time"

	"github.com/kasuganosora/guildserver/model"
)

// OnPlayerConnect refreshes the member's display name and last-seen time
// and returns the scoreboard tag to show, empty when none.
func (s *Service) OnPlayerConnect(ctx context.Context, p Player) (string, error) {
	g, err := s.cache.GetByIdentity(ctx, p.Identity)
	if err != nil || g == nil {
		return "", err
	}
	if err := s.store.TouchMember(ctx, p.Identity, p.Name, s.now()); err != nil {
		return "", err
	}
	if m := g.Member(p.Identity); m != nil && m.DisplayName != p.Name {
		s.cache.InvalidateGuild(g.ID)
	}
	return s.ScoreboardTag(g), nil
}

// OnPlayerDisconnect drops the identity's cached association.
func (s *Service) OnPlayerDisconnect(identity int64) {
	s.cache.InvalidateIdentity(identity)
}

// PlayerTag returns the scoreboard tag for identity.
func (s *Service) PlayerTag(ctx context.Context, identity int64) (string, error) {
	g, err := s.cache.GetByIdentity(ctx, identity)
	if err != nil || g == nil {
		return "", err
	}
	return s.ScoreboardTag(g), nil
}

// ScoreboardTag formats the tag shown next to member names.
func (s *Service) ScoreboardTag(g *model.Guild) string {
	if !s.cfg.ShowTagOnScoreboard || g == nil || g.Tag == "" {
		return ""
	}
	return "[" + g.Tag + "]"
}

// ScoreboardInterval is how often online tags are refreshed; zero disables.
func (s *Service) ScoreboardInterval() time.Duration {
	if !s.cfg.ShowTagOnScoreboard {
		return 0
	}
	return s.cfg.ScoreboardRefreshInterval
}
