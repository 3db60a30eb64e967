package contentgw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/connectlist/contentgw/internal/circuitbreaker"
	"github.com/connectlist/contentgw/internal/ratelimit"
	"github.com/connectlist/contentgw/providers"
)

// guardedProvider wraps a Provider with its outbound limiter and circuit
// breaker. The limiter runs first so waiting calls do not hold a half-open
// probe slot.
type guardedProvider struct {
	providers.Provider
	breaker *circuitbreaker.Breaker
	limiter *ratelimit.Limiter
}

func (g *guardedProvider) Request(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit wait: %w", g.Name(), err)
	}
	return g.breaker.Execute(ctx, func() (json.RawMessage, error) {
		return g.Provider.Request(ctx, endpoint, params)
	})
}

// withSeasons replaces the seasons array of a TMDB show payload with the
// full payload of each season, fetched concurrently. Any season failure
// fails the whole lookup.
func (s *Service) withSeasons(ctx context.Context, p providers.Provider, showID string, show json.RawMessage) (json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(show, &doc); err != nil {
		return nil, fmt.Errorf("decoding series %s: %w", showID, err)
	}
	var seasons []struct {
		SeasonNumber int `json:"season_number"`
	}
	if raw, ok := doc["seasons"]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &seasons); err != nil {
			return nil, fmt.Errorf("decoding series %s seasons: %w", showID, err)
		}
	}
	if len(seasons) == 0 {
		return show, nil
	}

	full := make([]json.RawMessage, len(seasons))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.seasonFan)
	for i, season := range seasons {
		path := "/tv/" + showID + "/season/" + strconv.Itoa(season.SeasonNumber)
		g.Go(func() error {
			body, err := p.Request(gctx, path, nil)
			if err != nil {
				return err
			}
			full[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged, err := json.Marshal(full)
	if err != nil {
		return nil, fmt.Errorf("encoding series %s seasons: %w", showID, err)
	}
	doc["seasons"] = merged
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding series %s: %w", showID, err)
	}
	return out, nil
}
