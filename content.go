package contentgw

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/connectlist/contentgw/internal/cache"
	"github.com/connectlist/contentgw/providers"
)

// ContentType identifies a kind of content. It is also the provider field of
// every cache key, so two content types served by the same upstream never
// share entries.
type ContentType string

// ContentType constants define the supported content types.
const (
	Movies ContentType = "movies"
	Series ContentType = "series"
	People ContentType = "people"
	Games  ContentType = "games"
	Books  ContentType = "books"
	Videos ContentType = "videos"
)

// Cache key endpoints.
const (
	EndpointSearch  = "search"
	EndpointDetails = "details"
)

var (
	// ErrUnknownContentType is returned for a content type with no route.
	ErrUnknownContentType = errors.New("unknown content type")
	// ErrInvalidID is returned when a details id is malformed for its provider.
	ErrInvalidID = errors.New("invalid content id")
	// ErrProviderNotConfigured is returned when the upstream for a content
	// type has not been registered.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("empty search query")
)

// ContentTypes returns every supported content type.
func ContentTypes() []ContentType {
	return []ContentType{Movies, Series, People, Games, Books, Videos}
}

// ParseContentType parses a content type name (case-insensitive).
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := routes[ct]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownContentType, s)
	}
	return ct, nil
}

// Provider returns the name of the upstream that serves ct, or "" if ct is
// unknown.
func (ct ContentType) Provider() string {
	return routes[ct].provider
}

// request is one upstream call: an endpoint path and its query.
type request struct {
	path   string
	params url.Values
}

// cacheParams returns the request in cache.Params form. The path is included
// so that the same query against two endpoints never collides. query names
// the parameter carried by the key's Query field, which is left out.
func (r request) cacheParams(query string) cache.Params {
	p := cache.Params{"path": r.path}
	for k, vs := range r.params {
		if k == query {
			continue
		}
		if len(vs) == 1 {
			p[k] = vs[0]
			continue
		}
		p[k] = append([]string(nil), vs...)
	}
	return p
}

type route struct {
	provider string
	// queryParam is the upstream parameter the search term is sent as.
	queryParam string
	search     func(query string) request
	details    func(id string) (request, error)
}

var routes = map[ContentType]route{
	Movies: {
		provider:   providers.NameTMDB,
		queryParam: "query",
		search:     tmdbSearch("/search/movie"),
		details: func(id string) (request, error) {
			return tmdbDetails("/movie/", id, "credits,images")
		},
	},
	Series: {
		provider:   providers.NameTMDB,
		queryParam: "query",
		search:     tmdbSearch("/search/tv"),
		details: func(id string) (request, error) {
			return tmdbDetails("/tv/", id, "credits,images")
		},
	},
	People: {
		provider:   providers.NameTMDB,
		queryParam: "query",
		search:     tmdbSearch("/search/person"),
		details: func(id string) (request, error) {
			return tmdbDetails("/person/", id, "combined_credits")
		},
	},
	Games: {
		provider:   providers.NameRAWG,
		queryParam: "search",
		search: func(q string) request {
			return request{path: "/games", params: url.Values{"search": {q}, "page_size": {"10"}}}
		},
		details: func(id string) (request, error) {
			if !numericID(id) {
				return request{}, fmt.Errorf("%w: games id must be numeric, got %q", ErrInvalidID, id)
			}
			return request{path: "/games/" + id}, nil
		},
	},
	Books: {
		provider:   providers.NameGoogleBooks,
		queryParam: "q",
		search: func(q string) request {
			return request{path: "/volumes", params: url.Values{"q": {q}, "maxResults": {"10"}}}
		},
		details: func(id string) (request, error) {
			id = strings.TrimSpace(id)
			if id == "" || strings.ContainsAny(id, "/?#") {
				return request{}, fmt.Errorf("%w: books id %q", ErrInvalidID, id)
			}
			return request{path: "/volumes/" + url.PathEscape(id)}, nil
		},
	},
	Videos: {
		provider:   providers.NameYouTube,
		queryParam: "q",
		search: func(q string) request {
			return request{path: "/search", params: url.Values{
				"part":       {"snippet"},
				"q":          {q},
				"type":       {"video"},
				"maxResults": {"10"},
			}}
		},
		details: func(id string) (request, error) {
			videoID, ok := YouTubeVideoID(id)
			if !ok {
				return request{}, fmt.Errorf("%w: no youtube video id in %q", ErrInvalidID, id)
			}
			return request{path: "/videos", params: url.Values{
				"part": {"snippet,contentDetails,statistics"},
				"id":   {videoID},
			}}, nil
		},
	},
}

func tmdbSearch(path string) func(string) request {
	return func(q string) request {
		return request{path: path, params: url.Values{"query": {q}}}
	}
}

func tmdbDetails(prefix, id, appendTo string) (request, error) {
	if !numericID(id) {
		return request{}, fmt.Errorf("%w: tmdb id must be numeric, got %q", ErrInvalidID, id)
	}
	return request{path: prefix + id, params: url.Values{"append_to_response": {appendTo}}}, nil
}

func numericID(id string) bool {
	if id == "" {
		return false
	}
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}

var (
	youtubeURLPattern = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)
	youtubeIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// YouTubeVideoID extracts the 11-character video id from a bare id or any
// common YouTube URL form (watch, embed, v/, youtu.be).
func YouTubeVideoID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if youtubeIDPattern.MatchString(s) {
		return s, true
	}
	if m := youtubeURLPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}
