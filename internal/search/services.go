package search

import (
	"regexp"
	"strings"
)

// Service is one streaming service with Roku deep-link support: where
// its watch pages live and how to pull a content ID out of their URLs.
type Service struct {
	Name             string
	ChannelID        int
	Domains          []string
	Patterns         []*regexp.Regexp
	DefaultMediaType string
}

var (
	netflix = Service{
		Name:      "netflix",
		ChannelID: 12,
		Domains:   []string{"netflix.com"},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`netflix\.com/(?:\w{2}(?:-\w{2})?/)?title/(\d+)`),
			regexp.MustCompile(`netflix\.com/(?:\w{2}(?:-\w{2})?/)?watch/(\d+)`),
		},
		DefaultMediaType: "movie",
	}

	amazonPrime = Service{
		Name:      "amazon_prime",
		ChannelID: 13,
		Domains:   []string{"amazon.com", "primevideo.com"},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`amazon\.com/gp/video/detail/([A-Z0-9]{10,})`),
			regexp.MustCompile(`amazon\.com/(?:[^/]+/)?dp/([A-Z0-9]{10,})`),
			regexp.MustCompile(`primevideo\.com/(?:[a-z-]+/)*detail/(?:[^/]+/)?([A-Z0-9]{10,})`),
		},
		DefaultMediaType: "movie",
	}

	hulu = Service{
		Name:      "hulu",
		ChannelID: 2285,
		Domains:   []string{"hulu.com"},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`hulu\.com/(?:series|watch|movie)/(?:[a-z0-9-]+-)?([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`),
		},
		DefaultMediaType: "movie",
	}

	disneyPlus = Service{
		Name:      "disney_plus",
		ChannelID: 291097,
		Domains:   []string{"disneyplus.com"},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`disneyplus\.com/(?:\w{2}(?:-\w{2})?/)?(?:movies|series|video)/[^/]+/([0-9A-Za-z]{12})`),
		},
		DefaultMediaType: "movie",
	}

	maxService = Service{
		Name:      "max",
		ChannelID: 61322,
		Domains:   []string{"max.com", "play.max.com"},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:play\.)?max\.com/(?:movie|show|episode|season|video)/([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`),
		},
		DefaultMediaType: "movie",
	}

	appleTVPlus = Service{
		Name:      "apple_tv_plus",
		ChannelID: 551012,
		Domains:   []string{"tv.apple.com"},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`tv\.apple\.com/(?:\w{2}/)?(?:show|movie|episode)/[^/]+/(umc\.cmc\.[a-z0-9]+)`),
		},
		DefaultMediaType: "movie",
	}
)

// registry maps service names to definitions.
var registry = map[string]Service{
	netflix.Name:     netflix,
	amazonPrime.Name: amazonPrime,
	hulu.Name:        hulu,
	disneyPlus.Name:  disneyPlus,
	maxService.Name:  maxService,
	appleTVPlus.Name: appleTVPlus,
}

// defaultPriority is the match order when no priority is configured.
var defaultPriority = []Service{netflix, hulu, disneyPlus, maxService, appleTVPlus, amazonPrime}

// DefaultServices returns the registry in default priority order.
func DefaultServices() []Service {
	out := make([]Service, len(defaultPriority))
	copy(out, defaultPriority)
	return out
}

// ServicesByName resolves a configured priority list into service
// definitions, preserving order and skipping unknown names. An empty
// result falls back to the default priority.
func ServicesByName(names []string) []Service {
	var out []Service
	for _, name := range names {
		if svc, ok := registry[strings.TrimSpace(name)]; ok {
			out = append(out, svc)
		}
	}
	if len(out) == 0 {
		return DefaultServices()
	}
	return out
}

// MatchURL matches a URL against the services in priority order and
// extracts the first content ID found.
func MatchURL(rawURL string, services []Service) (Service, string, bool) {
	if len(services) == 0 {
		services = DefaultServices()
	}
	for _, svc := range services {
		for _, pattern := range svc.Patterns {
			if m := pattern.FindStringSubmatch(rawURL); m != nil {
				return svc, m[1], true
			}
		}
	}
	return Service{}, "", false
}

// SiteFilters builds the search-query site: filter for the services,
// e.g. "site:netflix.com OR site:hulu.com".
func SiteFilters(services []Service) string {
	if len(services) == 0 {
		services = DefaultServices()
	}
	var parts []string
	for _, svc := range services {
		for _, domain := range svc.Domains {
			parts = append(parts, "site:"+domain)
		}
	}
	return strings.Join(parts, " OR ")
}
