package analytics

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	pageViewTrackRoute = "/track/page-view"
	eventTrackRoute    = "/track/event"
)

// TrackingURLGenerator builds same-site redirect URLs for out-of-band
// tracking, e.g. links embedded in outgoing email. Visiting the URL records
// one hit through the standard pipeline and then redirects to the target.
type TrackingURLGenerator struct {
	siteURL string
}

func NewTrackingURLGenerator(siteURL string) *TrackingURLGenerator {
	return &TrackingURLGenerator{siteURL: siteURL}
}

// PageViewTrackingURL returns a URL that records a page view for target
// before redirecting to it.
func (g *TrackingURLGenerator) PageViewTrackingURL(target, title string) (string, error) {
	params := url.Values{}
	params.Set("url", target)
	params.Set("title", title)
	return g.build(pageViewTrackRoute, target, params)
}

// EventTrackingURL returns a URL that records an event for target before
// redirecting to it.
func (g *TrackingURLGenerator) EventTrackingURL(target, category, action, label string, value int) (string, error) {
	params := url.Values{}
	params.Set("url", target)
	params.Set("eventCategory", category)
	params.Set("eventAction", action)
	params.Set("eventLabel", label)
	params.Set("eventValue", strconv.Itoa(value))
	return g.build(eventTrackRoute, target, params)
}

func (g *TrackingURLGenerator) build(route, target string, params url.Values) (string, error) {
	base, err := url.Parse(g.siteURL)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("invalid site base URL %q", g.siteURL)
	}

	path := strings.TrimRight(base.Path, "/") + route
	// The trailing segment is cosmetic, for log readability only.
	if segment := lastPathSegment(target); segment != "" {
		path += "/" + segment
	}

	base.Path = path
	base.RawQuery = params.Encode()
	return base.String(), nil
}

// lastPathSegment returns the final non-empty "/"-delimited segment of the
// target URL's path, or empty when there is none.
func lastPathSegment(target string) string {
	path := target
	if parsed, err := url.Parse(target); err == nil && parsed.Scheme != "" {
		path = parsed.Path
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}
