package analytics

import (
	"net/url"
	"strings"

	"beacon/internal/config"
	"beacon/internal/models"
	"beacon/pkg/logger"
)

// defaultUserAgent is the legacy placeholder sent when the request supplies
// no user agent of its own.
const defaultUserAgent = "Mozilla/5.0 (Windows; U; Windows NT 5.1; en-US; rv:1.8.1.13) Gecko/20080311 Firefox/2.0.0.13"

const protocolVersion = "2"

// SiteMeta is the external site-metadata collaborator; when present and
// render-enabled its site name becomes the hit's affiliation.
type SiteMeta interface {
	RenderEnabled() bool
	SiteName() string
}

// HitBuilder composes Hits from request metadata, resolved identity and
// campaign context. It returns no Hit when tracking is unconfigured.
type HitBuilder struct {
	settings *config.TrackingSettings
	siteURL  string
	meta     SiteMeta
	log      *logger.Logger
}

// NewHitBuilder constructs a builder. siteURL is the site's canonical base
// URL, used as a hostname fallback; meta may be nil.
func NewHitBuilder(settings *config.TrackingSettings, siteURL string, meta SiteMeta, log *logger.Logger) *HitBuilder {
	return &HitBuilder{
		settings: settings,
		siteURL:  siteURL,
		meta:     meta,
		log:      log,
	}
}

// PageView builds a page-view Hit. An empty path falls back to the request
// path. The second return is false when tracking is not configured.
func (b *HitBuilder) PageView(path, title string, rc models.RequestContext, identity models.ClientIdentity, campaign models.CampaignParams) (*models.Hit, bool) {
	hit, ok := b.base(rc, identity, campaign)
	if !ok {
		return nil, false
	}

	hit.Kind = models.HitPageView
	hit.DocumentPath = b.documentPath(path, rc)
	hit.DocumentTitle = title

	b.log.Debug("Built page view hit", map[string]any{
		"path":  hit.DocumentPath,
		"title": title,
	})
	return hit, true
}

// Event builds a custom-event Hit. An empty path falls back to the request
// path, so events attribute to the page that produced them.
func (b *HitBuilder) Event(path, category, action, label string, value int, rc models.RequestContext, identity models.ClientIdentity, campaign models.CampaignParams) (*models.Hit, bool) {
	hit, ok := b.base(rc, identity, campaign)
	if !ok {
		return nil, false
	}

	hit.Kind = models.HitEvent
	hit.DocumentPath = b.documentPath(path, rc)
	hit.EventCategory = category
	hit.EventAction = action
	hit.EventLabel = label
	hit.EventValue = value

	b.log.Debug("Built event hit", map[string]any{
		"category": category,
		"action":   action,
		"label":    label,
		"value":    value,
	})
	return hit, true
}

func (b *HitBuilder) documentPath(path string, rc models.RequestContext) string {
	if path == "" {
		path = rc.Path
	}
	return DocumentPathFromURL(path, b.settings.StripQueryString)
}

// base assembles the fields every hit carries. Returning false signals
// configuration absence, not an error.
func (b *HitBuilder) base(rc models.RequestContext, identity models.ClientIdentity, campaign models.CampaignParams) (*models.Hit, bool) {
	if b.settings.MeasurementID == "" {
		b.log.Debug("Tracking not configured, skipping hit")
		return nil, false
	}

	hostname := rc.Host
	if hostname == "" {
		hostname = b.siteHostname()
	}

	userAgent := rc.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	hit := &models.Hit{
		ClientID:         identity.ClientID,
		AdClickID:        identity.AdClickID,
		Campaign:         campaign,
		IPAddress:        rc.IPAddress,
		UserAgent:        userAgent,
		DocumentHostName: hostname,
		DocumentReferrer: rc.Referrer,
		ProtocolVersion:  protocolVersion,
	}

	if b.meta != nil && b.meta.RenderEnabled() {
		hit.Affiliation = b.meta.SiteName()
	}

	return hit, true
}

// siteHostname derives a hostname from the canonical site URL; failure is
// logged and leaves the hostname empty.
func (b *HitBuilder) siteHostname() string {
	if b.siteURL == "" {
		b.log.Error("No request hostname and no site base URL configured")
		return ""
	}
	parsed, err := url.Parse(b.siteURL)
	if err != nil || parsed.Host == "" {
		b.log.Error("Could not derive hostname from site base URL", map[string]any{
			"site_url": b.siteURL,
		})
		return ""
	}
	return parsed.Hostname()
}

// DocumentPathFromURL normalizes a path or URL into the root-relative
// document path sent with a hit: absolute URLs lose scheme and host,
// protocol-relative URLs lose one leading slash, the query string is
// stripped when configured, and an empty result becomes "/".
func DocumentPathFromURL(raw string, stripQueryString bool) string {
	result := raw

	if parsed, err := url.Parse(raw); err == nil && parsed.Scheme != "" {
		result = parsed.Path
		if parsed.RawQuery != "" {
			result = result + "?" + parsed.RawQuery
		}
	}

	if strings.HasPrefix(result, "//") {
		result = result[1:]
	}

	if stripQueryString {
		if i := strings.Index(result, "?"); i >= 0 {
			result = result[:i]
		}
	}

	if result == "" {
		result = "/"
	}

	return result
}
