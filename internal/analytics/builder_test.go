package analytics

import (
	"testing"

	"beacon/internal/config"
	"beacon/internal/models"
)

type staticMeta struct {
	enabled bool
	name    string
}

func (m staticMeta) RenderEnabled() bool { return m.enabled }
func (m staticMeta) SiteName() string    { return m.name }

func builderSettings() *config.TrackingSettings {
	return &config.TrackingSettings{
		MeasurementID:    "G-TEST",
		StripQueryString: true,
	}
}

func TestDocumentPathFromURL(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		strip bool
		want  string
	}{
		{"absolute url stripped", "https://example.com/foo?x=1", true, "/foo"},
		{"absolute url query kept", "https://example.com/foo?x=1", false, "/foo?x=1"},
		{"empty becomes root", "", true, "/"},
		{"plain path untouched", "/bar/baz", true, "/bar/baz"},
		{"protocol relative loses one slash", "//example.com/bar", false, "/example.com/bar"},
		{"single leading slash kept", "/example.com/bar", false, "/example.com/bar"},
		{"relative path query stripped", "/foo?a=b&c=d", true, "/foo"},
		{"absolute url no path", "https://example.com", true, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DocumentPathFromURL(tt.raw, tt.strip); got != tt.want {
				t.Errorf("DocumentPathFromURL(%q, %v) = %q, want %q", tt.raw, tt.strip, got, tt.want)
			}
		})
	}
}

func TestPageViewHit(t *testing.T) {
	builder := NewHitBuilder(builderSettings(), "https://example.com", nil, testLogger())
	rc := browserRequest()
	identity := models.ClientIdentity{ClientID: "111.222", AdClickID: "gclid-1"}
	campaign := models.CampaignParams{Source: "ads"}

	hit, ok := builder.PageView("https://example.com/foo?x=1", "Foo", rc, identity, campaign)
	if !ok {
		t.Fatal("Expected a hit to be built")
	}

	if hit.Kind != models.HitPageView {
		t.Errorf("Expected page view kind, got %q", hit.Kind)
	}
	if hit.DocumentPath != "/foo" {
		t.Errorf("Expected normalized path /foo, got %q", hit.DocumentPath)
	}
	if hit.DocumentTitle != "Foo" {
		t.Errorf("Expected title Foo, got %q", hit.DocumentTitle)
	}
	if hit.ClientID != "111.222" || hit.AdClickID != "gclid-1" {
		t.Errorf("Expected identity carried onto hit, got %q/%q", hit.ClientID, hit.AdClickID)
	}
	if hit.Campaign.Source != "ads" {
		t.Errorf("Expected campaign carried onto hit, got %+v", hit.Campaign)
	}
	if hit.DocumentHostName != "example.com" {
		t.Errorf("Expected request hostname, got %q", hit.DocumentHostName)
	}
	if hit.UserAgent != browserRequest().UserAgent {
		t.Errorf("Expected request user agent, got %q", hit.UserAgent)
	}
}

func TestPageViewDefaultsPathToRequest(t *testing.T) {
	builder := NewHitBuilder(builderSettings(), "", nil, testLogger())
	rc := browserRequest()

	hit, ok := builder.PageView("", "", rc, models.ClientIdentity{}, models.CampaignParams{})
	if !ok {
		t.Fatal("Expected a hit to be built")
	}
	if hit.DocumentPath != rc.Path {
		t.Errorf("Expected request path fallback, got %q", hit.DocumentPath)
	}
}

func TestEventHit(t *testing.T) {
	builder := NewHitBuilder(builderSettings(), "", nil, testLogger())
	rc := browserRequest()

	hit, ok := builder.Event("", "cat", "act", "lbl", 5, rc, models.ClientIdentity{ClientID: "c"}, models.CampaignParams{})
	if !ok {
		t.Fatal("Expected a hit to be built")
	}

	if hit.Kind != models.HitEvent {
		t.Errorf("Expected event kind, got %q", hit.Kind)
	}
	if hit.EventCategory != "cat" || hit.EventAction != "act" || hit.EventLabel != "lbl" || hit.EventValue != 5 {
		t.Errorf("Unexpected event fields: %+v", hit)
	}
	if hit.DocumentPath != rc.Path {
		t.Errorf("Expected event attributed to request path, got %q", hit.DocumentPath)
	}
}

func TestBuilderRequiresMeasurementID(t *testing.T) {
	settings := builderSettings()
	settings.MeasurementID = ""
	builder := NewHitBuilder(settings, "", nil, testLogger())

	if _, ok := builder.PageView("/foo", "", browserRequest(), models.ClientIdentity{}, models.CampaignParams{}); ok {
		t.Error("Expected no hit when measurement ID is unset")
	}
	if _, ok := builder.Event("", "c", "a", "l", 0, browserRequest(), models.ClientIdentity{}, models.CampaignParams{}); ok {
		t.Error("Expected no event hit when measurement ID is unset")
	}
}

func TestBuilderHostnameFallback(t *testing.T) {
	builder := NewHitBuilder(builderSettings(), "https://fallback.example.com/base", nil, testLogger())
	rc := browserRequest()
	rc.Host = ""

	hit, ok := builder.PageView("/foo", "", rc, models.ClientIdentity{}, models.CampaignParams{})
	if !ok {
		t.Fatal("Expected a hit to be built")
	}
	if hit.DocumentHostName != "fallback.example.com" {
		t.Errorf("Expected hostname from site URL, got %q", hit.DocumentHostName)
	}
}

func TestBuilderHostnameFailureIsNonFatal(t *testing.T) {
	builder := NewHitBuilder(builderSettings(), "", nil, testLogger())
	rc := browserRequest()
	rc.Host = ""

	hit, ok := builder.PageView("/foo", "", rc, models.ClientIdentity{}, models.CampaignParams{})
	if !ok {
		t.Fatal("Expected hit despite hostname failure")
	}
	if hit.DocumentHostName != "" {
		t.Errorf("Expected empty hostname, got %q", hit.DocumentHostName)
	}
}

func TestBuilderDefaultUserAgent(t *testing.T) {
	builder := NewHitBuilder(builderSettings(), "", nil, testLogger())
	rc := browserRequest()
	rc.UserAgent = ""

	hit, _ := builder.PageView("/foo", "", rc, models.ClientIdentity{}, models.CampaignParams{})
	if hit.UserAgent != defaultUserAgent {
		t.Errorf("Expected legacy placeholder user agent, got %q", hit.UserAgent)
	}
}

func TestBuilderAffiliation(t *testing.T) {
	tests := []struct {
		name string
		meta SiteMeta
		want string
	}{
		{"no collaborator", nil, ""},
		{"render disabled", staticMeta{enabled: false, name: "Example"}, ""},
		{"render enabled", staticMeta{enabled: true, name: "Example"}, "Example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := NewHitBuilder(builderSettings(), "", tt.meta, testLogger())
			hit, _ := builder.PageView("/foo", "", browserRequest(), models.ClientIdentity{}, models.CampaignParams{})
			if hit.Affiliation != tt.want {
				t.Errorf("Expected affiliation %q, got %q", tt.want, hit.Affiliation)
			}
		})
	}
}
