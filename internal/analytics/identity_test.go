package analytics

import (
	"regexp"
	"testing"

	"beacon/internal/config"
	"beacon/internal/models"
)

// memCookies is an in-memory CookieStore that records requested writes.
type memCookies struct {
	values map[string]string
	writes []models.Cookie
}

func newMemCookies(values map[string]string) *memCookies {
	if values == nil {
		values = map[string]string{}
	}
	return &memCookies{values: values}
}

func (m *memCookies) Get(name string) string { return m.values[name] }

func (m *memCookies) Set(cookie models.Cookie) {
	for _, w := range m.writes {
		if w.Name == cookie.Name {
			return
		}
	}
	m.writes = append(m.writes, cookie)
	m.values[cookie.Name] = cookie.Value
}

func (m *memCookies) written(name string) *models.Cookie {
	for i := range m.writes {
		if m.writes[i].Name == name {
			return &m.writes[i]
		}
	}
	return nil
}

var uuidV4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func identitySettings() *config.TrackingSettings {
	return &config.TrackingSettings{
		RequireGaCookieClientID: false,
		CreateClientIDCookie:    true,
		CreateGclidCookie:       true,
	}
}

func TestResolveFromGaCookie(t *testing.T) {
	cookies := newMemCookies(map[string]string{"_ga": "GA1.2.111.222"})
	resolver := NewIdentityResolver(identitySettings())

	identity := resolver.Resolve(models.RequestContext{}, cookies)
	if identity.ClientID != "111.222" {
		t.Errorf("Expected client ID 111.222, got %q", identity.ClientID)
	}

	// A derived ID is persisted to the fallback cookie.
	if w := cookies.written("_ia"); w == nil || w.Value != "111.222" {
		t.Errorf("Expected _ia cookie write with derived ID, got %+v", w)
	}
}

func TestResolveFromFallbackCookie(t *testing.T) {
	cookies := newMemCookies(map[string]string{"_ia": "abc123"})
	resolver := NewIdentityResolver(identitySettings())

	identity := resolver.Resolve(models.RequestContext{}, cookies)
	if identity.ClientID != "abc123" {
		t.Errorf("Expected client ID abc123, got %q", identity.ClientID)
	}

	// An ID already stored in _ia is not rewritten.
	if w := cookies.written("_ia"); w != nil {
		t.Errorf("Expected no _ia rewrite, got %+v", w)
	}
}

func TestResolveGeneratesUUID(t *testing.T) {
	cookies := newMemCookies(nil)
	resolver := NewIdentityResolver(identitySettings())

	identity := resolver.Resolve(models.RequestContext{}, cookies)
	if !uuidV4Pattern.MatchString(identity.ClientID) {
		t.Errorf("Expected well-formed v4 UUID, got %q", identity.ClientID)
	}

	if w := cookies.written("_ia"); w == nil || w.Value != identity.ClientID {
		t.Errorf("Expected _ia cookie write with generated ID, got %+v", w)
	}
}

func TestResolveRequiresGaCookie(t *testing.T) {
	settings := identitySettings()
	settings.RequireGaCookieClientID = true
	cookies := newMemCookies(nil)
	resolver := NewIdentityResolver(settings)

	identity := resolver.Resolve(models.RequestContext{}, cookies)
	if identity.ClientID != "" {
		t.Errorf("Expected empty client ID, got %q", identity.ClientID)
	}
	if len(cookies.writes) != 0 {
		t.Errorf("Expected no cookie writes, got %v", cookies.writes)
	}
}

func TestResolveMalformedGaCookieFallsThrough(t *testing.T) {
	cookies := newMemCookies(map[string]string{
		"_ga": "garbage",
		"_ia": "kept-id",
	})
	resolver := NewIdentityResolver(identitySettings())

	identity := resolver.Resolve(models.RequestContext{}, cookies)
	if identity.ClientID != "kept-id" {
		t.Errorf("Expected malformed _ga to fall through to _ia, got %q", identity.ClientID)
	}
}

func TestResolveAdClickID(t *testing.T) {
	cookies := newMemCookies(map[string]string{"_ia": "abc123"})
	resolver := NewIdentityResolver(identitySettings())
	rc := models.RequestContext{Query: map[string]string{"gclid": "Cj0KCQtest"}}

	identity := resolver.Resolve(rc, cookies)
	if identity.AdClickID != "Cj0KCQtest" {
		t.Errorf("Expected gclid Cj0KCQtest, got %q", identity.AdClickID)
	}

	if w := cookies.written("gclid"); w == nil || w.Value != "Cj0KCQtest" {
		t.Errorf("Expected gclid cookie write, got %+v", w)
	}
}

func TestResolveAdClickIDCookieDisabled(t *testing.T) {
	settings := identitySettings()
	settings.CreateGclidCookie = false
	cookies := newMemCookies(map[string]string{"_ia": "abc123"})
	resolver := NewIdentityResolver(settings)
	rc := models.RequestContext{Query: map[string]string{"gclid": "Cj0KCQtest"}}

	identity := resolver.Resolve(rc, cookies)
	if identity.AdClickID != "Cj0KCQtest" {
		t.Errorf("Expected gclid still resolved, got %q", identity.AdClickID)
	}
	if w := cookies.written("gclid"); w != nil {
		t.Errorf("Expected no gclid cookie write, got %+v", w)
	}
}

func TestParseGaCookie(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"GA1.2.111.222", "111.222"},
		{"GA1.2.1234567890.1700000000", "1234567890.1700000000"},
		{"GA1.2.111", "111"},
		{"GA1.2", ""},
		{"garbage", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := parseGaCookie(tt.raw); got != tt.want {
			t.Errorf("parseGaCookie(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
