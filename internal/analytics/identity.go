package analytics

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"beacon/internal/config"
	"beacon/internal/models"
)

const (
	gaCookieName = "_ga"
	iaCookieName = "_ia"
	gclidParam   = "gclid"

	clientIDCookieTTL = 2 * 365 * 24 * time.Hour
	gclidCookieTTL    = 10 * 365 * 24 * time.Hour
)

// CookieStore is the narrow cookie capability injected into the resolver.
// Implementations must apply each requested write at most once per cookie
// name per request.
type CookieStore interface {
	Get(name string) string
	Set(cookie models.Cookie)
}

// IdentityResolver derives the stable client ID and ad-click ID from
// cookies and query parameters. Resolve never blocks; an empty client ID
// means no identity source was available under the current settings.
type IdentityResolver struct {
	settings *config.TrackingSettings
}

func NewIdentityResolver(settings *config.TrackingSettings) *IdentityResolver {
	return &IdentityResolver{settings: settings}
}

// Resolve is expected to run once per request; callers cache the result so
// cookie writes are not requested twice.
func (r *IdentityResolver) Resolve(rc models.RequestContext, cookies CookieStore) models.ClientIdentity {
	identity := models.ClientIdentity{}

	clientID, derived := r.clientID(cookies)
	identity.ClientID = clientID
	// Persist derived IDs so the visitor keeps the same ID once the _ga
	// cookie disappears. An ID read from _ia is already persisted.
	if derived && clientID != "" && r.settings.CreateClientIDCookie {
		cookies.Set(models.Cookie{
			Name:    iaCookieName,
			Value:   clientID,
			Expires: time.Now().Add(clientIDCookieTTL),
			Path:    "/",
		})
	}

	if gclid := rc.Param(gclidParam); gclid != "" {
		identity.AdClickID = gclid
		if r.settings.CreateGclidCookie {
			cookies.Set(models.Cookie{
				Name:    gclidParam,
				Value:   gclid,
				Expires: time.Now().Add(gclidCookieTTL),
				Path:    "/",
			})
		}
	}

	return identity
}

// clientID returns the resolved ID and whether it was derived this request
// (parsed from _ga or freshly generated) rather than read back from _ia.
func (r *IdentityResolver) clientID(cookies CookieStore) (string, bool) {
	if raw := cookies.Get(gaCookieName); raw != "" {
		if cid := parseGaCookie(raw); cid != "" {
			return cid, true
		}
		// Unparsable _ga is treated as absent.
	}

	if cid := cookies.Get(iaCookieName); cid != "" {
		return cid, false
	}

	if !r.settings.RequireGaCookieClientID {
		return uuid.NewString(), true
	}

	return "", false
}

// parseGaCookie extracts the client ID from a GA-format cookie value: the
// value splits on "." into at most 4 fields and the ID is everything from
// the third field onward ("GA1.2.111.222" yields "111.222").
func parseGaCookie(raw string) string {
	parts := strings.SplitN(raw, ".", 4)
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[2:], ".")
}
