package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	"beacon/internal/analytics"
	"beacon/internal/config"
	"beacon/internal/models"
	"beacon/internal/services"
	"beacon/pkg/logger"
	"beacon/pkg/session"
)

const trackingLocal = "tracking_request"

// flushBudget bounds how long background delivery may run after the
// response is finalized.
const flushBudget = 10 * time.Second

// Tracking opens pipeline state for every request and flushes it after the
// handler chain returns, in a background goroutine so a slow collect
// endpoint never delays the response.
type Tracking struct {
	pipeline *services.Pipeline
	sessions *session.Sessions
	cfg      *config.Config
	log      *logger.Logger
}

// NewTracking constructs the tracking middleware. sessions may be nil;
// campaign attribution then sees only the current request.
func NewTracking(pipeline *services.Pipeline, sessions *session.Sessions, cfg *config.Config, log *logger.Logger) *Tracking {
	return &Tracking{
		pipeline: pipeline,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
}

func (t *Tracking) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc := snapshot(c, t.cfg.Request)

		var store analytics.SessionStore
		if t.sessions != nil {
			store = t.sessions.Scope(t.sessionID(c))
		}

		req := t.pipeline.Begin(rc, newCookieJar(c), store)
		c.Locals(trackingLocal, req)

		err := c.Next()

		if t.autoPageView(c, err) {
			t.pipeline.PageRendered(c.Context(), req, rc.Path, "")
		}

		// Flush after the handler is done; the goroutine only touches the
		// request's own queue, never the fiber context.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), flushBudget)
			defer cancel()
			t.pipeline.Flush(ctx, req)
		}()

		return err
	}
}

// TrackingRequest returns the pipeline state opened for this request, nil
// when the tracking middleware is not installed.
func TrackingRequest(c *fiber.Ctx) *services.Request {
	req, _ := c.Locals(trackingLocal).(*services.Request)
	return req
}

// sessionID reads the visitor session cookie, creating it when absent.
func (t *Tracking) sessionID(c *fiber.Ctx) string {
	name := t.cfg.Session.CookieName
	if sid := c.Cookies(name); sid != "" {
		return utils.CopyString(sid)
	}

	sid := uuid.NewString()
	c.Cookie(&fiber.Cookie{
		Name:    name,
		Value:   sid,
		Expires: time.Now().Add(t.cfg.Tracking.SessionDuration),
		Path:    "/",
	})
	return sid
}

// autoPageView reports whether this response should produce an automatic
// page-view hit: successful HTML GET responses outside the tracking routes.
func (t *Tracking) autoPageView(c *fiber.Ctx, err error) bool {
	if !t.cfg.Tracking.AutoSendPageView || err != nil {
		return false
	}
	if c.Method() != fiber.MethodGet {
		return false
	}
	if c.Response().StatusCode() != fiber.StatusOK {
		return false
	}
	if strings.HasPrefix(c.Path(), "/track/") {
		return false
	}
	contentType := string(c.Response().Header.ContentType())
	return strings.HasPrefix(contentType, fiber.MIMETextHTML)
}

// snapshot captures the immutable request context the pipeline evaluates.
// Control-panel and live-preview detection and the authenticated caller
// come from the host environment per RequestConfig. Every string is copied
// out of fasthttp's buffers: the snapshot outlives the handler, and fiber
// only guarantees context values until the handler returns.
func snapshot(c *fiber.Ctx, reqCfg config.RequestConfig) models.RequestContext {
	query := make(map[string]string, len(c.Queries()))
	for k, v := range c.Queries() {
		query[utils.CopyString(k)] = utils.CopyString(v)
	}

	rc := models.RequestContext{
		Path:      utils.CopyString(c.Path()),
		FullURL:   c.BaseURL() + c.OriginalURL(),
		Query:     query,
		UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
		IPAddress: utils.CopyString(c.IP()),
		Referrer:  utils.CopyString(c.Get(fiber.HeaderReferer)),
		Host:      utils.CopyString(c.Hostname()),
	}

	if reqCfg.ControlPanelPrefix != "" {
		rc.IsControlPanel = strings.HasPrefix(rc.Path, reqCfg.ControlPanelPrefix)
	}
	if reqCfg.LivePreviewParam != "" {
		rc.IsLivePreview = query[reqCfg.LivePreviewParam] != ""
	}

	if user := c.Get(reqCfg.UserHeader); user != "" {
		rc.Authenticated = true
		rc.IsAdmin = c.Get(reqCfg.AdminHeader) == "1"
		if groups := utils.CopyString(c.Get(reqCfg.GroupsHeader)); groups != "" {
			for _, group := range strings.Split(groups, ",") {
				if group = strings.TrimSpace(group); group != "" {
					rc.Groups = append(rc.Groups, group)
				}
			}
		}
	}

	return rc
}

// cookieJar binds the pipeline's cookie capability to the fiber context,
// applying each requested write at most once per cookie name.
type cookieJar struct {
	c       *fiber.Ctx
	written map[string]bool
}

func newCookieJar(c *fiber.Ctx) *cookieJar {
	return &cookieJar{c: c, written: make(map[string]bool)}
}

// Get copies the value; cookie strings end up on hits that outlive the
// handler.
func (j *cookieJar) Get(name string) string {
	return utils.CopyString(j.c.Cookies(name))
}

func (j *cookieJar) Set(cookie models.Cookie) {
	if j.written[cookie.Name] {
		return
	}
	j.written[cookie.Name] = true

	path := cookie.Path
	if path == "" {
		path = "/"
	}
	j.c.Cookie(&fiber.Cookie{
		Name:    cookie.Name,
		Value:   cookie.Value,
		Expires: cookie.Expires,
		Path:    path,
	})
}

// RequestLogger logs one line per request at debug level.
func RequestLogger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		log.Debug("Request handled", map[string]any{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		})
		return err
	}
}

// Recover converts handler panics into 500 responses.
func Recover(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Handler panic", map[string]any{
					"panic": r,
					"path":  c.Path(),
				})
				_ = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Internal server error",
				})
			}
		}()
		return c.Next()
	}
}
