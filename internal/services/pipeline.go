package services

import (
	"context"

	"beacon/internal/analytics"
	"beacon/internal/config"
	"beacon/internal/models"
	"beacon/pkg/logger"
)

// ExclusionRecorder persists exclusion decisions for diagnostics; optional.
type ExclusionRecorder interface {
	RecordExclusion(ctx context.Context, rule, ipAddress, documentPath string) error
}

// Pipeline is the analytics pipeline entry façade. The host request
// lifecycle calls Begin once per request, reports trackable occurrences,
// and hands the request back to Flush at end of request.
type Pipeline struct {
	cfg        *config.Config
	exclusions *analytics.ExclusionEngine
	identity   *analytics.IdentityResolver
	campaigns  *analytics.CampaignResolver
	builder    *analytics.HitBuilder
	dispatcher *analytics.Dispatcher
	urls       *analytics.TrackingURLGenerator
	audit      ExclusionRecorder
	log        *logger.Logger
}

type siteMeta struct {
	cfg config.SiteConfig
}

func (m siteMeta) RenderEnabled() bool { return m.cfg.MetadataEnabled }
func (m siteMeta) SiteName() string    { return m.cfg.Name }

// NewPipeline wires the pipeline components. deliveryAudit and
// exclusionAudit may be nil when no audit repository is configured.
func NewPipeline(cfg *config.Config, sender analytics.Sender, deliveryAudit analytics.AuditRecorder, exclusionAudit ExclusionRecorder, log *logger.Logger) *Pipeline {
	var meta analytics.SiteMeta
	if cfg.Site.Name != "" {
		meta = siteMeta{cfg: cfg.Site}
	}

	return &Pipeline{
		cfg:        cfg,
		exclusions: analytics.NewExclusionEngine(&cfg.Tracking, cfg.API.DevMode(), log),
		identity:   analytics.NewIdentityResolver(&cfg.Tracking),
		campaigns:  analytics.NewCampaignResolver(log),
		builder:    analytics.NewHitBuilder(&cfg.Tracking, cfg.Site.BaseURL, meta, log),
		dispatcher: analytics.NewDispatcher(sender, deliveryAudit, log),
		urls:       analytics.NewTrackingURLGenerator(cfg.Site.BaseURL),
		audit:      exclusionAudit,
		log:        log,
	}
}

// URLs exposes the tracking URL generator, which never touches live
// request state.
func (p *Pipeline) URLs() *analytics.TrackingURLGenerator {
	return p.urls
}

// Request is the per-request pipeline state: the immutable snapshot, the
// injected cookie/session capabilities, the event queue, and the identity
// and campaign values cached after their first resolution so cookie and
// session writes happen at most once per request.
type Request struct {
	Context models.RequestContext

	cookies  analytics.CookieStore
	session  analytics.SessionStore
	queue    *analytics.Queue
	identity *models.ClientIdentity
	campaign *models.CampaignParams
}

// Queued returns the number of hits waiting to be flushed.
func (r *Request) Queued() int {
	return r.queue.Len()
}

// Begin opens pipeline state for one request. session may be nil when no
// session storage is available; campaign attribution then only sees the
// current request.
func (p *Pipeline) Begin(rc models.RequestContext, cookies analytics.CookieStore, session analytics.SessionStore) *Request {
	return &Request{
		Context: rc,
		cookies: cookies,
		session: session,
		queue:   analytics.NewQueue(),
	}
}

// PageRendered enqueues a page-view hit if tracking is permitted. An empty
// path attributes the view to the request path.
func (p *Pipeline) PageRendered(ctx context.Context, req *Request, path, title string) {
	if !p.permitted(ctx, req) {
		return
	}

	identity, campaign := p.resolve(ctx, req)
	if hit, ok := p.builder.PageView(path, title, req.Context, identity, campaign); ok {
		req.queue.Enqueue(hit)
	}
}

// EventOccurred enqueues a custom-event hit attributed to the request path.
func (p *Pipeline) EventOccurred(ctx context.Context, req *Request, category, action, label string, value int) {
	p.EventAt(ctx, req, "", category, action, label, value)
}

// EventAt enqueues a custom-event hit attributed to an explicit URL, used
// by the out-of-band tracking routes.
func (p *Pipeline) EventAt(ctx context.Context, req *Request, url, category, action, label string, value int) {
	if !p.permitted(ctx, req) {
		return
	}

	identity, campaign := p.resolve(ctx, req)
	if hit, ok := p.builder.Event(url, category, action, label, value, req.Context, identity, campaign); ok {
		req.queue.Enqueue(hit)
	}
}

// Flush drains the request's queue and attempts delivery of every hit.
// Called exactly once, at end of request.
func (p *Pipeline) Flush(ctx context.Context, req *Request) {
	p.dispatcher.Flush(ctx, req.queue)
}

func (p *Pipeline) permitted(ctx context.Context, req *Request) bool {
	send, rule := p.exclusions.Evaluate(req.Context)
	if !send {
		p.exclusions.LogExclusion(rule, req.Context)
		if p.audit != nil {
			if err := p.audit.RecordExclusion(ctx, string(rule), req.Context.IPAddress, req.Context.Path); err != nil {
				p.log.Debug("Failed to record exclusion audit", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
	return send
}

// resolve returns the request's identity and campaign context, resolving
// them on first use and caching the result for the rest of the request.
func (p *Pipeline) resolve(ctx context.Context, req *Request) (models.ClientIdentity, models.CampaignParams) {
	if req.identity == nil {
		identity := p.identity.Resolve(req.Context, req.cookies)
		campaign := p.campaigns.Resolve(ctx, req.Context, req.session)
		req.identity = &identity
		req.campaign = &campaign
	}
	return *req.identity, *req.campaign
}
