package analytics

import (
	"context"

	"beacon/internal/models"
	"beacon/pkg/logger"
)

const (
	utmSourceKey   = "utm_source"
	utmMediumKey   = "utm_medium"
	utmCampaignKey = "utm_campaign"
	utmContentKey  = "utm_content"
)

// SessionStore is the narrow session capability injected into the campaign
// resolver. Keys are scoped to one visitor session by the implementation.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// CampaignResolver resolves UTM campaign parameters. A value on the current
// request wins and is persisted into the session so attribution survives
// navigation within the same visit; otherwise the session value is used.
type CampaignResolver struct {
	log *logger.Logger
}

func NewCampaignResolver(log *logger.Logger) *CampaignResolver {
	return &CampaignResolver{log: log}
}

func (r *CampaignResolver) Resolve(ctx context.Context, rc models.RequestContext, session SessionStore) models.CampaignParams {
	return models.CampaignParams{
		Source:  r.resolveParam(ctx, rc, session, utmSourceKey),
		Medium:  r.resolveParam(ctx, rc, session, utmMediumKey),
		Name:    r.resolveParam(ctx, rc, session, utmCampaignKey),
		Content: r.resolveParam(ctx, rc, session, utmContentKey),
	}
}

func (r *CampaignResolver) resolveParam(ctx context.Context, rc models.RequestContext, session SessionStore, key string) string {
	if value := rc.Param(key); value != "" {
		if session != nil {
			if err := session.Set(ctx, key, value); err != nil {
				r.log.Debug("Failed to persist campaign parameter", map[string]any{
					"key":   key,
					"error": err.Error(),
				})
			}
		}
		return value
	}

	if session == nil {
		return ""
	}

	value, err := session.Get(ctx, key)
	if err != nil {
		r.log.Debug("Failed to read campaign parameter from session", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return ""
	}
	return value
}
