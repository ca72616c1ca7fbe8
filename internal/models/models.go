package models

import "time"

type HitKind string

const (
	HitPageView HitKind = "page_view"
	HitEvent    HitKind = "event"
)

// Hit is one discrete trackable occurrence, formatted for the measurement
// endpoint. Exactly one is recorded per page view, custom event or commerce
// event that survives the exclusion rules.
type Hit struct {
	Kind HitKind `json:"kind"`

	// Page view fields
	DocumentPath  string `json:"document_path"`
	DocumentTitle string `json:"document_title,omitempty"`

	// Event fields
	EventCategory string `json:"event_category,omitempty"`
	EventAction   string `json:"event_action,omitempty"`
	EventLabel    string `json:"event_label,omitempty"`
	EventValue    int    `json:"event_value,omitempty"`

	// Common context
	ClientID         string         `json:"client_id,omitempty"`
	AdClickID        string         `json:"ad_click_id,omitempty"`
	Campaign         CampaignParams `json:"campaign,omitempty"`
	IPAddress        string         `json:"ip_address,omitempty"`
	UserAgent        string         `json:"user_agent,omitempty"`
	DocumentHostName string         `json:"document_hostname,omitempty"`
	DocumentReferrer string         `json:"document_referrer,omitempty"`
	Affiliation      string         `json:"affiliation,omitempty"`
	ProtocolVersion  string         `json:"protocol_version,omitempty"`
}

// CampaignParams carries UTM campaign attribution. An empty string means the
// parameter was never resolved and is omitted from the outgoing payload.
type CampaignParams struct {
	Source  string `json:"source,omitempty"`
	Medium  string `json:"medium,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
}

// ClientIdentity is the per-visitor identity resolved once per request.
type ClientIdentity struct {
	ClientID  string `json:"client_id"`
	AdClickID string `json:"ad_click_id,omitempty"`
}

// RequestContext is a read-only snapshot of the inbound request, taken once
// and never mutated during evaluation.
type RequestContext struct {
	Path      string
	FullURL   string
	Query     map[string]string
	UserAgent string
	IPAddress string
	Referrer  string
	Host      string

	IsConsole      bool
	IsControlPanel bool
	IsLivePreview  bool

	Authenticated bool
	IsAdmin       bool
	Groups        []string
}

// Param returns a query parameter from the snapshot, empty when absent.
func (rc RequestContext) Param(name string) string {
	if rc.Query == nil {
		return ""
	}
	return rc.Query[name]
}

// Cookie is a requested cookie write, applied at most once per name per
// request by the store that receives it.
type Cookie struct {
	Name    string
	Value   string
	Expires time.Time
	Path    string
}

// LineItemSummary is the slice of a commerce line item the pipeline cares
// about; the host's order domain objects stay outside the pipeline.
type LineItemSummary struct {
	SKU         string  `json:"sku"`
	Description string  `json:"description,omitempty"`
	Qty         int     `json:"qty"`
	Price       float64 `json:"price"`
}

// OrderSummary is the commerce adapter's view of a completed order.
type OrderSummary struct {
	Reference string            `json:"reference"`
	Total     float64           `json:"total"`
	LineItems []LineItemSummary `json:"line_items,omitempty"`
}
