package services

import (
	"context"
	"math"

	"beacon/internal/models"
)

// The commerce adapter maps order and line-item summaries supplied by the
// host's e-commerce integration onto event hits. It consumes the hit
// builder only; the host's order domain objects never enter the pipeline.

const commerceCategory = "Commerce"

// CartItemAdded records an add-to-cart event when auto-send is enabled.
func (p *Pipeline) CartItemAdded(ctx context.Context, req *Request, item models.LineItemSummary) {
	if !p.cfg.Tracking.AutoSendAddToCart {
		return
	}
	p.EventOccurred(ctx, req, commerceCategory, "add_to_cart", item.SKU, lineItemValue(item))
}

// CartItemRemoved records a remove-from-cart event when auto-send is
// enabled.
func (p *Pipeline) CartItemRemoved(ctx context.Context, req *Request, item models.LineItemSummary) {
	if !p.cfg.Tracking.AutoSendRemoveFromCart {
		return
	}
	p.EventOccurred(ctx, req, commerceCategory, "remove_from_cart", item.SKU, lineItemValue(item))
}

// OrderCompleted records a purchase event when auto-send is enabled.
func (p *Pipeline) OrderCompleted(ctx context.Context, req *Request, order models.OrderSummary) {
	if !p.cfg.Tracking.AutoSendPurchaseComplete {
		return
	}
	p.EventOccurred(ctx, req, commerceCategory, "purchase", order.Reference, int(math.Round(order.Total)))
}

func lineItemValue(item models.LineItemSummary) int {
	return int(math.Round(item.Price * float64(item.Qty)))
}
