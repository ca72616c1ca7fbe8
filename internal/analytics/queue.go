package analytics

import (
	"context"
	"sync"

	"beacon/internal/models"
	"beacon/pkg/logger"
)

// Queue accumulates the Hits produced during one request. It is exclusively
// owned by that request and drained exactly once at request end; it is not
// safe for concurrent use and never needs to be.
type Queue struct {
	hits []*models.Hit
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a hit. Duplicates are preserved in order.
func (q *Queue) Enqueue(hit *models.Hit) {
	if hit == nil {
		return
	}
	q.hits = append(q.hits, hit)
}

func (q *Queue) Len() int {
	return len(q.hits)
}

// Drain empties the queue and returns the hits in enqueue order.
func (q *Queue) Drain() []*models.Hit {
	hits := q.hits
	q.hits = nil
	return hits
}

// Sender transmits one hit to the measurement endpoint.
type Sender interface {
	Send(ctx context.Context, hit *models.Hit) error
}

// AuditRecorder receives the outcome of each delivery attempt; it is an
// optional observability hook, never part of the delivery contract.
type AuditRecorder interface {
	RecordDelivery(ctx context.Context, hit *models.Hit, delivered bool, reason string) error
}

// Dispatcher drains a request's queue and attempts delivery of every hit.
// Delivery is fire-and-forget: failures are logged and swallowed, and one
// hit's failure never blocks the rest.
type Dispatcher struct {
	sender Sender
	audit  AuditRecorder
	log    *logger.Logger
}

// NewDispatcher constructs a dispatcher; audit may be nil.
func NewDispatcher(sender Sender, audit AuditRecorder, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		audit:  audit,
		log:    log,
	}
}

// Flush attempts delivery of every queued hit. Hits are independent, so the
// sends run in parallel; Flush returns once all attempts finish.
func (d *Dispatcher) Flush(ctx context.Context, q *Queue) {
	hits := q.Drain()
	if len(hits) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, hit := range hits {
		wg.Add(1)
		go func(hit *models.Hit) {
			defer wg.Done()

			err := d.sender.Send(ctx, hit)
			if err != nil {
				d.log.Warn("Hit delivery failed", map[string]any{
					"kind":  string(hit.Kind),
					"path":  hit.DocumentPath,
					"error": err.Error(),
				})
			}

			if d.audit != nil {
				reason := ""
				if err != nil {
					reason = err.Error()
				}
				if auditErr := d.audit.RecordDelivery(ctx, hit, err == nil, reason); auditErr != nil {
					d.log.Debug("Failed to record delivery audit", map[string]any{
						"error": auditErr.Error(),
					})
				}
			}
		}(hit)
	}
	wg.Wait()

	d.log.Debug("Flushed event queue", map[string]any{"hits": len(hits)})
}
