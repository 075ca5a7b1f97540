package agent

import (
	"context"

	"github.com/haasonsaas/concierge/pkg/models"
)

// EventSink receives tool events as the resolver and the tool-round loop
// settle calls. Sinks are invoked from a single goroutine, in call order.
type EventSink func(*models.ToolEvent)

// sendChunk delivers a chunk to the turn's output channel, giving up if the
// context is cancelled first. The channel has exactly one writer, so a
// false return means the consumer is gone and the turn should wind down.
func sendChunk(ctx context.Context, out chan<- *models.StreamChunk, chunk *models.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
