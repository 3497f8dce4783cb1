package bus

import (
	"context"

	"github.com/ernie/netplay-lobby/internal/domain"
	"go.uber.org/zap"
)

// Sink receives registry events
type Sink interface {
	Send(ctx context.Context, event domain.Event) error
}

// Dispatcher forwards events from the registry to every sink
type Dispatcher struct {
	logger *zap.Logger
	sinks  []Sink
}

// NewDispatcher creates a dispatcher over the given sinks
func NewDispatcher(logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger, sinks: sinks}
}

// Run forwards events until ctx is cancelled or events is closed.
// A failing sink is logged and does not stop delivery to the others.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.dispatch(ctx, event)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event domain.Event) {
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, event); err != nil {
			d.logger.Warn("delivering event",
				zap.String("event", event.Type),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}
}
