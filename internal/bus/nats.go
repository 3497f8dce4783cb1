package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ernie/netplay-lobby/internal/domain"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher publishes registry events to NATS as
// <subject>.<event type>, e.g. lobby.events.match
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// Connect dials a NATS server and returns a publisher for subject
func Connect(url, subject string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("netplay-lobby"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return NewPublisher(nc, subject), nil
}

// NewPublisher wraps an existing connection
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

// Send implements Sink
func (p *Publisher) Send(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.nc.Publish(p.subject+"."+event.Type, data); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
