package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events on <prefix>.<gateway>.<event>, spaces in the
// event name become underscores
type NATSSink struct {
	conn   publisher
	nc     *nats.Conn
	prefix string
}

func DialNATS(url, prefix string, maxReconnects int, reconnectWait time.Duration) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("tartsd"),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{conn: nc, nc: nc, prefix: prefix}, nil
}

func (obj *NATSSink) Subject(ev Event) string {
	return obj.prefix + "." + ev.GatewayID + "." + strings.ReplaceAll(ev.Event, " ", "_")
}

func (obj *NATSSink) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Event, err)
	}
	subject := obj.Subject(ev)
	if err := obj.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", subject, err)
	}
	return nil
}

func (obj *NATSSink) Close() error {
	if obj.nc == nil {
		return nil
	}
	if err := obj.nc.Drain(); err != nil {
		obj.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
