package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultConnectTimeout = 5 * time.Second

// NATS publishes events as JSON on a NATS connection.
type NATS struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// Connect dials url (a comma-separated server list is accepted) and returns a
// publisher that owns the connection.
func Connect(url, prefix string, opts ...nats.Option) (*NATS, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("events: no NATS url configured")
	}
	options := append([]nats.Option{
		nats.Name("nara"),
		nats.Timeout(defaultConnectTimeout),
	}, opts...)

	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("events: connect to nats: %w", err)
	}
	slog.Info("events: connected to NATS", "servers", url)

	p := NewNATS(conn, prefix)
	p.owned = true
	return p, nil
}

// NewNATS wraps an existing connection. The caller keeps ownership of conn.
func NewNATS(conn *nats.Conn, prefix string) *NATS {
	prefix = strings.Trim(prefix, ". ")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{conn: conn, prefix: prefix}
}

// Subject returns the subject an event with the given outcome is published on.
func (n *NATS) Subject(outcome string) string {
	return n.prefix + ".interaction." + outcome
}

// Publish implements [Publisher].
func (n *NATS) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	if err := n.conn.Publish(n.Subject(ev.Outcome), data); err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

// Healthy reports whether the connection is up.
func (n *NATS) Healthy() bool {
	return n != nil && n.conn != nil && n.conn.Status() == nats.CONNECTED
}

// Close drains and closes the connection if the publisher owns it.
func (n *NATS) Close() error {
	if n == nil || !n.owned {
		return nil
	}
	slog.Info("events: closing NATS connection")
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("events: drain: %w", err)
	}
	return nil
}

var _ Publisher = (*NATS)(nil)
