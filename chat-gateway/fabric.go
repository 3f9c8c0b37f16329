package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/example/chattify/pkg/otelhelper"
	"github.com/example/chattify/pkg/wire"
)

// Group names map onto NATS subjects under this prefix; NATS per-subject
// ordering gives the per-group FIFO the protocol relies on.
const groupSubjectPrefix = "chat.group."

// natsFabric implements Fabric over plain NATS subscriptions. A join is a
// subscription on the group subject, so a publisher that is itself joined
// receives its own publications like any other member.
type natsFabric struct {
	nc  *nats.Conn
	log *slog.Logger
}

func newNATSFabric(nc *nats.Conn, log *slog.Logger) *natsFabric {
	return &natsFabric{nc: nc, log: log}
}

type natsMembership struct {
	sub *nats.Subscription
}

func (m *natsMembership) Leave() error {
	return m.sub.Unsubscribe()
}

func (f *natsFabric) Join(ctx context.Context, group string, deliver func(evt wire.Event)) (Membership, error) {
	sub, err := f.nc.Subscribe(groupSubjectPrefix+group, func(msg *nats.Msg) {
		var evt wire.Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			f.log.Warn("invalid group event", "group", group, "error", err)
			return
		}
		deliver(evt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join group %q: %w", group, err)
	}
	return &natsMembership{sub: sub}, nil
}

func (f *natsFabric) Publish(ctx context.Context, group string, evt wire.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal group event: %w", err)
	}
	return otelhelper.TracedPublish(ctx, f.nc, groupSubjectPrefix+group, data)
}
