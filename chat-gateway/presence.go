package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/example/chattify/pkg/wire"
)

const presenceBucket = "PRESENCE"

// kvPresence backs the PresenceStore with a JetStream KV bucket shared by
// every gateway process. No TTL: entries are flipped explicitly at connect
// and disconnect, so a crashed process leaves its users Online until the
// next explicit write.
type kvPresence struct {
	kv nats.KeyValue
}

func newKVPresence(js nats.JetStreamContext) (*kvPresence, error) {
	kv, err := js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:  presenceBucket,
		History: 1,
		Storage: nats.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s bucket: %w", presenceBucket, err)
	}
	return &kvPresence{kv: kv}, nil
}

func (p *kvPresence) Set(ctx context.Context, username, status string) error {
	_, err := p.kv.Put(username, []byte(status))
	return err
}

func (p *kvPresence) Get(ctx context.Context, username string) (string, error) {
	entry, err := p.kv.Get(username)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return wire.StatusOffline, nil
	}
	if err != nil {
		return "", err
	}
	return string(entry.Value()), nil
}
