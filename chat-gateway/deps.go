package main

import (
	"context"
	"time"

	"github.com/example/chattify/pkg/wire"
)

// PresenceStore is the shared Online/Offline cache keyed by username.
// Entries have no TTL; writes happen only at connect/disconnect edges and
// last writer wins.
type PresenceStore interface {
	Set(ctx context.Context, username, status string) error
	// Get returns wire.StatusOffline for users that never connected.
	Get(ctx context.Context, username string) (string, error)
}

// Membership is one session's handle on a joined group.
type Membership interface {
	Leave() error
}

// Fabric is the named-group pub/sub the sessions ride on. Everything
// published to a group is delivered to every current member, the publisher
// included when it is joined itself.
type Fabric interface {
	Join(ctx context.Context, group string, deliver func(evt wire.Event)) (Membership, error)
	Publish(ctx context.Context, group string, evt wire.Event) error
}

// MessageStore durably persists message records and hands back the
// server-assigned id and timestamp.
type MessageStore interface {
	Save(ctx context.Context, req wire.SaveRequest) (wire.SaveReply, error)
}

// FriendDirectory exposes the accepted-friends snapshot and user lookups.
// The snapshot is fetched once per connect and reused at disconnect, never
// subscribed to live.
type FriendDirectory interface {
	Friends(ctx context.Context, username string) ([]string, error)
	Exists(ctx context.Context, username string) (bool, error)
}

// MediaStore stores decoded attachment bytes and returns a retrievable URL.
type MediaStore interface {
	Store(ctx context.Context, filename string, data []byte) (string, error)
}

// ReceiptSink records best-effort delivered markers. Failures must never
// affect delivery.
type ReceiptSink interface {
	Delivered(ctx context.Context, messageID int64, username string) error
}

// Deps bundles the collaborators a session talks to. Timeout bounds every
// collaborator call; a timeout is treated like any other backend failure.
type Deps struct {
	Presence PresenceStore
	Fabric   Fabric
	Messages MessageStore
	Friends  FriendDirectory
	Media    MediaStore
	Receipts ReceiptSink
	Timeout  time.Duration
}

const defaultCallTimeout = 5 * time.Second

func (d Deps) callTimeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return defaultCallTimeout
}
