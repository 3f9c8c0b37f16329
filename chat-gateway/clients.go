package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/example/chattify/pkg/otelhelper"
	"github.com/example/chattify/pkg/wire"
)

// Request subjects served by the backing services.
const (
	subjectMessageSave      = "message.save"
	subjectFriendsList      = "friends.list"
	subjectUserExists       = "user.exists"
	subjectMediaStore       = "media.store"
	subjectReceiptDelivered = "receipt.delivered"
)

// errBackendUnavailable is returned without touching the wire while a
// client's circuit breaker is open.
var errBackendUnavailable = errors.New("backend temporarily unavailable")

// guardedRequest runs one traced request under a circuit breaker. A timeout
// or transport error counts as a failure; a reply of any kind counts as a
// success, the service being evidently alive.
func guardedRequest(ctx context.Context, cb *CircuitBreaker, nc *nats.Conn, subject string, data []byte, timeout time.Duration) (*nats.Msg, error) {
	if !cb.Allow() {
		return nil, errBackendUnavailable
	}
	msg, err := otelhelper.TracedRequest(ctx, nc, subject, data, timeout)
	if err != nil {
		cb.RecordFailure()
		return nil, err
	}
	cb.RecordSuccess()
	return msg, nil
}

// natsMessageStore talks to message-service over request/reply.
type natsMessageStore struct {
	nc      *nats.Conn
	timeout time.Duration
	breaker *CircuitBreaker
}

func (c *natsMessageStore) Save(ctx context.Context, req wire.SaveRequest) (wire.SaveReply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return wire.SaveReply{}, fmt.Errorf("failed to marshal save request: %w", err)
	}
	msg, err := guardedRequest(ctx, c.breaker, c.nc, subjectMessageSave, data, c.timeout)
	if err != nil {
		return wire.SaveReply{}, err
	}
	var reply wire.SaveReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return wire.SaveReply{}, fmt.Errorf("invalid save reply: %w", err)
	}
	return reply, nil
}

// natsFriendDirectory talks to friend-service over request/reply.
type natsFriendDirectory struct {
	nc      *nats.Conn
	timeout time.Duration
	breaker *CircuitBreaker
}

func (c *natsFriendDirectory) Friends(ctx context.Context, username string) ([]string, error) {
	msg, err := guardedRequest(ctx, c.breaker, c.nc, subjectFriendsList, []byte(username), c.timeout)
	if err != nil {
		return nil, err
	}
	var friends []string
	if err := json.Unmarshal(msg.Data, &friends); err != nil {
		return nil, fmt.Errorf("invalid friends reply: %w", err)
	}
	return friends, nil
}

func (c *natsFriendDirectory) Exists(ctx context.Context, username string) (bool, error) {
	msg, err := guardedRequest(ctx, c.breaker, c.nc, subjectUserExists, []byte(username), c.timeout)
	if err != nil {
		return false, err
	}
	var reply wire.ExistsReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return false, fmt.Errorf("invalid exists reply: %w", err)
	}
	return reply.Exists, nil
}

// natsMediaStore talks to media-service over request/reply.
type natsMediaStore struct {
	nc      *nats.Conn
	timeout time.Duration
	breaker *CircuitBreaker
}

func (c *natsMediaStore) Store(ctx context.Context, filename string, data []byte) (string, error) {
	payload, err := json.Marshal(wire.StoreMediaRequest{Filename: filename, Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to marshal media request: %w", err)
	}
	msg, err := guardedRequest(ctx, c.breaker, c.nc, subjectMediaStore, payload, c.timeout)
	if err != nil {
		return "", err
	}
	var reply wire.StoreMediaReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("invalid media reply: %w", err)
	}
	if reply.Error != "" {
		return "", errors.New(reply.Error)
	}
	return reply.URL, nil
}

// natsReceipts publishes delivered markers onto the RECEIPTS stream for
// receipt-worker to apply. Fire and forget.
type natsReceipts struct {
	nc *nats.Conn
}

func (c *natsReceipts) Delivered(ctx context.Context, messageID int64, username string) error {
	data, err := json.Marshal(wire.Receipt{
		MessageID: messageID,
		Username:  username,
		Kind:      wire.ReceiptDelivered,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	return otelhelper.TracedPublish(ctx, c.nc, subjectReceiptDelivered, data)
}
