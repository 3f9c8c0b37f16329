package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"github.com/example/chattify/pkg/wire"
)

// StatusAuthFailure is the close code sent when authentication fails, so the
// client can route to re-login instead of retrying.
const StatusAuthFailure websocket.StatusCode = 4001

// transport is the session's view of one physical client connection.
type transport interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteEvent(ctx context.Context, evt wire.Event) error
	Close(code websocket.StatusCode, reason string) error
}

// wsTransport adapts a coder/websocket connection. Reads and writes each
// happen from a single goroutine, so no locking is needed here.
type wsTransport struct {
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		return data, nil
	}
}

func (t *wsTransport) WriteEvent(ctx context.Context, evt wire.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close(code websocket.StatusCode, reason string) error {
	return t.conn.Close(code, reason)
}
