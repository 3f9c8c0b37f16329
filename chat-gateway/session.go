package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/example/chattify/pkg/convo"
	"github.com/example/chattify/pkg/wire"
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateAuthenticating
	stateActive
	stateRejected
	stateClosing
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticating:
		return "authenticating"
	case stateActive:
		return "active"
	case stateRejected:
		return "rejected"
	case stateClosing:
		return "closing"
	}
	return "unknown"
}

// Session owns one physical client connection from authentication to
// teardown. Inbound client events are handled one at a time on the read
// loop; group deliveries are funneled through the send channel and written
// by a single pump, so a session never needs locks. Many sessions run
// concurrently and share no mutable state.
type Session struct {
	id       string
	identity string
	target   string
	state    sessionState
	tr       transport
	deps     Deps
	log      *slog.Logger

	send    chan wire.Event
	groups  map[string]Membership
	friends []string

	// observed counts chat messages relayed to this connection. Display
	// only, resets per connection. Touched exclusively by the write pump.
	observed int

	writeDone chan struct{}
}

// NewSession binds a session to an authenticated identity and its physical
// connection. target optionally names a conversation partner to auto-join.
func NewSession(identity, target string, tr transport, deps Deps, log *slog.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:        id,
		identity:  identity,
		target:    target,
		state:     stateConnecting,
		tr:        tr,
		deps:      deps,
		log:       log.With("session", id, "user", identity),
		send:      make(chan wire.Event, 64),
		groups:    make(map[string]Membership),
		writeDone: make(chan struct{}),
	}
}

// Run drives the session until the client disconnects or ctx is cancelled.
// It blocks; the caller owns the goroutine.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	go s.writePump(ctx)

	s.state = stateActive
	s.open(ctx)
	s.readLoop(ctx)

	s.state = stateClosing
	s.teardown()

	cancel()
	<-s.writeDone
	s.tr.Close(websocket.StatusNormalClosure, "")
	s.log.Info("session closed", "observed_messages", s.observed)
}

// open performs the Active-entry side effects: join the personal group, flip
// presence Online, fetch the friends snapshot, join the conversation group
// of every friend while announcing Online to each, then send the presence
// snapshot to the client. Failures along the way degrade the session but
// never end it.
func (s *Session) open(ctx context.Context) {
	s.join(ctx, convo.PersonalGroup(s.identity))

	if err := s.setPresence(ctx, wire.StatusOnline); err != nil {
		s.log.Warn("failed to set presence online", "error", err)
	}

	friends, err := s.fetchFriends(ctx)
	if err != nil {
		s.log.Warn("failed to fetch friends snapshot", "error", err)
		s.sendError("Could not load your friend list")
	}
	s.friends = friends

	for _, friend := range friends {
		group, err := convo.ConversationGroup(s.identity, friend)
		if err != nil {
			s.log.Warn("skipping friend with unusable name", "friend", friend, "error", err)
			continue
		}
		s.join(ctx, group)
		s.publish(ctx, convo.PersonalGroup(friend), wire.Event{
			Type:     wire.EventUserStatus,
			Username: s.identity,
			Status:   wire.StatusOnline,
		})
	}

	// Snapshot, not a subscription: later changes arrive only through the
	// friends' own presence publications.
	statuses := make(map[string]string, len(friends))
	for _, friend := range friends {
		statuses[friend] = s.presenceOf(ctx, friend)
	}
	s.enqueue(wire.Event{Type: wire.EventFriendsStatus, Statuses: statuses})

	if s.target != "" {
		s.openTarget(ctx)
	}
}

// openTarget auto-joins the conversation designated in the connect path.
// Non-friend targets are checked for existence first.
func (s *Session) openTarget(ctx context.Context) {
	group, err := convo.ConversationGroup(s.identity, s.target)
	if err != nil {
		s.sendError("You cannot open a conversation with yourself")
		return
	}
	if _, ok := s.groups[group]; ok {
		return
	}
	exists, err := s.recipientExists(ctx, s.target)
	if err != nil {
		s.log.Warn("target lookup failed", "target", s.target, "error", err)
		s.sendError("Something went wrong")
		return
	}
	if !exists {
		s.sendError("Recipient does not exist")
		return
	}
	s.join(ctx, group)
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		data, err := s.tr.ReadMessage(ctx)
		if err != nil {
			s.log.Debug("read loop ended", "error", err)
			return
		}
		s.handleInbound(ctx, data)
	}
}

// handleInbound processes one client frame. No failure here ends the
// session; every client-initiated step that fails produces an error event so
// the client never hangs waiting for an acknowledgment.
func (s *Session) handleInbound(ctx context.Context, data []byte) {
	var in wire.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		s.sendError("Invalid message payload")
		return
	}
	if in.Typing != nil {
		s.handleTyping(ctx, in)
		return
	}
	s.handleChat(ctx, in)
}

func (s *Session) handleTyping(ctx context.Context, in wire.Inbound) {
	recipient := s.resolveRecipient(in.Recipient)
	if recipient == "" {
		s.sendError("A recipient is required")
		return
	}
	group, err := convo.ConversationGroup(s.identity, recipient)
	if err != nil {
		s.sendError("You cannot message yourself")
		return
	}
	s.publish(ctx, group, wire.Event{
		Type:   wire.EventTyping,
		User:   s.identity,
		Typing: in.Typing,
	})
}

func (s *Session) handleChat(ctx context.Context, in wire.Inbound) {
	message := strings.TrimSpace(in.Message)
	if message == "" && in.Media == "" {
		s.sendError("You must send either a message or media")
		return
	}

	var attachment *attachment
	if in.Media != "" {
		att, err := decodeAttachment(in.Media)
		if err != nil {
			s.log.Debug("media decode failed", "error", err)
			s.sendError("Invalid media file")
			return
		}
		attachment = att
	}

	recipient := s.resolveRecipient(in.Recipient)
	if recipient == "" {
		s.sendError("A recipient is required")
		return
	}
	group, err := convo.ConversationGroup(s.identity, recipient)
	if err != nil {
		s.sendError("You cannot message yourself")
		return
	}

	exists, err := s.recipientExists(ctx, recipient)
	if err != nil {
		s.log.Warn("recipient lookup failed", "recipient", recipient, "error", err)
		s.sendError("Something went wrong")
		return
	}
	if !exists {
		s.sendError("Recipient does not exist")
		return
	}

	var mediaURL string
	if attachment != nil {
		mediaURL, err = s.storeMedia(ctx, attachment)
		if err != nil {
			s.log.Warn("media store failed", "error", err)
			s.sendError("Could not store media")
			return
		}
	}

	reply, err := s.saveMessage(ctx, wire.SaveRequest{
		Sender:    s.identity,
		Recipient: recipient,
		Message:   message,
		MediaURL:  mediaURL,
	})
	if err != nil {
		s.log.Warn("message save failed", "recipient", recipient, "error", err)
		s.sendError("Could not save your message")
		return
	}
	if reply.Error != "" {
		s.sendError(reply.Error)
		return
	}

	s.publish(ctx, group, wire.Event{
		Type:      wire.EventChatMessage,
		Message:   message,
		Media:     mediaURL,
		User:      s.identity,
		Recipient: recipient,
		MessageID: reply.ID,
		SentAt:    reply.SentAt.UTC().Format(time.RFC3339Nano),
	})
}

// teardown leaves every joined group, flips presence Offline and announces
// it to the friends snapshot taken at connect time. Best effort throughout:
// a failed step is logged and the teardown completes regardless.
func (s *Session) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.callTimeout())
	defer cancel()

	for group, m := range s.groups {
		if err := m.Leave(); err != nil {
			s.log.Warn("failed to leave group", "group", group, "error", err)
		}
	}
	s.groups = make(map[string]Membership)

	if err := s.deps.Presence.Set(ctx, s.identity, wire.StatusOffline); err != nil {
		s.log.Warn("failed to set presence offline", "error", err)
	}

	for _, friend := range s.friends {
		err := s.deps.Fabric.Publish(ctx, convo.PersonalGroup(friend), wire.Event{
			Type:     wire.EventUserStatus,
			Username: s.identity,
			Status:   wire.StatusOffline,
		})
		if err != nil {
			s.log.Warn("failed to announce offline", "friend", friend, "error", err)
		}
	}
}

// deliver receives events published to any group this session is joined to,
// the session's own publications included. The variant set is closed;
// anything else is dropped here at the fabric boundary.
func (s *Session) deliver(evt wire.Event) {
	switch evt.Type {
	case wire.EventChatMessage, wire.EventTyping, wire.EventUserStatus:
		s.enqueue(evt)
	default:
		s.log.Debug("dropping unknown group event", "type", evt.Type)
	}
}

func (s *Session) enqueue(evt wire.Event) {
	select {
	case s.send <- evt:
	default:
		s.log.Warn("send buffer full, dropping event", "type", evt.Type)
	}
}

func (s *Session) writePump(ctx context.Context) {
	defer close(s.writeDone)
	for {
		select {
		case evt := <-s.send:
			if evt.Type == wire.EventChatMessage {
				s.observed++
				evt.MessageCount = s.observed
				if evt.User != s.identity && evt.MessageID != 0 {
					s.markDelivered(ctx, evt.MessageID)
				}
			}
			writeCtx, cancel := context.WithTimeout(ctx, s.deps.callTimeout())
			err := s.tr.WriteEvent(writeCtx, evt)
			cancel()
			if err != nil {
				s.log.Debug("client write failed", "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) sendError(msg string) {
	s.enqueue(wire.Event{Type: wire.EventError, Error: msg})
}

func (s *Session) resolveRecipient(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return s.target
}

func (s *Session) join(ctx context.Context, group string) {
	if _, ok := s.groups[group]; ok {
		return
	}
	m, err := s.deps.Fabric.Join(ctx, group, s.deliver)
	if err != nil {
		s.log.Error("failed to join group", "group", group, "error", err)
		s.sendError("Something went wrong")
		return
	}
	s.groups[group] = m
}

func (s *Session) publish(ctx context.Context, group string, evt wire.Event) {
	pubCtx, cancel := context.WithTimeout(ctx, s.deps.callTimeout())
	defer cancel()
	if err := s.deps.Fabric.Publish(pubCtx, group, evt); err != nil {
		s.log.Error("failed to publish to group", "group", group, "type", evt.Type, "error", err)
		s.sendError("Something went wrong")
	}
}

func (s *Session) setPresence(ctx context.Context, status string) error {
	callCtx, cancel := context.WithTimeout(ctx, s.deps.callTimeout())
	defer cancel()
	return s.deps.Presence.Set(callCtx, s.identity, status)
}

// presenceOf reads a friend's cached status, degrading to Offline when the
// store is unreachable.
func (s *Session) presenceOf(ctx context.Context, username string) string {
	callCtx, cancel := context.WithTimeout(ctx, s.deps.callTimeout())
	defer cancel()
	status, err := s.deps.Presence.Get(callCtx, username)
	if err != nil {
		s.log.Warn("presence read failed", "friend", username, "error", err)
		return wire.StatusOffline
	}
	return status
}

func (s *Session) fetchFriends(ctx context.Context) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.deps.callTimeout())
	defer cancel()
	return s.deps.Friends.Friends(callCtx, s.identity)
}

func (s *Session) recipientExists(ctx context.Context, username string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.deps.callTimeout())
	defer cancel()
	return s.deps.Friends.Exists(callCtx, username)
}

func (s *Session) storeMedia(ctx context.Context, att *attachment) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.deps.callTimeout())
	defer cancel()
	return s.deps.Media.Store(callCtx, att.Filename, att.Data)
}

func (s *Session) saveMessage(ctx context.Context, req wire.SaveRequest) (wire.SaveReply, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.deps.callTimeout())
	defer cancel()
	return s.deps.Messages.Save(callCtx, req)
}

func (s *Session) markDelivered(ctx context.Context, messageID int64) {
	callCtx, cancel := context.WithTimeout(ctx, s.deps.callTimeout())
	defer cancel()
	if err := s.deps.Receipts.Delivered(callCtx, messageID, s.identity); err != nil {
		s.log.Debug("delivered marker failed", "message_id", messageID, "error", err)
	}
}
