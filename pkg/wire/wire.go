// Package wire holds the JSON payloads exchanged between the gateway, the
// backing services and the browser client.
package wire

import "time"

// Inbound is one frame sent by a connected client. At least one of Message
// or Media must be present unless Typing is set, in which case Typing fully
// determines the action and the other fields are ignored.
type Inbound struct {
	Message   string `json:"message,omitempty"`
	Media     string `json:"media,omitempty"`
	Typing    *bool  `json:"typing,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// Outbound event kinds. The set is closed: anything else arriving on a group
// is dropped at the fabric boundary.
const (
	EventChatMessage   = "chat_message"
	EventTyping        = "typing"
	EventUserStatus    = "user_status"
	EventFriendsStatus = "friends_status"
	EventError         = "error"
)

// Presence values stored in the PRESENCE bucket. Written on connect and
// disconnect only, last writer wins.
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
)

// Event is the discriminated envelope delivered to clients and published on
// groups. Which fields are populated depends on Type.
type Event struct {
	Type string `json:"type"`

	// chat_message
	Message      string `json:"message,omitempty"`
	Media        string `json:"media,omitempty"`
	User         string `json:"user,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	MessageID    int64  `json:"message_id,omitempty"`
	SentAt       string `json:"sent_at,omitempty"`
	MessageCount int    `json:"message_count,omitempty"`

	// typing (User carries the sender)
	Typing *bool `json:"typing,omitempty"`

	// user_status
	Username string `json:"username,omitempty"`
	Status   string `json:"status,omitempty"`

	// friends_status
	Statuses map[string]string `json:"statuses,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// SaveRequest asks message-service to persist one message record.
type SaveRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"message,omitempty"`
	MediaURL  string `json:"mediaUrl,omitempty"`
}

// SaveReply carries the server-assigned id and timestamp, or an error string
// when the record was rejected at the persistence boundary.
type SaveReply struct {
	ID     int64     `json:"id,omitempty"`
	SentAt time.Time `json:"sentAt,omitzero"`
	Error  string    `json:"error,omitempty"`
}

// MessageRecord is one persisted message as served by message-service.
type MessageRecord struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message,omitempty"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	SentAt    time.Time `json:"sentAt"`
	Delivered bool      `json:"delivered,omitempty"`
	Read      bool      `json:"read,omitempty"`
	IsDeleted bool      `json:"isDeleted,omitempty"`
}

// HistoryRequest pages backwards through a conversation. Before is a message
// id cursor; zero means "latest page".
type HistoryRequest struct {
	Before int64 `json:"before,omitempty"`
}

// HistoryResponse is a chronological page of messages.
type HistoryResponse struct {
	Messages []MessageRecord `json:"messages"`
	HasMore  bool            `json:"hasMore"`
}

// ExistsReply answers a user.exists lookup.
type ExistsReply struct {
	Exists bool `json:"exists"`
}

// StoreMediaRequest asks media-service to store a decoded attachment.
type StoreMediaRequest struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// StoreMediaReply returns the retrievable URL for a stored attachment.
type StoreMediaReply struct {
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// Receipt marker kinds consumed by receipt-worker.
const (
	ReceiptDelivered = "delivered"
	ReceiptRead      = "read"
)

// Receipt is a best-effort delivered/read marker for one message. Username is
// the recipient asserting the marker.
type Receipt struct {
	MessageID int64  `json:"messageId"`
	Username  string `json:"username"`
	Kind      string `json:"kind"`
}
