// Package convo derives the deterministic group names used for chat fan-out.
//
// A conversation group is shared by exactly two users and both participants
// must compute the same name regardless of who initiates, so the two
// usernames are ordered lexicographically before joining. A personal group
// is scoped to a single user and carries direct notices such as presence
// pushes.
package convo

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfConversation is returned when both participants are the same user.
	ErrSelfConversation = errors.New("conversation requires two distinct users")
	// ErrEmptyUsername is returned when a participant name is empty.
	ErrEmptyUsername = errors.New("username must not be empty")
)

// ConversationGroup returns the group name shared by users a and b.
// The name is symmetric: ConversationGroup(a, b) == ConversationGroup(b, a).
func ConversationGroup(a, b string) (string, error) {
	if a == "" || b == "" {
		return "", ErrEmptyUsername
	}
	if a == b {
		return "", fmt.Errorf("%w: %q", ErrSelfConversation, a)
	}
	if b < a {
		a, b = b, a
	}
	return a + "_" + b, nil
}

// PersonalGroup returns the group name scoped to a single user.
func PersonalGroup(username string) string {
	return "user_" + username
}
