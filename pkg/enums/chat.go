package enums

import "fmt"

// ChatStatus tracks whether a chat group still accepts messages.
type ChatStatus string

const (
	ChatStatusActive   ChatStatus = "active"
	ChatStatusArchived ChatStatus = "archived"
)

var validChatStatuses = []ChatStatus{
	ChatStatusActive,
	ChatStatusArchived,
}

// IsValid reports whether the value matches the canonical chat status enum.
func (s ChatStatus) IsValid() bool {
	for _, candidate := range validChatStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseChatStatus converts the raw string to ChatStatus.
func ParseChatStatus(value string) (ChatStatus, error) {
	for _, candidate := range validChatStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid chat status %q", value)
}

// ChatType distinguishes appointment-bound private groups from open community rooms.
type ChatType string

const (
	ChatTypePrivate   ChatType = "private"
	ChatTypeCommunity ChatType = "community"
)

var validChatTypes = []ChatType{
	ChatTypePrivate,
	ChatTypeCommunity,
}

// IsValid reports whether the value matches the canonical chat type enum.
func (t ChatType) IsValid() bool {
	for _, candidate := range validChatTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseChatType converts the raw string to ChatType.
func ParseChatType(value string) (ChatType, error) {
	for _, candidate := range validChatTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid chat type %q", value)
}
