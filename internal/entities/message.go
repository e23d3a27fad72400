package entities

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the longest outbound text, in characters. It matches
// Telegram's limit.
const MaxMessageLength = 4096

// Message is an inbound chat message as received from an external platform.
type Message struct {
	ID       string
	From     string // platform-local sender id (chat id, phone number)
	Content  string
	Platform string // e.g., "whatsapp", "web", "telegram"
}

// UserID returns the conversation key used across turns, rooms and ownership.
func (m Message) UserID() string {
	return m.Platform + ":" + m.From
}

// SplitUserID splits "telegram:12345" into platform and recipient.
// A user id without a platform prefix is treated as a web user.
func SplitUserID(userID string) (platform, recipient string) {
	platform, recipient, ok := strings.Cut(userID, ":")
	if !ok {
		return "web", userID
	}
	return platform, recipient
}

// CleanText strips NUL bytes and invalid UTF-8 and trims surrounding space.
// It returns ErrEmptyMessage or ErrMessageTooLong when the result cannot be
// sent.
func CleanText(s string) (string, error) {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", ErrEmptyMessage
	case utf8.RuneCountInString(s) > MaxMessageLength:
		return "", ErrMessageTooLong
	}
	return s, nil
}
