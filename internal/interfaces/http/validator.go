package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxSlugLength      = 64
	MaxTitleLength     = 256
	MaxConfigKeyLength = 64
	MaxConfigValLength = 50000
	MaxUserIDLength    = 128
)

var (
	slugPattern      = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	configKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	userIDPattern    = regexp.MustCompile(`^[a-z]+:[A-Za-z0-9_.@+-]+$`)
)

// ValidSlug checks if a slug is safe (alphanumeric + underscore + hyphen)
func ValidSlug(s string) bool {
	return s != "" && len(s) <= MaxSlugLength && slugPattern.MatchString(s)
}

// ValidConfigKey checks if a config key is safe
func ValidConfigKey(s string) bool {
	return s != "" && len(s) <= MaxConfigKeyLength && configKeyPattern.MatchString(s)
}

// ValidUserID checks the "<platform>:<chat id>" conversation key.
func ValidUserID(s string) bool {
	return len(s) <= MaxUserIDLength && userIDPattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}

// ValidateLength checks if string is within bounds
func ValidateLength(s string, min, max int) bool {
	l := len(s)
	return l >= min && l <= max
}
