package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxPostLength    = 5000
	MaxCommentLength = 2000
	MaxMessageLength = 4000
	MaxGroupName     = 80
	MaxBioLength     = 500
)

// ValidateContent rejects blank text and text longer than limit runes.
func ValidateContent(field, text string, limit int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if utf8.RuneCountInString(text) > limit {
		return fmt.Errorf("%s must not exceed %d characters", field, limit)
	}
	return nil
}

// ValidateGroupName checks a group's display name.
func ValidateGroupName(name string) error {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < 3 {
		return fmt.Errorf("group name must be at least 3 characters long")
	}
	return ValidateContent("group name", name, MaxGroupName)
}
