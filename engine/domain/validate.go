package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxUploadBytes is the upload-surface size ceiling (spec §6).
	MaxUploadBytes = 50 * 1024 * 1024
	minQueryLength = 1
)

// ValidateUpload checks the upload-surface contract before a Document
// descriptor is created: accepted kind, size ceiling. Duplicate-hash
// detection is the caller's responsibility (it requires a repository
// lookup) and is reported with the same ErrDuplicateUpload sentinel.
func ValidateUpload(kind DocumentKind, sizeBytes int64) error {
	if !ValidDocumentKinds[kind] {
		return NewField(KindInputInvalid, "kind", string(kind), ErrUnsupportedFileKind)
	}
	if sizeBytes > MaxUploadBytes {
		return NewField(KindInputInvalid, "size_bytes", itoa(sizeBytes), ErrFileTooLarge)
	}
	return nil
}

// ValidateQuery checks a user query before it enters the agent graph.
func ValidateQuery(text string) error {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < minQueryLength {
		return NewField(KindInputInvalid, "text", trimmed, ErrMalformedQuery)
	}
	return nil
}

// ValidateGroupAccess checks that groupID is among the caller's accessible
// groups. Access control must be enforced by every component that accepts a
// group id, not assumed from the caller (spec §4.6 Policy).
func ValidateGroupAccess(groupID int64, accessibleGroupIDs []int64) error {
	for _, g := range accessibleGroupIDs {
		if g == groupID {
			return nil
		}
	}
	return NewField(KindAccessDenied, "group_id", itoa(groupID), ErrGroupMembership)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
