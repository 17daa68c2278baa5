// Package email derives presentation values from email addresses.
package email

import (
	"strings"
	"unicode"
)

// DisplayName builds a human-readable name from the local part of an
// address: "ada.lovelace@example.com" becomes "Ada Lovelace". It falls back
// to "User" when nothing usable remains.
func DisplayName(email string) string {
	localPart := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		localPart = email[:at]
	}
	// plus-addressing tags are not part of the name
	localPart, _, _ = strings.Cut(localPart, "+")

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return "User"
	}
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
