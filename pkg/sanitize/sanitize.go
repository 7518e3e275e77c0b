// Package sanitize cleans user-supplied display data before it is fanned
// out to other clients.
package sanitize

import (
	"net/url"
	"strings"
	"unicode"
)

// MaxDisplayNameRunes caps display names relayed over signaling
const MaxDisplayNameRunes = 64

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// DisplayName trims, strips control characters and caps the length
func DisplayName(name string) string {
	name = strings.TrimSpace(StripControlCharacters(name))
	runes := []rune(name)
	if len(runes) > MaxDisplayNameRunes {
		name = strings.TrimSpace(string(runes[:MaxDisplayNameRunes]))
	}
	return name
}

// AvatarURL returns the avatar reference if it is an absolute http(s) URL
// or a bare object key, and nil otherwise
func AvatarURL(avatar *string) *string {
	if avatar == nil {
		return nil
	}
	v := strings.TrimSpace(*avatar)
	if v == "" || strings.ContainsFunc(v, unicode.IsControl) {
		return nil
	}
	if strings.Contains(v, "://") {
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil
		}
	} else if strings.Contains(v, ":") {
		// javascript:, data: and friends
		return nil
	}
	return &v
}
