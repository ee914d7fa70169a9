package urlutil

import "strings"

// DefaultReturnTo is where users land after login when no usable return path was given.
const DefaultReturnTo = "/dashboard"

// SanitizeReturnTo returns raw if it is an internal path, fallback otherwise.
//
// An internal path starts with a single "/". Absolute URLs ("https://..."),
// protocol-relative URLs ("//host") and the backslash variant browsers
// normalize to it ("/\host") all resolve to the fallback. Every redirect that
// embeds a client-supplied return path must go through here first.
func SanitizeReturnTo(raw string, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return fallback
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	return raw
}

// SanitizeReturnToDefault is SanitizeReturnTo with DefaultReturnTo as fallback.
func SanitizeReturnToDefault(raw string) string {
	return SanitizeReturnTo(raw, DefaultReturnTo)
}
