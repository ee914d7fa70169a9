// Package routeaccess decides which request paths need a session.
//
// The policy is a deny-list for the explicitly protected surfaces: a path that
// is neither listed as protected nor as public passes through without a
// session. New page routes added outside both lists are therefore public.
package routeaccess

import "strings"

// Classification is the access class of a request path.
type Classification int

const (
	Unclassified Classification = iota
	Public
	ProtectedPage
	ProtectedAPI
)

func (c Classification) String() string {
	switch c {
	case Public:
		return "public"
	case ProtectedPage:
		return "protected-page"
	case ProtectedAPI:
		return "protected-api"
	default:
		return "unclassified"
	}
}

var publicExactPaths = map[string]struct{}{
	"/":              {},
	"/login":         {},
	"/auth-callback": {},
	"/terms":         {},
	"/privacy":       {},
}

// Public listing pages.
var publicPrefixes = []string{
	"/bid_notice",
	"/pre_bid_notice",
	"/opening_result",
	"/notice",
}

var protectedPagePrefixes = []string{
	"/dashboard",
	"/history",
	"/profile",
	"/point-history",
	"/mock-bid",
	"/qualification-calculator",
	"/challenge",
	"/learning",
}

var protectedAPIPrefixes = []string{
	"/api/paid",
	"/api/bookmarks",
	"/api/bid-history",
	"/api/notification-preferences",
	"/api/notifications",
}

// Admin area.
const (
	AdminPrefix           = "/admin"
	AdminLoginPath        = "/admin/login"
	AdminUnauthorizedPath = "/admin/unauthorized"
	AdminCallbackPath     = "/admin/auth-callback"
)

var adminExemptPrefixes = []string{
	AdminLoginPath,
	AdminUnauthorizedPath,
	AdminCallbackPath,
}

// matchesPrefix reports whether path equals prefix or sits below it.
// "/challenge" matches "/challenge/ranking" but not "/challenges".
func matchesPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func matchesAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if matchesPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IsPublicPath reports whether path is explicitly public.
func IsPublicPath(path string) bool {
	if _, ok := publicExactPaths[path]; ok {
		return true
	}
	return matchesAny(path, publicPrefixes)
}

// IsProtectedPagePath reports whether path is a page that needs a session.
func IsProtectedPagePath(path string) bool {
	return matchesAny(path, protectedPagePrefixes)
}

// IsProtectedAPIPath reports whether path is a JSON API that needs a session.
func IsProtectedAPIPath(path string) bool {
	return matchesAny(path, protectedAPIPrefixes)
}

// Classify returns the access class for path.
func Classify(path string) Classification {
	switch {
	case IsProtectedAPIPath(path):
		return ProtectedAPI
	case IsProtectedPagePath(path):
		return ProtectedPage
	case IsPublicPath(path):
		return Public
	default:
		return Unclassified
	}
}

// BuildReturnToFromPath joins a path and its raw query into a return target.
// The result is not sanitized here; the login URL builders do that.
func BuildReturnToFromPath(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	if strings.HasPrefix(rawQuery, "?") {
		return path + rawQuery
	}
	return path + "?" + rawQuery
}

// IsAdminPath reports whether path is inside the admin area.
func IsAdminPath(path string) bool {
	return matchesPrefix(path, AdminPrefix)
}

// IsAdminExemptPath reports whether an admin path is reachable without admin rights.
func IsAdminExemptPath(path string) bool {
	return matchesAny(path, adminExemptPrefixes)
}
