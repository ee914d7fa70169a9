package adminauth

import (
	emailutil "github.com/dgellow/bid-front/internal/emailutil"
)

// AllowList holds the admin email allow-list. An empty list restricts
// nothing: any signed-in user may enter the admin area.
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList normalizes emails and drops empty entries.
func NewAllowList(emails []string) AllowList {
	normalized := emailutil.NormalizeList(emails)
	set := make(map[string]struct{}, len(normalized))
	for _, email := range normalized {
		set[email] = struct{}{}
	}
	return AllowList{emails: set}
}

// Restricted reports whether an allow-list is configured at all.
func (a AllowList) Restricted() bool {
	return len(a.emails) > 0
}

// Size returns the number of distinct admin emails.
func (a AllowList) Size() int {
	return len(a.emails)
}

// IsAdmin reports whether email may enter the admin area.
func (a AllowList) IsAdmin(email string) bool {
	if !a.Restricted() {
		return true
	}
	normalizedEmail := emailutil.Normalize(email)
	if normalizedEmail == "" {
		return false
	}
	_, ok := a.emails[normalizedEmail]
	return ok
}
