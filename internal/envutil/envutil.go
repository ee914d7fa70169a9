package envutil

import (
	"os"
	"strings"
)

// IsDev checks if we're running in development mode, where cookies are
// issued without the Secure flag so plain-http localhost logins work.
func IsDev() bool {
	env := strings.ToLower(os.Getenv("BID_FRONT_ENV"))
	return env == "development" || env == "dev"
}
