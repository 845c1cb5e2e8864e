// Package access implements the short-lived signed credential that proves a
// user's identity and roles for a single request window. Renewal-token state
// lives elsewhere; this package only mints and reads the signed string.
package access

import "time"

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims is the identity payload carried by an access credential.
type Claims struct {
	UserID    string
	Email     string
	Name      string
	Roles     []string
	ExpiresAt time.Time
}

// Signer mints and verifies access credentials. Implementations decide the
// signing scheme; callers treat the token as opaque.
type Signer interface {
	Sign(claims Claims) (string, error)
	Parse(token string) (*Claims, error)
}
