package access

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// The helpers below read claims without verifying the signature. Clients use
// them to decide when to refresh; the server never trusts an unverified read.

// ExpiryOf returns the expiry claim of an access credential.
func ExpiryOf(tokenStr string) (time.Time, error) {
	claims, err := inspect(tokenStr)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt.IsZero() {
		return time.Time{}, errors.New("[ExpiryOf] token has no expiry claim")
	}
	return claims.ExpiresAt, nil
}

// UserIDOf returns the subject claim of an access credential.
func UserIDOf(tokenStr string) (string, error) {
	claims, err := inspect(tokenStr)
	if err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", errors.New("[UserIDOf] token has no subject claim")
	}
	return claims.UserID, nil
}

// ExpiresWithin reports whether the credential expires inside the given slack,
// treating unreadable tokens as already expired.
func ExpiresWithin(tokenStr string, slack time.Duration) bool {
	expiry, err := ExpiryOf(tokenStr)
	if err != nil {
		return true
	}
	return !expiry.After(NowTimeFunc().UTC().Add(slack))
}

func inspect(tokenStr string) (*Claims, error) {
	parser := jwtlib.NewParser()
	token, _, err := parser.ParseUnverified(tokenStr, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[inspect] failed to parse token")
	}
	mapClaims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("[inspect] unexpected claims type")
	}
	return claimsFromMap(mapClaims), nil
}
