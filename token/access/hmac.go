package access

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// HMACSigner signs access credentials as HS256 JWTs.
type HMACSigner struct {
	secret   []byte
	issuer   string
	audience string
	expiry   time.Duration
}

var _ Signer = (*HMACSigner)(nil)

func NewHMACSigner(secret []byte, issuer, audience string, expiry time.Duration) (*HMACSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("[NewHMACSigner] signing secret is required")
	}
	return &HMACSigner{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		expiry:   expiry,
	}, nil
}

func (s *HMACSigner) Sign(claims Claims) (string, error) {
	now := NowTimeFunc().UTC()

	expiresAt := claims.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.expiry)
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"iss":   s.issuer,
		"aud":   s.audience,
		"sub":   claims.UserID,
		"email": claims.Email,
		"name":  claims.Name,
		"roles": claims.Roles,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
		"jti":   uuid.New().String(),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "[HMACSigner Sign] failed to sign token")
	}
	return signed, nil
}

func (s *HMACSigner) Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.Parse(tokenStr, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	},
		jwtlib.WithTimeFunc(func() time.Time { return NowTimeFunc() }),
		jwtlib.WithIssuer(s.issuer),
		jwtlib.WithAudience(s.audience),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[HMACSigner Parse] invalid token")
	}

	mapClaims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("[HMACSigner Parse] invalid token claims")
	}

	return claimsFromMap(mapClaims), nil
}

func claimsFromMap(mapClaims jwtlib.MapClaims) *Claims {
	claims := &Claims{}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.UserID = sub
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := mapClaims["name"].(string); ok {
		claims.Name = name
	}
	if roles, ok := mapClaims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if role, ok := r.(string); ok {
				claims.Roles = append(claims.Roles, role)
			}
		}
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return claims
}
