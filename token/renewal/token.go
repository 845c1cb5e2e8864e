// Package renewal implements the server-side lifecycle of renewal tokens: the
// longer-lived opaque bearer values that clients exchange for fresh access
// credentials. A token is created by login, registration, or rotation, marked
// used at most once, and removed by revocation, replay handling, or cleanup.
package renewal

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by stores when no record matches a lookup.
var ErrNotFound = errors.New("renewal token not found")

// Token is a persisted renewal-token record. Value is the bearer secret and is
// unique across all records. UsedAt stays nil until a rotation consumes the
// token; the record is then retained briefly so duplicate client retries keep
// working before cleanup removes it.
type Token struct {
	ID           string
	Value        string
	UserID       string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UsedAt       *time.Time
	IsPersistent bool
}

// Expired reports whether the token can no longer authenticate, regardless of
// its used state.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// UsedBefore reports whether the token was consumed at or before the cutoff.
func (t *Token) UsedBefore(cutoff time.Time) bool {
	return t.UsedAt != nil && !t.UsedAt.After(cutoff)
}

// Clone returns a deep copy so stores never hand out aliased records.
func (t *Token) Clone() *Token {
	clone := *t
	if t.UsedAt != nil {
		usedAt := *t.UsedAt
		clone.UsedAt = &usedAt
	}
	return &clone
}

// Store is the persistence contract for renewal tokens. It holds no policy:
// what counts as valid, excess, or expired is decided by the caller and passed
// in as timestamps, windows, and counts. Mutations are applied immediately;
// there is no separate commit step.
type Store interface {
	// Create persists a new record. The value must not already exist.
	Create(ctx context.Context, token *Token) error

	// FindByValue returns the record with the given bearer value in any
	// state, or ErrNotFound.
	FindByValue(ctx context.Context, value string) (*Token, error)

	// FindValidByValue returns the record only if it is unexpired at now and
	// either unused or used after now-replayWindow. ErrNotFound otherwise.
	FindValidByValue(ctx context.Context, value string, now time.Time, replayWindow time.Duration) (*Token, error)

	// MarkUsed stamps the record's UsedAt. ErrNotFound if absent.
	MarkUsed(ctx context.Context, value string, usedAt time.Time) error

	// ListByUser returns every record owned by the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Token, error)

	// ListExcess returns the user's records beyond the keep most recently
	// created, newest first ordering applied before the cut.
	ListExcess(ctx context.Context, userID string, keep int) ([]*Token, error)

	// ListUserIDs returns the distinct owners of all stored records.
	ListUserIDs(ctx context.Context) ([]string, error)

	// Delete removes the record with the given value. Absence is not an error.
	Delete(ctx context.Context, value string) error

	// DeleteBatch removes all records with the given values, returning how
	// many existed.
	DeleteBatch(ctx context.Context, values []string) (int, error)

	// DeleteAllForUser removes every record owned by the user, returning how
	// many existed.
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
}
