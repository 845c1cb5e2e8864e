// Package users defines the identity provider capability consumed by the
// session service. Identity storage and password verification are external
// concerns; the session engine only needs the operations below.
package users

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

// RoleType represents an application role attached to a user.
type RoleType string

const (
	RoleAdmin     RoleType = "admin"
	RoleOrganizer RoleType = "organizer"
	RoleCustomer  RoleType = "customer"
)

type User struct {
	ID         string    `json:"id,omitempty"`
	Email      string    `json:"email,omitempty"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	DateJoined time.Time `json:"date_joined,omitempty"`
}

// FullName returns the display name carried in access credentials.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// NewUser carries the fields required to register a user.
type NewUser struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Provider is the identity provider contract. Lookups return ErrNotFound when
// no user matches; Create returns ErrAlreadyExists for duplicate emails.
type Provider interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	VerifyPassword(ctx context.Context, userID, password string) (bool, error)
	Roles(ctx context.Context, userID string) ([]RoleType, error)
	Create(ctx context.Context, newUser NewUser) (*User, error)
}
