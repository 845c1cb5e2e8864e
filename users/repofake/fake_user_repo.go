package fakeuserrepo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventrian/go-session-service/users"
)

var _ users.Provider = (*FakeUserProvider)(nil)

// FakeUserProvider is an in-memory identity provider. Passwords are stored as
// bcrypt hashes; new users get the customer role.
type FakeUserProvider struct {
	lock     sync.RWMutex
	users    map[string]*userRecord
	emailIDs map[string]string // lowercased email to user id
}

type userRecord struct {
	user         users.User
	passwordHash []byte
	roles        []users.RoleType
}

func NewFakeUserProvider() *FakeUserProvider {
	return &FakeUserProvider{
		users:    make(map[string]*userRecord),
		emailIDs: make(map[string]string),
	}
}

func (p *FakeUserProvider) FindByEmail(_ context.Context, email string) (*users.User, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	id, ok := p.emailIDs[strings.ToLower(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	user := p.users[id].user
	return &user, nil
}

func (p *FakeUserProvider) FindByID(_ context.Context, id string) (*users.User, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	record, ok := p.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	user := record.user
	return &user, nil
}

func (p *FakeUserProvider) VerifyPassword(_ context.Context, userID, password string) (bool, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	record, ok := p.users[userID]
	if !ok {
		return false, users.ErrNotFound
	}
	err := bcrypt.CompareHashAndPassword(record.passwordHash, []byte(password))
	return err == nil, nil
}

func (p *FakeUserProvider) Roles(_ context.Context, userID string) ([]users.RoleType, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	record, ok := p.users[userID]
	if !ok {
		return nil, users.ErrNotFound
	}
	roles := make([]users.RoleType, len(record.roles))
	copy(roles, record.roles)
	return roles, nil
}

func (p *FakeUserProvider) Create(_ context.Context, newUser users.NewUser) (*users.User, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	email := strings.ToLower(newUser.Email)
	if _, ok := p.emailIDs[email]; ok {
		return nil, users.ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newUser.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := users.User{
		ID:         uuid.New().String(),
		Email:      newUser.Email,
		FirstName:  newUser.FirstName,
		LastName:   newUser.LastName,
		DateJoined: time.Now().UTC(),
	}

	p.users[user.ID] = &userRecord{
		user:         user,
		passwordHash: hash,
		roles:        []users.RoleType{users.RoleCustomer},
	}
	p.emailIDs[email] = user.ID

	return &user, nil
}

// Delete removes a user, simulating an account vanishing between token issue
// and refresh.
func (p *FakeUserProvider) Delete(email string) {
	p.lock.Lock()
	defer p.lock.Unlock()

	id, ok := p.emailIDs[strings.ToLower(email)]
	if !ok {
		return
	}
	delete(p.emailIDs, strings.ToLower(email))
	delete(p.users, id)
}
