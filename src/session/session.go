// Package session turns credentials into a verified Identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/repository"
	"github.com/theleywin/workkie/src/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCost       = 11
	MinPasswordLength = 6
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSignup      = errors.New("invalid signup")
	ErrUsernameTaken      = errors.New("username already exists")
)

type SignupInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Avatar    string `json:"avatar"`
	Education string `json:"education"`
	Degree    string `json:"degree"`
}

type Authenticator struct {
	users *repository.UserRepository
	cost  int
}

// NewAuthenticator hashes with the given bcrypt cost; 0 selects DefaultCost.
func NewAuthenticator(users *repository.UserRepository, cost int) *Authenticator {
	if cost == 0 {
		cost = DefaultCost
	}
	return &Authenticator{users: users, cost: cost}
}

func (a *Authenticator) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrInvalidSignup)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidSignup, MinPasswordLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:  in.Username,
		Email:     in.Email,
		Password:  string(hashed),
		Avatar:    in.Avatar,
		Education: in.Education,
		Degree:    in.Degree,
	}
	if err := a.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	glog.Infof("[session] signed up %s", user.Username)
	return user, nil
}

// Authenticate checks the password against the stored hash. An unknown user
// and a wrong password are indistinguishable to the caller.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (models.Identity, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Identity{}, ErrInvalidCredentials
		}
		return models.Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		glog.V(1).Infof("[session] failed login for %s", username)
		return models.Identity{}, ErrInvalidCredentials
	}
	return models.Identity{UserID: user.Id, Username: user.Username}, nil
}
