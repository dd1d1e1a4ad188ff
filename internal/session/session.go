package session

import (
	"context"

	"github.com/pscheid92/sessionkeeper/internal/identity"
)

// Status is the coarse authentication state.
type Status int

const (
	// StatusUnknown is the initial state before rehydration completes.
	StatusUnknown Status = iota
	// StatusAnonymous means no valid session exists.
	StatusAnonymous
	// StatusAuthenticated means a full session (account + tokens) is installed.
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Session is the current authentication state. Account and Tokens are either
// both set or both nil; partial states never escape the manager.
type Session struct {
	Account *identity.Account
	Tokens  *identity.TokenPair
}

func (s Session) clone() Session {
	out := Session{}
	if s.Account != nil {
		account := *s.Account
		out.Account = &account
	}
	if s.Tokens != nil {
		tokens := *s.Tokens
		out.Tokens = &tokens
	}
	return out
}

// Change is delivered to subscribers on every state transition.
type Change struct {
	Status  Status
	Session Session
}

// IdentityClient is the slice of the identity service the manager depends on.
type IdentityClient interface {
	Signup(ctx context.Context, email, password string) (*identity.PendingVerification, error)
	Login(ctx context.Context, email, password string) (*identity.AuthResult, error)
	LoginWithGoogle(ctx context.Context, idToken string) (*identity.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.AuthResult, error)
	GetCurrentUser(ctx context.Context, accessToken string) (*identity.Account, error)
	Logout(ctx context.Context, accessToken string) error
}
