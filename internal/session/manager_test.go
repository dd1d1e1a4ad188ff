package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pscheid92/sessionkeeper/internal/errors"
	"github.com/pscheid92/sessionkeeper/internal/identity"
	"github.com/pscheid92/sessionkeeper/internal/store"
)

// stubClient implements IdentityClient with per-call overrides and counters.
type stubClient struct {
	mu           sync.Mutex
	refreshCalls int
	logoutCalls  int

	signupFn  func(ctx context.Context, email, password string) (*identity.PendingVerification, error)
	loginFn   func(ctx context.Context, email, password string) (*identity.AuthResult, error)
	googleFn  func(ctx context.Context, idToken string) (*identity.AuthResult, error)
	refreshFn func(ctx context.Context, refreshToken string) (*identity.AuthResult, error)
	getUserFn func(ctx context.Context, accessToken string) (*identity.Account, error)
	logoutFn  func(ctx context.Context, accessToken string) error
}

func (s *stubClient) Signup(ctx context.Context, email, password string) (*identity.PendingVerification, error) {
	if s.signupFn == nil {
		return nil, fmt.Errorf("unexpected Signup call")
	}
	return s.signupFn(ctx, email, password)
}

func (s *stubClient) Login(ctx context.Context, email, password string) (*identity.AuthResult, error) {
	if s.loginFn == nil {
		return nil, fmt.Errorf("unexpected Login call")
	}
	return s.loginFn(ctx, email, password)
}

func (s *stubClient) LoginWithGoogle(ctx context.Context, idToken string) (*identity.AuthResult, error) {
	if s.googleFn == nil {
		return nil, fmt.Errorf("unexpected LoginWithGoogle call")
	}
	return s.googleFn(ctx, idToken)
}

func (s *stubClient) Refresh(ctx context.Context, refreshToken string) (*identity.AuthResult, error) {
	s.mu.Lock()
	s.refreshCalls++
	s.mu.Unlock()
	if s.refreshFn == nil {
		return nil, fmt.Errorf("unexpected Refresh call")
	}
	return s.refreshFn(ctx, refreshToken)
}

func (s *stubClient) GetCurrentUser(ctx context.Context, accessToken string) (*identity.Account, error) {
	if s.getUserFn == nil {
		return nil, fmt.Errorf("unexpected GetCurrentUser call")
	}
	return s.getUserFn(ctx, accessToken)
}

func (s *stubClient) Logout(ctx context.Context, accessToken string) error {
	s.mu.Lock()
	s.logoutCalls++
	s.mu.Unlock()
	if s.logoutFn == nil {
		return nil
	}
	return s.logoutFn(ctx, accessToken)
}

func (s *stubClient) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func testAccount() *identity.Account {
	return &identity.Account{ID: "1", IAMAccountID: "iam-1", Email: "a@b.com", AuthType: "email"}
}

func authResultAt(now time.Time, access, refresh string) *identity.AuthResult {
	return &identity.AuthResult{
		Account: testAccount(),
		TokenPair: identity.TokenPair{
			AccessToken:           access,
			RefreshToken:          refresh,
			AccessTokenExpiresAt:  now.Add(time.Hour),
			RefreshTokenExpiresAt: now.Add(30 * 24 * time.Hour),
		},
	}
}

func TestLogin_FreshScenario(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now()
	client := &stubClient{
		loginFn: func(_ context.Context, email, password string) (*identity.AuthResult, error) {
			assert.Equal(t, "a@b.com", email)
			assert.Equal(t, "pw", password)
			return authResultAt(now, "AT1", "RT1"), nil
		},
	}
	memStore := store.NewMemoryStore()
	m := NewManager(client, memStore, WithClock(clock))
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, "a@b.com", "pw"))

	current, status := m.Current()
	assert.Equal(t, StatusAuthenticated, status)
	require.NotNil(t, current.Account)
	assert.Equal(t, "1", current.Account.ID)
	assert.Equal(t, "a@b.com", current.Account.Email)
	require.NotNil(t, current.Tokens)
	assert.Equal(t, "AT1", current.Tokens.AccessToken)
	assert.Equal(t, "RT1", current.Tokens.RefreshToken)
	assert.Equal(t, now.Add(time.Hour), current.Tokens.AccessTokenExpiresAt)
	assert.Equal(t, now.Add(30*24*time.Hour), current.Tokens.RefreshTokenExpiresAt)

	stored, err := memStore.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "AT1", stored.AccessToken)
	assert.Equal(t, "RT1", stored.RefreshToken)
}

func TestLogin_FailureLeavesStateUnchanged(t *testing.T) {
	client := &stubClient{
		loginFn: func(context.Context, string, string) (*identity.AuthResult, error) {
			return nil, apperrors.UnauthenticatedError("Invalid email or password")
		},
	}
	memStore := store.NewMemoryStore()
	m := NewManager(client, memStore)
	ctx := context.Background()
	m.Rehydrate(ctx) // empty slot: anonymous

	err := m.Login(ctx, "a@b.com", "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthFailure(err))

	_, status := m.Current()
	assert.Equal(t, StatusAnonymous, status)

	stored, err := memStore.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestLogin_StorageFailureFailsLogin(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &stubClient{
		loginFn: func(context.Context, string, string) (*identity.AuthResult, error) {
			return authResultAt(clock.Now(), "AT1", "RT1"), nil
		},
	}
	m := NewManager(client, failingStore{}, WithClock(clock))

	err := m.Login(context.Background(), "a@b.com", "pw")
	require.Error(t, err)

	_, status := m.Current()
	assert.Equal(t, StatusUnknown, status, "failed install must not change state")
}

func TestLoginWithGoogle_InstallsSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &stubClient{
		googleFn: func(_ context.Context, idToken string) (*identity.AuthResult, error) {
			assert.Equal(t, "google-credential", idToken)
			return authResultAt(clock.Now(), "AT1", "RT1"), nil
		},
	}
	m := NewManager(client, store.NewMemoryStore(), WithClock(clock))

	require.NoError(t, m.LoginWithGoogle(context.Background(), "google-credential"))

	current, status := m.Current()
	assert.Equal(t, StatusAuthenticated, status)
	assert.Equal(t, "AT1", current.Tokens.AccessToken)
}

func TestSignup_DoesNotEstablishSession(t *testing.T) {
	client := &stubClient{
		signupFn: func(_ context.Context, email, _ string) (*identity.PendingVerification, error) {
			return &identity.PendingVerification{AccountID: "acc-9", Email: email}, nil
		},
	}
	m := NewManager(client, store.NewMemoryStore())

	pending, err := m.Signup(context.Background(), "new@b.com", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, "acc-9", pending.AccountID)
	assert.Equal(t, "new@b.com", pending.Email)

	current, status := m.Current()
	assert.Equal(t, StatusUnknown, status)
	assert.Nil(t, current.Tokens)
}

func TestLogout_LocallyImmediate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	client := &stubClient{
		loginFn: func(context.Context, string, string) (*identity.AuthResult, error) {
			return authResultAt(clock.Now(), "AT1", "RT1"), nil
		},
		logoutFn: func(ctx context.Context, _ string) error {
			// Server notification hangs until the test releases it.
			select {
			case <-release:
			case <-ctx.Done():
			}
			return fmt.Errorf("never completed")
		},
	}
	memStore := store.NewMemoryStore()
	m := NewManager(client, memStore, WithClock(clock))
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, "a@b.com", "pw"))

	done := make(chan struct{})
	go func() {
		m.Logout(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Logout blocked on the server notification")
	}

	_, status := m.Current()
	assert.Equal(t, StatusAnonymous, status)

	stored, err := memStore.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)

	close(release)
	m.Wait()
}

func TestLogout_AnonymousIsNoop(t *testing.T) {
	client := &stubClient{}
	m := NewManager(client, store.NewMemoryStore())
	ctx := context.Background()
	m.Rehydrate(ctx)

	m.Logout(ctx)
	m.Wait()

	assert.Equal(t, 0, client.logoutCalls, "no token, nothing to invalidate")
	_, status := m.Current()
	assert.Equal(t, StatusAnonymous, status)
}

func TestRehydrate_EmptySlot(t *testing.T) {
	m := NewManager(&stubClient{}, store.NewMemoryStore())

	m.Rehydrate(context.Background())

	_, status := m.Current()
	assert.Equal(t, StatusAnonymous, status)
}

func TestRehydrate_RoundTripPersistence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now()
	client := &stubClient{
		loginFn: func(context.Context, string, string) (*identity.AuthResult, error) {
			return authResultAt(now, "AT1", "RT1"), nil
		},
	}
	memStore := store.NewMemoryStore()
	m := NewManager(client, memStore, WithClock(clock))
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, "a@b.com", "pw"))
	installed, _ := m.Current()

	// Simulate a restart: fresh manager over the same slot, validation passes.
	restarted := NewManager(&stubClient{
		getUserFn: func(_ context.Context, accessToken string) (*identity.Account, error) {
			assert.Equal(t, "AT1", accessToken)
			return testAccount(), nil
		},
	}, memStore, WithClock(clock))

	restarted.Rehydrate(ctx)

	current, status := restarted.Current()
	assert.Equal(t, StatusAuthenticated, status)
	assert.Equal(t, installed.Account, current.Account)
	assert.Equal(t, installed.Tokens, current.Tokens)
}

func TestRehydrate_ValidationFailureClears(t *testing.T) {
	clock := clockwork.NewFakeClock()
	memStore := store.NewMemoryStore()
	ctx := context.Background()
	tokens := authResultAt(clock.Now(), "AT1", "RT1").TokenPair
	require.NoError(t, memStore.Save(ctx, &tokens))

	m := NewManager(&stubClient{
		getUserFn: func(context.Context, string) (*identity.Account, error) {
			return nil, apperrors.UnauthenticatedError("Unauthorized")
		},
	}, memStore, WithClock(clock))

	m.Rehydrate(ctx)

	current, status := m.Current()
	assert.Equal(t, StatusAnonymous, status)
	assert.Nil(t, current.Tokens)

	stored, err := memStore.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRehydrate_UnreachableServerAlsoClears(t *testing.T) {
	clock := clockwork.NewFakeClock()
	memStore := store.NewMemoryStore()
	ctx := context.Background()
	tokens := authResultAt(clock.Now(), "AT1", "RT1").TokenPair
	require.NoError(t, memStore.Save(ctx, &tokens))

	m := NewManager(&stubClient{
		getUserFn: func(context.Context, string) (*identity.Account, error) {
			return nil, apperrors.ExternalError("identity service unreachable", fmt.Errorf("connection refused"))
		},
	}, memStore, WithClock(clock))

	m.Rehydrate(ctx)

	_, status := m.Current()
	assert.Equal(t, StatusAnonymous, status)

	stored, err := memStore.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRehydrate_CorruptSlotStartsAnonymous(t *testing.T) {
	m := NewManager(&stubClient{}, failingStore{})

	m.Rehydrate(context.Background())

	_, status := m.Current()
	assert.Equal(t, StatusAnonymous, status)
}

func TestSubscribe_NotifiesOnTransitions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &stubClient{
		loginFn: func(context.Context, string, string) (*identity.AuthResult, error) {
			return authResultAt(clock.Now(), "AT1", "RT1"), nil
		},
	}
	m := NewManager(client, store.NewMemoryStore(), WithClock(clock))
	ctx := context.Background()

	changes, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.Login(ctx, "a@b.com", "pw"))

	change := <-changes
	assert.Equal(t, StatusAuthenticated, change.Status)
	require.NotNil(t, change.Session.Tokens)
	assert.Equal(t, "AT1", change.Session.Tokens.AccessToken)

	m.Logout(ctx)
	change = <-changes
	assert.Equal(t, StatusAnonymous, change.Status)
	assert.Nil(t, change.Session.Tokens)

	m.Wait()
}

func TestSubscribe_SlowSubscriberGetsLatest(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &stubClient{
		loginFn: func(context.Context, string, string) (*identity.AuthResult, error) {
			return authResultAt(clock.Now(), "AT1", "RT1"), nil
		},
	}
	m := NewManager(client, store.NewMemoryStore(), WithClock(clock))
	ctx := context.Background()

	changes, cancel := m.Subscribe()
	defer cancel()

	// Two transitions without draining: buffer keeps only the newest.
	require.NoError(t, m.Login(ctx, "a@b.com", "pw"))
	m.Logout(ctx)

	change := <-changes
	assert.Equal(t, StatusAnonymous, change.Status)

	select {
	case extra := <-changes:
		t.Fatalf("expected single buffered change, got %+v", extra)
	default:
	}

	m.Wait()
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &stubClient{
		loginFn: func(context.Context, string, string) (*identity.AuthResult, error) {
			return authResultAt(clock.Now(), "AT1", "RT1"), nil
		},
	}
	m := NewManager(client, store.NewMemoryStore(), WithClock(clock))

	changes, cancel := m.Subscribe()
	cancel()

	require.NoError(t, m.Login(context.Background(), "a@b.com", "pw"))

	select {
	case change := <-changes:
		t.Fatalf("cancelled subscriber received %+v", change)
	default:
	}
}

// failingStore errors on Save/Load and succeeds on Clear.
type failingStore struct{}

func (failingStore) Save(context.Context, *identity.TokenPair) error {
	return fmt.Errorf("disk full")
}

func (failingStore) Load(context.Context) (*identity.TokenPair, error) {
	return nil, fmt.Errorf("corrupt slot")
}

func (failingStore) Clear(context.Context) error { return nil }
