package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "github.com/pscheid92/sessionkeeper/internal/errors"
	"github.com/pscheid92/sessionkeeper/internal/identity"
	"github.com/pscheid92/sessionkeeper/internal/metrics"
	"github.com/pscheid92/sessionkeeper/internal/platform/retry"
	"github.com/pscheid92/sessionkeeper/internal/store"
)

const (
	defaultRenewThreshold = 5 * time.Minute
	defaultCheckInterval  = 2 * time.Minute

	logoutNotifyTimeout  = 30 * time.Second
	logoutNotifyAttempts = 3
	logoutNotifyBackoff  = 500 * time.Millisecond
)

// Manager is the authoritative owner of the session state.
type Manager struct {
	client IdentityClient
	store  store.Store
	clock  clockwork.Clock
	logger *slog.Logger

	renewThreshold time.Duration
	checkInterval  time.Duration

	mu       sync.Mutex
	status   Status
	session  Session
	renewing bool

	subs      map[int]chan Change
	nextSubID int

	// notifyWG tracks the background logout notification, so tests and
	// shutdown can wait for it.
	notifyWG sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the clock used for expiry checks and the keep-fresh ticker.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithRenewThreshold sets how close to access-token expiry a renewal fires.
func WithRenewThreshold(d time.Duration) Option {
	return func(m *Manager) { m.renewThreshold = d }
}

// WithCheckInterval sets the keep-fresh tick interval.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) { m.checkInterval = d }
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager in the Unknown state. Call Rehydrate once at
// startup to resolve it to Anonymous or Authenticated.
func NewManager(client IdentityClient, sessionStore store.Store, opts ...Option) *Manager {
	m := &Manager{
		client:         client,
		store:          sessionStore,
		clock:          clockwork.NewRealClock(),
		logger:         slog.Default(),
		renewThreshold: defaultRenewThreshold,
		checkInterval:  defaultCheckInterval,
		status:         StatusUnknown,
		subs:           make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the session value and status. No side effects.
func (m *Manager) Current() (Session, Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.clone(), m.status
}

// Subscribe registers for state change notifications. The channel holds the
// latest pending change; slow subscribers skip intermediate states but always
// observe the newest one. The returned cancel func unregisters the channel.
func (m *Manager) Subscribe() (<-chan Change, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Change, 1)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
	return ch, cancel
}

// notifyLocked delivers the current state to all subscribers. Latest-wins: a
// full buffer is drained before the new change goes in.
func (m *Manager) notifyLocked() {
	change := Change{Status: m.status, Session: m.session.clone()}
	for _, ch := range m.subs {
		select {
		case ch <- change:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}

// Signup registers a new account. No session is established; the account
// needs email verification before it can log in.
func (m *Manager) Signup(ctx context.Context, email, password string) (*identity.PendingVerification, error) {
	pending, err := m.client.Signup(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// Login exchanges credentials for a session and installs it. On failure the
// state is left unchanged.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	result, err := m.client.Login(ctx, email, password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("password", "error").Inc()
		return err
	}
	if err := m.install(ctx, result); err != nil {
		metrics.LoginsTotal.WithLabelValues("password", "error").Inc()
		return err
	}
	metrics.LoginsTotal.WithLabelValues("password", "success").Inc()
	return nil
}

// LoginWithGoogle exchanges a Google ID token for a session and installs it.
func (m *Manager) LoginWithGoogle(ctx context.Context, idToken string) error {
	result, err := m.client.LoginWithGoogle(ctx, idToken)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("google", "error").Inc()
		return err
	}
	if err := m.install(ctx, result); err != nil {
		metrics.LoginsTotal.WithLabelValues("google", "error").Inc()
		return err
	}
	metrics.LoginsTotal.WithLabelValues("google", "success").Inc()
	return nil
}

// install persists the session and swaps it into memory. Write-through: if
// the slot cannot be written, the install fails and in-memory state is
// untouched.
func (m *Manager) install(ctx context.Context, result *identity.AuthResult) error {
	tokens := result.TokenPair
	if err := m.store.Save(ctx, &tokens); err != nil {
		return apperrors.ExternalError("failed to persist session", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{Account: result.Account, Tokens: &tokens}
	m.status = StatusAuthenticated
	m.notifyLocked()
	return nil
}

// Logout clears the local session unconditionally and immediately, then
// notifies the identity service in the background to invalidate the refresh
// token server-side. Notification failures are logged, never surfaced.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	var accessToken string
	if m.session.Tokens != nil {
		accessToken = m.session.Tokens.AccessToken
	}
	m.clearLocked(ctx)
	m.mu.Unlock()

	if accessToken == "" {
		return
	}

	m.notifyWG.Add(1)
	go func() {
		defer m.notifyWG.Done()

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutNotifyTimeout)
		defer cancel()

		policy := retry.Policy{MaxAttempts: logoutNotifyAttempts, InitialBackoff: logoutNotifyBackoff}
		classify := func(err error) retry.Action {
			if apperrors.IsAuthFailure(err) {
				// Token already dead server-side, nothing left to invalidate.
				return retry.Stop
			}
			return retry.Retry
		}
		err := retry.DoVoid(notifyCtx, policy, classify, func() error {
			return m.client.Logout(notifyCtx, accessToken)
		})
		if err != nil {
			m.logger.WarnContext(notifyCtx, "server-side logout notification failed", "error", err)
		}
	}()
}

// clearLocked wipes the slot and in-memory state. A storage failure is logged
// and the in-memory clear proceeds: local sign-out must always succeed.
func (m *Manager) clearLocked(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.WarnContext(ctx, "failed to clear persisted session", "error", err)
	}
	m.session = Session{}
	m.status = StatusAnonymous
	m.notifyLocked()
}

// Wait blocks until background logout notifications have finished.
func (m *Manager) Wait() {
	m.notifyWG.Wait()
}
