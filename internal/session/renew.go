package session

import (
	"context"

	apperrors "github.com/pscheid92/sessionkeeper/internal/errors"
	"github.com/pscheid92/sessionkeeper/internal/metrics"
	"github.com/pscheid92/sessionkeeper/internal/platform/correlation"
)

// EnsureFresh renews the access token if it is close to expiry. Safe to call
// from any goroutine at any frequency: overlapping calls no-op while a
// renewal is in flight, and nothing happens while the token is still fresh.
// Errors are never returned; a terminal refresh failure demotes the session
// to anonymous, a transient one leaves it for the next scheduled check.
func (m *Manager) EnsureFresh(ctx context.Context) {
	m.mu.Lock()
	if m.session.Tokens == nil {
		m.mu.Unlock()
		return
	}
	if m.renewing {
		m.mu.Unlock()
		metrics.RenewalsTotal.WithLabelValues(metrics.OutcomeSkippedInFlight).Inc()
		return
	}

	timeUntilExpiry := m.session.Tokens.AccessTokenExpiresAt.Sub(m.clock.Now())
	if timeUntilExpiry > m.renewThreshold {
		m.mu.Unlock()
		metrics.RenewalsTotal.WithLabelValues(metrics.OutcomeSkippedFresh).Inc()
		return
	}

	m.renewing = true
	refreshToken := m.session.Tokens.RefreshToken
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.renewing = false
		m.mu.Unlock()
	}()

	started := m.clock.Now()
	result, err := m.client.Refresh(ctx, refreshToken)
	metrics.RenewalDuration.Observe(m.clock.Since(started).Seconds())

	if err != nil {
		if apperrors.IsAuthFailure(err) {
			m.logger.InfoContext(ctx, "refresh token rejected, clearing session", "error", err)
			metrics.RenewalsTotal.WithLabelValues(metrics.OutcomeTerminalFailure).Inc()
			m.mu.Lock()
			m.clearLocked(ctx)
			m.mu.Unlock()
			return
		}

		m.logger.WarnContext(ctx, "renewal failed transiently, keeping session", "error", err)
		metrics.RenewalsTotal.WithLabelValues(metrics.OutcomeTransientFailure).Inc()
		return
	}

	tokens := result.TokenPair
	if err := m.store.Save(ctx, &tokens); err != nil {
		// The server already rotated the pair; dropping it over a storage
		// hiccup would log the user out. Keep the session live in memory and
		// let the next successful save repair the slot.
		m.logger.WarnContext(ctx, "failed to persist renewed session", "error", err)
	}

	m.mu.Lock()
	m.session.Tokens = &tokens
	if result.Account != nil {
		account := *result.Account
		m.session.Account = &account
	}
	m.status = StatusAuthenticated
	m.notifyLocked()
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "session renewed")
	metrics.RenewalsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
}

// Rehydrate restores the session from the durable slot at startup. An empty
// slot resolves straight to Anonymous. A stored token pair is installed
// provisionally and validated against the identity service; any validation
// failure clears the slot and resolves to Anonymous. Rehydrate never returns
// an error for an invalid or unreachable session, only for programmer misuse
// downstream; routine outcomes surface through state alone.
func (m *Manager) Rehydrate(ctx context.Context) {
	tokens, err := m.store.Load(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load stored session, starting anonymous", "error", err)
		m.mu.Lock()
		m.clearLocked(ctx)
		m.mu.Unlock()
		return
	}
	if tokens == nil {
		m.mu.Lock()
		m.status = StatusAnonymous
		m.notifyLocked()
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.session.Tokens = tokens
	m.mu.Unlock()

	account, err := m.client.GetCurrentUser(ctx, tokens.AccessToken)
	if err != nil {
		// Invalid token and unreachable server both land here and both clear;
		// a stale session at startup is routine, not a fault.
		m.logger.InfoContext(ctx, "stored session failed validation, starting anonymous", "error", err)
		m.mu.Lock()
		m.clearLocked(ctx)
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.session.Account = account
	m.status = StatusAuthenticated
	m.notifyLocked()
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "session rehydrated", "email", account.Email)
}

// KeepFresh runs the scheduled renewal check until ctx is cancelled. Each
// tick gets its own correlation ID. The tick fires regardless of session
// state; EnsureFresh no-ops when anonymous or already renewing.
func (m *Manager) KeepFresh(ctx context.Context) {
	ticker := m.clock.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			tickCtx := correlation.WithID(ctx, correlation.NewID())
			m.EnsureFresh(tickCtx)
		}
	}
}
