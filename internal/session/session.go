// Package session consumes the external identity provider: an opaque
// token issuer whose tokens carry email claims. The Manager holds the
// current session and fans out change notifications to subscribers, so
// the access gate can re-derive state whenever the session changes.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the decoded identity of the signed-in user.
type Session struct {
	Token     string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Claims is the token payload the identity provider signs. The account ID
// travels in the registered subject claim.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Provider issues the current session and pushes change notifications.
// Subscribe returns a cancellation handle that must be called on teardown.
type Provider interface {
	Current(ctx context.Context) (*Session, error)
	Subscribe(fn func(*Session)) (cancel func())
}

// Manager verifies HS256 tokens against the secret shared with the
// identity provider and tracks the active session.
type Manager struct {
	mu      sync.RWMutex
	secret  []byte
	current *Session
	subs    map[int]func(*Session)
	nextID  int
}

func NewManager(secret string) *Manager {
	return &Manager{
		secret: []byte(secret),
		subs:   make(map[int]func(*Session)),
	}
}

// SetToken verifies a raw token, installs the resulting session as current,
// and notifies subscribers. Rejected tokens leave the current session alone.
func (m *Manager) SetToken(raw string) (*Session, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("session token has no email claim")
	}

	sess := &Session{
		Token:  raw,
		UserID: claims.Subject,
		Email:  claims.Email,
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.notify(sess)
	return sess, nil
}

// Current returns the active session, or nil when signed out. An expired
// token counts as signed out.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	sess := m.current
	m.mu.RUnlock()

	if sess != nil && !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		return nil, nil
	}
	return sess, nil
}

// SignOut clears the session locally and notifies subscribers immediately.
// No identity-provider round trip is involved.
func (m *Manager) SignOut() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	m.notify(nil)
}

// Subscribe registers a session-change callback. The returned cancel
// function releases the subscription; callers must invoke it on teardown.
func (m *Manager) Subscribe(fn func(*Session)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(sess *Session) {
	m.mu.RLock()
	fns := make([]func(*Session), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(sess)
	}
}
