// Package gate decides which top-level screen a client shows: the auth
// prompt, a payment-blocked screen, a loading state, or the product. The
// decision is re-derived from scratch on every session change; nothing is
// patched incrementally, so a stale projection can never leak across a
// sign-in or sign-out.
package gate

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/creatorhub/creatorhub/internal/session"
)

// View is the screen the client shell should render.
type View string

const (
	ViewLoading View = "loading"
	ViewAuth    View = "auth"
	ViewBlocked View = "blocked"
	ViewProduct View = "product"
)

// State is the gate's renderable projection. Plan and RawStatus carry the
// last-observed subscription fields for the blocked screen.
type State struct {
	View      View
	Email     string
	Plan      string
	RawStatus string
}

// Access is the subscription read contract: the three fields a client may
// see for its own email.
type Access struct {
	Status string `json:"status"`
	Plan   string `json:"plan"`
	UserID string `json:"user_id"`
}

// AccessReader looks up the subscription record for an email.
// A missing record is (nil, nil), not an error.
type AccessReader interface {
	Lookup(ctx context.Context, email string) (*Access, error)
}

// UserLinker back-fills the identity link on a subscription record.
// Implementations only set user_id when it is currently empty.
type UserLinker interface {
	LinkUser(ctx context.Context, email, userID string) error
}

// activeMarkers is the coarse binary classifier for the client: any of
// these substrings in the stored status grants entry. Everything else,
// including lookup failures and absent records, is treated as inactive.
var activeMarkers = []string{"active", "approved", "paid", "renewed"}

// Gate is the access state machine. All methods are safe for concurrent
// use; OnChange callbacks run outside the internal lock.
type Gate struct {
	mu        sync.Mutex
	sessions  session.Provider
	access    AccessReader
	linker    UserLinker
	logger    *slog.Logger
	onChange  func(State)
	state     State
	session   *session.Session
	cancelSub func()
	closed    bool
	gen       int
}

// Option configures a Gate.
type Option func(*Gate)

// WithUserLinker enables best-effort identity linking after a successful
// lookup. Link failures never affect the gating decision.
func WithUserLinker(l UserLinker) Option {
	return func(g *Gate) { g.linker = l }
}

// WithOnChange registers a callback invoked after every state transition.
func WithOnChange(fn func(State)) Option {
	return func(g *Gate) { g.onChange = fn }
}

func New(sessions session.Provider, access AccessReader, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		sessions: sessions,
		access:   access,
		logger:   logger,
		state:    State{View: ViewLoading},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start subscribes to session changes and derives the initial state from
// the current session. Callers must Close the gate on teardown.
func (g *Gate) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	cancel := g.sessions.Subscribe(func(s *session.Session) {
		g.apply(context.Background(), s)
	})
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		cancel()
		return nil
	}
	g.cancelSub = cancel
	g.mu.Unlock()

	sess, err := g.sessions.Current(ctx)
	if err != nil {
		// Treat an unreachable identity provider as signed out rather
		// than crashing the shell.
		g.logger.Warn("session fetch failed", "error", err)
		g.apply(ctx, nil)
		return nil
	}
	g.apply(ctx, sess)
	return nil
}

// State returns the current projection.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Refresh re-derives access for the current session on demand, covering
// the "completed payment in another tab" case.
func (g *Gate) Refresh(ctx context.Context) {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	g.apply(ctx, sess)
}

// Close releases the session subscription and suppresses any state update
// from an in-flight lookup that resolves afterwards.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	cancel := g.cancelSub
	g.cancelSub = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// apply re-derives the state for a session snapshot. A generation counter
// guards the lookup: if the session changes (or the gate closes) while a
// lookup is in flight, the late result is dropped.
func (g *Gate) apply(ctx context.Context, sess *session.Session) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.session = sess
	g.gen++
	myGen := g.gen

	if sess == nil {
		state := State{View: ViewAuth}
		g.state = state
		g.mu.Unlock()
		g.emit(state)
		return
	}
	if sess.Email == "" {
		state := State{View: ViewBlocked}
		g.state = state
		g.mu.Unlock()
		g.emit(state)
		return
	}

	loading := State{View: ViewLoading, Email: sess.Email}
	g.state = loading
	g.mu.Unlock()
	g.emit(loading)

	access, err := g.access.Lookup(ctx, sess.Email)

	g.mu.Lock()
	if g.closed || g.gen != myGen {
		g.mu.Unlock()
		return
	}

	var state State
	switch {
	case err != nil:
		g.logger.Warn("access lookup failed", "error", err)
		state = State{View: ViewBlocked, Email: sess.Email}
	case access == nil:
		state = State{View: ViewBlocked, Email: sess.Email}
	default:
		state = State{
			View:      ViewBlocked,
			Email:     sess.Email,
			Plan:      access.Plan,
			RawStatus: access.Status,
		}
		if isActive(access.Status) {
			state.View = ViewProduct
		}
	}
	g.state = state
	g.mu.Unlock()
	g.emit(state)

	if err == nil && access != nil && access.UserID == "" && sess.UserID != "" && g.linker != nil {
		if linkErr := g.linker.LinkUser(ctx, sess.Email, sess.UserID); linkErr != nil {
			g.logger.Debug("user link failed", "error", linkErr)
		}
	}
}

func (g *Gate) emit(state State) {
	if g.onChange != nil {
		g.onChange(state)
	}
}

func isActive(status string) bool {
	normalized := strings.ToLower(status)
	for _, marker := range activeMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}
