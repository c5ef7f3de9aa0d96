// Package session drives the interactive sign-in flow and publishes a session presence signal.
//
// A [Controller] moves between [Unauthenticated], [Authorizing] and [Authenticated].
// The consent surface (a browser plus loopback listener in the CLI) is reached through
// [Consent], a two-phase protocol: Open starts the surface and hands back a channel that
// later yields exactly one [auth.AuthorizationResult].
package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/topmix/internal/auth"
	"github.com/desertthunder/topmix/internal/shared"
)

// State is a node of the session state machine.
type State int

const (
	Unauthenticated State = iota
	Authorizing
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authorizing:
		return "authorizing"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Presence is the tri-state signal exposed to presentation code.
type Presence string

const (
	PresenceLoading Presence = "loading"
	PresencePresent Presence = "present"
	PresenceAbsent  Presence = "absent"
)

// Consent opens the user-facing consent page for authURL.
//
// The returned channel delivers one result. Implementations must stop delivering
// and release resources once ctx is done.
type Consent interface {
	Open(ctx context.Context, authURL, state string) (<-chan auth.AuthorizationResult, error)
}

// Tokens is the part of [auth.TokenManager] the controller depends on.
type Tokens interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.TokenSet, error)
	CurrentAccessToken(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

// Controller owns the session state machine for one user.
type Controller struct {
	tokens   Tokens
	consent  Consent
	logger   *log.Logger
	newState func() (string, error)

	mu       sync.Mutex
	state    State
	presence Presence
	subs     map[int]chan Presence
	nextSub  int
}

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithStateGenerator replaces the OAuth state generator.
func WithStateGenerator(fn func() (string, error)) Option {
	return func(c *Controller) { c.newState = fn }
}

// New creates a [Controller] in the Unauthenticated state with presence loading.
func New(tokens Tokens, consent Consent, opts ...Option) *Controller {
	c := &Controller{
		tokens:   tokens,
		consent:  consent,
		logger:   log.New(io.Discard),
		newState: shared.GenerateState,
		state:    Unauthenticated,
		presence: PresenceLoading,
		subs:     make(map[int]chan Presence),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Presence returns the current presence signal.
func (c *Controller) Presence() Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence
}

// Subscribe returns a channel of presence changes and a func that stops delivery.
//
// Delivery is non-blocking: a subscriber that falls behind misses intermediate values.
func (c *Controller) Subscribe() (<-chan Presence, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Presence, 1)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// Restore sets the initial state from persisted credentials.
//
// A stored access token is trusted without validation.
func (c *Controller) Restore(ctx context.Context) error {
	_, ok, err := c.tokens.CurrentAccessToken(ctx)
	if err != nil {
		c.transition(Unauthenticated, PresenceAbsent)
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if ok {
		c.transition(Authenticated, PresencePresent)
	} else {
		c.transition(Unauthenticated, PresenceAbsent)
	}
	return nil
}

// SignIn runs the consent round trip and, on success, exchanges and persists the code.
//
// Cancellation, including ctx being cancelled while waiting, is returned as a
// [auth.ResultCancel] result with a nil error. On cancellation or failure the
// previous state and presence are kept.
func (c *Controller) SignIn(ctx context.Context) (auth.AuthorizationResult, error) {
	c.mu.Lock()
	if c.state == Authorizing {
		c.mu.Unlock()
		return auth.AuthorizationResult{}, shared.ErrSignInInProgress
	}
	prev := c.state
	c.state = Authorizing
	c.mu.Unlock()

	result, err := c.signIn(ctx)
	if err != nil || result.Type != auth.ResultSuccess {
		c.mu.Lock()
		c.state = prev
		c.mu.Unlock()
		return result, err
	}

	c.transition(Authenticated, PresencePresent)
	c.logger.Info("signed in")
	return result, nil
}

func (c *Controller) signIn(ctx context.Context) (auth.AuthorizationResult, error) {
	state, err := c.newState()
	if err != nil {
		return auth.AuthorizationResult{}, fmt.Errorf("failed to generate state: %w", err)
	}

	consentCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := c.consent.Open(consentCtx, c.tokens.AuthCodeURL(state), state)
	if err != nil {
		return auth.AuthorizationResult{}, fmt.Errorf("failed to open consent page: %w", err)
	}

	var result auth.AuthorizationResult
	select {
	case <-ctx.Done():
		c.logger.Info("sign-in cancelled", "reason", ctx.Err())
		return auth.Cancelled(), nil
	case r, ok := <-results:
		if !ok {
			return auth.Cancelled(), nil
		}
		result = r
	}

	switch result.Type {
	case auth.ResultSuccess:
		if _, err := c.tokens.Exchange(ctx, result.Code); err != nil {
			return result, err
		}
		return result, nil
	case auth.ResultCancel:
		c.logger.Info("sign-in cancelled by user")
		return result, nil
	default:
		return result, fmt.Errorf("%w: %s", shared.ErrAuthFailed, result.Error)
	}
}

// SignOut clears stored credentials. Store failures are logged, never returned.
func (c *Controller) SignOut(ctx context.Context) {
	if err := c.tokens.Clear(ctx); err != nil {
		c.logger.Warn("failed to clear credentials", "error", err)
	}
	c.transition(Unauthenticated, PresenceAbsent)
	c.logger.Info("signed out")
}

func (c *Controller) transition(state State, presence Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = state
	if c.presence == presence {
		return
	}
	c.presence = presence

	for _, ch := range c.subs {
		select {
		case ch <- presence:
		default:
			// drop the stale value so the latest one wins
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- presence:
			default:
			}
		}
	}
}
