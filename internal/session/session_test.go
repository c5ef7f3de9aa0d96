package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/desertthunder/topmix/internal/auth"
	"github.com/desertthunder/topmix/internal/repositories"
	"github.com/desertthunder/topmix/internal/shared"
	tu "github.com/desertthunder/topmix/internal/testing"
)

// stubConsent answers Open by delivering result from a goroutine, or waits on release when set.
type stubConsent struct {
	result  auth.AuthorizationResult
	openErr error
	release chan struct{}

	mu     sync.Mutex
	urls   []string
	states []string
}

func (s *stubConsent) Open(ctx context.Context, authURL, state string) (<-chan auth.AuthorizationResult, error) {
	s.mu.Lock()
	s.urls = append(s.urls, authURL)
	s.states = append(s.states, state)
	s.mu.Unlock()

	if s.openErr != nil {
		return nil, s.openErr
	}

	ch := make(chan auth.AuthorizationResult, 1)
	go func() {
		defer close(ch)
		if s.release != nil {
			select {
			case <-s.release:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- s.result:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// fakeTokens records calls and lets tests inject failures.
type fakeTokens struct {
	mu          sync.Mutex
	stored      string
	exchangeErr error
	clearErr    error
	getErr      error
	codes       []string
	clears      int
}

func (f *fakeTokens) AuthCodeURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (f *fakeTokens) Exchange(_ context.Context, code string) (*auth.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	f.stored = "token-for-" + code
	return &auth.TokenSet{AccessToken: f.stored, ExpiresIn: 3600, IssuedAt: time.Now()}, nil
}

func (f *fakeTokens) CurrentAccessToken(context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.stored, f.stored != "", nil
}

func (f *fakeTokens) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.stored = ""
	return f.clearErr
}

func fixedState() (string, error) { return "state-1", nil }

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("starts loading", func(t *testing.T) {
		c := New(&fakeTokens{}, &stubConsent{})
		assert.Equal(t, PresenceLoading, c.Presence())
		assert.Equal(t, Unauthenticated, c.State())
	})

	t.Run("persisted token is trusted", func(t *testing.T) {
		c := New(&fakeTokens{stored: "A1"}, &stubConsent{})
		require.NoError(t, c.Restore(ctx))
		assert.Equal(t, PresencePresent, c.Presence())
		assert.Equal(t, Authenticated, c.State())
	})

	t.Run("no token", func(t *testing.T) {
		c := New(&fakeTokens{}, &stubConsent{})
		require.NoError(t, c.Restore(ctx))
		assert.Equal(t, PresenceAbsent, c.Presence())
		assert.Equal(t, Unauthenticated, c.State())
	})

	t.Run("store failure", func(t *testing.T) {
		c := New(&fakeTokens{getErr: tu.ErrInjected}, &stubConsent{})
		err := c.Restore(ctx)
		assert.ErrorIs(t, err, tu.ErrInjected)
		assert.Equal(t, PresenceAbsent, c.Presence())
	})
}

func TestSignIn(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	t.Run("cancel leaves session absent", func(t *testing.T) {
		tokens := &fakeTokens{}
		c := New(tokens, &stubConsent{result: auth.Cancelled()}, WithStateGenerator(fixedState))
		require.NoError(t, c.Restore(ctx))

		result, err := c.SignIn(ctx)
		require.NoError(t, err, "cancellation is not an error")
		assert.Equal(t, auth.ResultCancel, result.Type)
		assert.Equal(t, PresenceAbsent, c.Presence())
		assert.Equal(t, Unauthenticated, c.State())
		assert.Empty(t, tokens.codes, "no exchange on cancel")
	})

	t.Run("success exchanges code", func(t *testing.T) {
		tokens := &fakeTokens{}
		consent := &stubConsent{result: auth.Success("code-abc")}
		c := New(tokens, consent, WithStateGenerator(fixedState))
		require.NoError(t, c.Restore(ctx))

		result, err := c.SignIn(ctx)
		require.NoError(t, err)
		assert.Equal(t, auth.ResultSuccess, result.Type)
		assert.Equal(t, []string{"code-abc"}, tokens.codes)
		assert.Equal(t, PresencePresent, c.Presence())
		assert.Equal(t, Authenticated, c.State())

		require.Len(t, consent.urls, 1)
		assert.Contains(t, consent.urls[0], "state=state-1")
		assert.Equal(t, []string{"state-1"}, consent.states)
	})

	t.Run("provider error", func(t *testing.T) {
		c := New(&fakeTokens{}, &stubConsent{result: auth.Failed("access_denied")}, WithStateGenerator(fixedState))
		require.NoError(t, c.Restore(ctx))

		result, err := c.SignIn(ctx)
		assert.ErrorIs(t, err, shared.ErrAuthFailed)
		assert.Contains(t, err.Error(), "access_denied")
		assert.Equal(t, auth.ResultError, result.Type)
		assert.Equal(t, PresenceAbsent, c.Presence())
		assert.Equal(t, Unauthenticated, c.State())
	})

	t.Run("exchange failure", func(t *testing.T) {
		exchangeErr := &shared.AuthExchangeError{Status: http.StatusBadRequest, Code: "invalid_grant"}
		c := New(&fakeTokens{exchangeErr: exchangeErr}, &stubConsent{result: auth.Success("code")}, WithStateGenerator(fixedState))
		require.NoError(t, c.Restore(ctx))

		_, err := c.SignIn(ctx)
		var got *shared.AuthExchangeError
		require.ErrorAs(t, err, &got)
		assert.Equal(t, PresenceAbsent, c.Presence())
		assert.Equal(t, Unauthenticated, c.State())
	})

	t.Run("consent cannot open", func(t *testing.T) {
		c := New(&fakeTokens{}, &stubConsent{openErr: tu.ErrInjected}, WithStateGenerator(fixedState))

		_, err := c.SignIn(ctx)
		assert.ErrorIs(t, err, tu.ErrInjected)
		assert.Equal(t, Unauthenticated, c.State())
	})

	t.Run("state generator failure", func(t *testing.T) {
		c := New(&fakeTokens{}, &stubConsent{}, WithStateGenerator(func() (string, error) { return "", tu.ErrInjected }))

		_, err := c.SignIn(ctx)
		assert.ErrorIs(t, err, tu.ErrInjected)
		assert.Equal(t, Unauthenticated, c.State())
	})

	t.Run("context cancelled while waiting", func(t *testing.T) {
		consent := &stubConsent{result: auth.Success("late"), release: make(chan struct{})}
		tokens := &fakeTokens{}
		c := New(tokens, consent, WithStateGenerator(fixedState))
		require.NoError(t, c.Restore(ctx))

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		result, err := c.SignIn(waitCtx)
		require.NoError(t, err)
		assert.Equal(t, auth.ResultCancel, result.Type)
		assert.Equal(t, PresenceAbsent, c.Presence())
		assert.Empty(t, tokens.codes)
	})

	t.Run("second sign-in while authorizing", func(t *testing.T) {
		consent := &stubConsent{result: auth.Success("code"), release: make(chan struct{})}
		c := New(&fakeTokens{}, consent, WithStateGenerator(fixedState))

		done := make(chan error, 1)
		go func() {
			_, err := c.SignIn(ctx)
			done <- err
		}()

		require.Eventually(t, func() bool { return c.State() == Authorizing }, time.Second, time.Millisecond)

		_, err := c.SignIn(ctx)
		assert.ErrorIs(t, err, shared.ErrSignInInProgress)

		close(consent.release)
		require.NoError(t, <-done)
		assert.Equal(t, Authenticated, c.State())
	})
}

// TestSignInPersistsBeforePresent runs the controller against a real token manager and a token
// endpoint that blocks, so presence can be observed while the exchange is in flight.
func TestSignInPersistsBeforePresent(t *testing.T) {
	ctx := context.Background()
	unblock := make(chan struct{})
	hit := make(chan struct{}, 1)

	srv := tu.NewRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		hit <- struct{}{}
		<-unblock
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"A1","token_type":"Bearer","expires_in":3600,"refresh_token":"R1"}`)
	})

	store := repositories.NewMemoryCredentials()
	client := shared.ClientConfig{
		ClientID:              "id",
		ClientSecret:          "secret",
		AuthorizationEndpoint: "https://accounts.example.com/authorize",
		TokenEndpoint:         srv.URL + "/api/token",
		RedirectURI:           "http://127.0.0.1:3000/callback",
		Scopes:                []string{"user-top-read"},
	}
	manager := auth.NewTokenManager(client, store)
	c := New(manager, &stubConsent{result: auth.Success("code-xyz")})
	require.NoError(t, c.Restore(ctx))

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		_, err := c.SignIn(ctx)
		done <- err
	}()

	<-hit
	assert.Equal(t, PresenceAbsent, c.Presence(), "presence must not change before the exchange completes")
	assert.Equal(t, Authorizing, c.State())
	_, ok, _ := store.Get(ctx, auth.KeyAccessToken)
	assert.False(t, ok)

	close(unblock)
	require.NoError(t, <-done)

	assert.Equal(t, PresencePresent, c.Presence())
	assert.Equal(t, PresencePresent, <-updates)

	token, ok, err := store.Get(ctx, auth.KeyAccessToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A1", token)
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("clears and goes absent", func(t *testing.T) {
		tokens := &fakeTokens{stored: "A1"}
		c := New(tokens, &stubConsent{})
		require.NoError(t, c.Restore(ctx))

		c.SignOut(ctx)
		assert.Equal(t, 1, tokens.clears)
		assert.Equal(t, PresenceAbsent, c.Presence())
		assert.Equal(t, Unauthenticated, c.State())
	})

	t.Run("store failure is swallowed", func(t *testing.T) {
		tokens := &fakeTokens{stored: "A1", clearErr: errors.New("disk gone")}
		c := New(tokens, &stubConsent{})
		require.NoError(t, c.Restore(ctx))

		c.SignOut(ctx)
		assert.Equal(t, PresenceAbsent, c.Presence())
	})
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	tokens := &fakeTokens{stored: "A1"}
	c := New(tokens, &stubConsent{})

	updates, unsubscribe := c.Subscribe()
	require.NoError(t, c.Restore(ctx))
	assert.Equal(t, PresencePresent, <-updates)

	c.SignOut(ctx)
	assert.Equal(t, PresenceAbsent, <-updates)

	t.Run("slow subscriber sees latest value", func(t *testing.T) {
		slow, stop := c.Subscribe()
		defer stop()

		tokens.stored = "A2"
		require.NoError(t, c.Restore(ctx))
		c.SignOut(ctx)
		assert.Equal(t, PresenceAbsent, <-slow)
	})

	unsubscribe()
	unsubscribe()
	for range updates {
		// drain the buffered value; the loop ends only once the channel is closed
	}
}

func TestStateString(t *testing.T) {
	tc := []struct {
		state State
		want  string
	}{
		{Unauthenticated, "unauthenticated"},
		{Authorizing, "authorizing"},
		{Authenticated, "authenticated"},
		{State(9), "state(9)"},
	}
	for _, tt := range tc {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
