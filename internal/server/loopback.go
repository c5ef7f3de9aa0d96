package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/topmix/internal/auth"
	"github.com/desertthunder/topmix/internal/shared"
)

// Loopback is a consent surface for command-line use. It serves the redirect URI on
// the local machine and opens the consent page in the user's browser.
type Loopback struct {
	redirect *url.URL
	open     shared.BrowserOpener
	logger   *log.Logger
	listen   func(network, addr string) (net.Listener, error)
}

// LoopbackOption configures a [Loopback].
type LoopbackOption func(*Loopback)

// WithOpener replaces the browser launcher.
func WithOpener(open shared.BrowserOpener) LoopbackOption {
	return func(l *Loopback) { l.open = open }
}

// WithLoopbackLogger sets the logger.
func WithLoopbackLogger(logger *log.Logger) LoopbackOption {
	return func(l *Loopback) { l.logger = logger }
}

// WithListener overrides how the listening socket is created.
func WithListener(listen func(network, addr string) (net.Listener, error)) LoopbackOption {
	return func(l *Loopback) { l.listen = listen }
}

// NewLoopback creates a [Loopback] for redirectURI, which must be an http URL with a host and port.
func NewLoopback(redirectURI string, opts ...LoopbackOption) (*Loopback, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect uri: %v", shared.ErrInvalidConfig, err)
	}
	if u.Scheme != "http" || u.Host == "" || u.Port() == "" {
		return nil, fmt.Errorf("%w: redirect uri must look like http://127.0.0.1:3000/callback, got %q", shared.ErrInvalidConfig, redirectURI)
	}

	l := &Loopback{
		redirect: u,
		open:     shared.OpenBrowser,
		logger:   log.New(io.Discard),
		listen:   net.Listen,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Open starts the redirect listener, then opens authURL in the browser.
//
// The returned channel yields one result and is closed. The listener is shut down
// after the callback arrives or when ctx is done, in which case nothing is sent.
func (l *Loopback) Open(ctx context.Context, authURL, state string) (<-chan auth.AuthorizationResult, error) {
	ln, err := l.listen("tcp", l.redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", l.redirect.Host, err)
	}

	callback := NewCallbackHandler(l.redirect.Path, state)
	router := NewBasicRouter()
	router.Use(Recoverer(l.logger), RequestLogger(l.logger))
	router.Handler(callback)

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("redirect listener stopped", "error", err)
		}
	}()

	l.logger.Info("waiting for authorization", "redirect_uri", l.redirect.String())
	if err := l.open(authURL); err != nil {
		l.logger.Warn("could not open browser, visit the URL manually", "url", authURL, "error", err)
	}

	out := make(chan auth.AuthorizationResult, 1)
	go func() {
		defer close(out)
		defer l.shutdown(srv)

		select {
		case result := <-callback.Result():
			out <- result
		case <-ctx.Done():
		}
	}()

	return out, nil
}

func (l *Loopback) shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.logger.Warn("redirect listener shutdown", "error", err)
	}
}
