package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/topmix/internal/auth"
	"github.com/desertthunder/topmix/internal/session"
	"github.com/desertthunder/topmix/internal/shared"
	"github.com/desertthunder/topmix/internal/ui"
)

// AuthLogin runs the consent round trip in the browser and stores the issued tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx, cmd); err != nil {
		return err
	}
	if err := r.config.Validate(); err != nil {
		return err
	}

	if r.session.State() == session.Authenticated && !cmd.Bool("force") {
		return r.writePlain("%s\n", ui.OK("Already signed in (use --force to sign in again)"))
	}

	r.writePlain("Opening the Spotify consent page in your browser...\n")
	r.writePlain("%s\n", ui.Help("Waiting for the redirect to "+r.config.Credentials.Spotify.RedirectURI))

	result, err := r.session.SignIn(ctx)
	if err != nil {
		return err
	}

	switch result.Type {
	case auth.ResultCancel:
		return r.writePlain("%s\n", ui.Warn("Sign-in cancelled"))
	case auth.ResultSuccess:
		r.logger.Info("signed in")
		return r.writePlain("%s\n", ui.OK("Signed in to Spotify"))
	default:
		return fmt.Errorf("%w: %s", shared.ErrAuthFailed, result.Error)
	}
}

// AuthLogout deletes the stored credentials.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx, cmd); err != nil {
		return err
	}

	r.session.SignOut(ctx)
	return r.writePlain("%s\n", ui.OK("Signed out"))
}

// AuthStatus prints the session state and the stored token's expiry. Tokens are masked.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx, cmd); err != nil {
		return err
	}

	r.writePlain("%s\n", ui.Title("Spotify session"))
	r.writePlain("Status: %s\n", ui.PresenceBadge(string(r.session.Presence())))
	if r.session.State() != session.Authenticated {
		return r.writePlain("%s\n", ui.Help("Run 'topmix auth login' to sign in."))
	}

	set, err := r.tokens.Load(ctx)
	if err != nil {
		return err
	}
	r.writePlain("Access token: %s\n", shared.MaskToken(set.AccessToken))
	if set.RefreshToken == "" {
		r.writePlain("Refresh token: none\n")
	} else {
		r.writePlain("Refresh token: %s\n", shared.MaskToken(set.RefreshToken))
	}

	expired, err := r.tokens.IsExpired(ctx)
	if err != nil {
		return err
	}
	expires := set.ExpiresAt().Local().Format(time.DateTime)
	if expired {
		return r.writePlain("Expires: %s %s\n", expires, ui.Warn("expired"))
	}
	return r.writePlain("Expires: %s\n", expires)
}

// AuthRefresh trades the stored refresh token for a new access token.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx, cmd); err != nil {
		return err
	}
	if err := r.requireSession(); err != nil {
		return err
	}

	set, err := r.tokens.Refresh(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNoRefreshToken) {
			r.writePlain("%s\n", ui.Help("No refresh token stored, run 'topmix auth login --force'."))
		}
		return err
	}
	return r.writePlain("%s\n", ui.OK("Token refreshed, expires "+set.ExpiresAt().Local().Format(time.DateTime)))
}
