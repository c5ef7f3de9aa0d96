package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/topmix/internal/auth"
	"github.com/desertthunder/topmix/internal/repositories"
	"github.com/desertthunder/topmix/internal/server"
	"github.com/desertthunder/topmix/internal/services"
	"github.com/desertthunder/topmix/internal/session"
	"github.com/desertthunder/topmix/internal/shared"
	"github.com/desertthunder/topmix/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Dependencies past the config are built on first use by bootstrap so that help output and setup never touch the network or the credential store.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	logFile    string
	output     io.Writer

	db        *sql.DB
	store     repositories.CredentialStore
	consent   session.Consent
	tokens    *auth.TokenManager
	session   *session.Controller
	client    *services.SpotifyClient
	generator *tasks.PlaylistGenerator
	history   *repositories.GenerationRepository
	closers   []func() error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Store      repositories.CredentialStore // overrides the sqlite store
	Consent    session.Consent              // overrides the loopback listener
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.toml"
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		store:      opts.Store,
		consent:    opts.Consent,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, meCommand, topCommand, generateCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads path when it exists, falling back to the embedded defaults, then applies environment overrides.
func (r *Runner) loadConfig(path string) (*shared.Config, error) {
	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = shared.LoadConfig(path); err != nil {
			return nil, err
		}
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}
	shared.ApplyEnv(config)
	return config, nil
}

// configure resolves the config and log level from the root flags.
func (r *Runner) configure(cmd *cli.Command) error {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if r.config == nil {
		config, err := r.loadConfig(r.configPath)
		if err != nil {
			return err
		}
		r.config = config
	}

	if path := r.config.Log.File; path != "" && path != r.logFile {
		logger, err := shared.NewFileLogger(path)
		if err != nil {
			return err
		}
		r.logger, r.logFile = logger, path
	}

	level := shared.ParseLogLevel(r.config.Log.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	return nil
}

// bootstrap wires the store, token manager, session, API client and pipeline, then restores the session.
func (r *Runner) bootstrap(ctx context.Context, cmd *cli.Command) error {
	if r.session != nil {
		return nil
	}
	if err := r.configure(cmd); err != nil {
		return err
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return err
	}
	r.db = db
	r.closers = append(r.closers, db.Close)

	if r.store == nil {
		store, err := r.credentialStore(ctx)
		if err != nil {
			return err
		}
		r.store = store
	}

	r.tokens = auth.NewTokenManager(r.config.Client(), r.store,
		auth.WithHTTPClient(r.httpClient),
		auth.WithTimeout(r.config.RequestTimeout()),
		auth.WithLogger(shared.WithLogger(r.logger, "component", "auth")),
	)

	if r.consent == nil {
		r.consent = r.loopback()
	}
	r.session = session.New(r.tokens, r.consent, session.WithLogger(shared.WithLogger(r.logger, "component", "session")))

	r.client = services.NewSpotifyClientFromConfig(r.tokens, r.config,
		services.WithHTTPClient(r.httpClient),
		services.WithLogger(shared.WithLogger(r.logger, "component", "api")),
	)
	r.history = repositories.NewGenerationRepository(db)
	r.generator = tasks.NewPlaylistGenerator(r.client, tasks.SettingsFromConfig(r.config.Playlist),
		tasks.WithRecorder(r.history),
		tasks.WithLogger(shared.WithLogger(r.logger, "component", "generate")),
	)

	return r.session.Restore(ctx)
}

// credentialStore returns the sqlite store, sealed with the configured key when key_uri is set.
func (r *Runner) credentialStore(ctx context.Context) (repositories.CredentialStore, error) {
	store := repositories.NewCredentialRepository(r.db)
	if r.config.Database.KeyURI == "" {
		return store, nil
	}

	keeper, err := repositories.OpenKeeper(ctx, r.config.Database.KeyURI)
	if err != nil {
		return nil, err
	}
	sealed := repositories.NewSealedCredentials(store, keeper)
	r.closers = append(r.closers, sealed.Close)
	return sealed, nil
}

// loopback builds the redirect listener. A redirect URI it cannot serve only fails at sign-in.
func (r *Runner) loopback() session.Consent {
	lb, err := server.NewLoopback(r.config.Credentials.Spotify.RedirectURI,
		server.WithLoopbackLogger(shared.WithLogger(r.logger, "component", "loopback")))
	if err != nil {
		return unavailableConsent{err: err}
	}
	return lb
}

type unavailableConsent struct{ err error }

func (u unavailableConsent) Open(context.Context, string, string) (<-chan auth.AuthorizationResult, error) {
	return nil, u.err
}

// requireSession fails with a hint when nobody is signed in.
func (r *Runner) requireSession() error {
	if r.session.State() != session.Authenticated {
		return fmt.Errorf("%w: run 'topmix auth login' first", shared.ErrNotAuthenticated)
	}
	return nil
}

// Close releases the database and key keeper.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
