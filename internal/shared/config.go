package shared

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	API         APIConfig         `toml:"api"`
	Playlist    PlaylistConfig    `toml:"playlist"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify OAuth client settings.
type SpotifyConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURI  string   `toml:"redirect_uri"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	Scopes       []string `toml:"scopes"`
	ShowDialog   bool     `toml:"show_dialog"`
}

// DatabaseConfig contains settings for the sqlite credential and history store.
//
// KeyURI selects a gocloud.dev secrets keeper (base64key://, hashivault://) used to seal stored credentials.
// An empty KeyURI stores values as-is.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	KeyURI       string `toml:"key_uri"`
}

// APIConfig contains Web API client settings.
type APIConfig struct {
	BaseURL           string  `toml:"base_url"`
	TimeoutSeconds    int     `toml:"request_timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// PlaylistConfig contains defaults for the generated playlist.
type PlaylistConfig struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Public      bool   `toml:"public"`
	Limit       int    `toml:"limit"`
	TimeRange   string `toml:"time_range"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"` // empty logs to stderr
}

// ClientConfig is the immutable OAuth client description shared by the token manager and session controller.
type ClientConfig struct {
	ClientID              string
	ClientSecret          string
	AuthorizationEndpoint string
	TokenEndpoint         string
	RedirectURI           string
	Scopes                []string
	ShowDialog            bool
}

// Client builds a [ClientConfig] from the Spotify credentials.
//
// Scopes are copied so later edits to the Config cannot leak into the client description.
func (c *Config) Client() ClientConfig {
	sp := c.Credentials.Spotify
	return ClientConfig{
		ClientID:              sp.ClientID,
		ClientSecret:          sp.ClientSecret,
		AuthorizationEndpoint: sp.AuthURL,
		TokenEndpoint:         sp.TokenURL,
		RedirectURI:           sp.RedirectURI,
		Scopes:                slices.Clone(sp.Scopes),
		ShowDialog:            sp.ShowDialog,
	}
}

// RequestTimeout returns the bound applied to every network operation.
func (c *Config) RequestTimeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// Validate reports configuration that cannot drive an authorization flow.
func (c *Config) Validate() error {
	sp := c.Credentials.Spotify
	if sp.ClientID == "" || sp.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret must be set", ErrMissingCredentials)
	}
	if _, err := url.ParseRequestURI(sp.RedirectURI); err != nil {
		return fmt.Errorf("%w: redirect_uri: %v", ErrInvalidConfig, err)
	}
	if sp.AuthURL == "" || sp.TokenURL == "" {
		return fmt.Errorf("%w: auth_url and token_url must be set", ErrInvalidConfig)
	}
	if len(sp.Scopes) == 0 {
		return fmt.Errorf("%w: at least one scope is required", ErrInvalidConfig)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api base_url must be set", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides secrets and paths from the environment, after loading the nearest .env file.
func ApplyEnv(c *Config) {
	LoadDotEnv()

	sp := &c.Credentials.Spotify
	sp.ClientID = env.GetString("SPOTIFY_CLIENT_ID", sp.ClientID)
	sp.ClientSecret = env.GetString("SPOTIFY_CLIENT_SECRET", sp.ClientSecret)
	sp.RedirectURI = env.GetString("SPOTIFY_REDIRECT_URI", sp.RedirectURI)

	c.Database.Path = env.GetString("TOPMIX_DATABASE_PATH", c.Database.Path)
	c.Database.KeyURI = env.GetString("TOPMIX_KEY_URI", c.Database.KeyURI)
	c.API.TimeoutSeconds = env.GetInt("TOPMIX_REQUEST_TIMEOUT_SECONDS", c.API.TimeoutSeconds)
	c.Log.Level = env.GetString("TOPMIX_LOG_LEVEL", c.Log.Level)
	c.Log.File = env.GetString("TOPMIX_LOG_FILE", c.Log.File)
}

// LoadDotEnv walks up from the working directory and loads the first .env file found.
func LoadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}

	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
