package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./topmix.db" {
			t.Errorf("expected database path ./topmix.db, got %s", config.Database.Path)
		}
		if config.API.BaseURL != "https://api.spotify.com/v1" {
			t.Errorf("expected Spotify API base URL, got %s", config.API.BaseURL)
		}
		if config.Credentials.Spotify.TokenURL != "https://accounts.spotify.com/api/token" {
			t.Errorf("unexpected token url %s", config.Credentials.Spotify.TokenURL)
		}
		if len(config.Credentials.Spotify.Scopes) != 3 {
			t.Errorf("expected 3 default scopes, got %v", config.Credentials.Spotify.Scopes)
		}
		if config.Playlist.Limit != 25 || config.Playlist.TimeRange != "short_term" {
			t.Errorf("unexpected playlist defaults %+v", config.Playlist)
		}
		if config.Playlist.Public {
			t.Error("generated playlists should default to private")
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig keeps defaults for missing keys", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		testConfig := `[database]
path = "/custom/path.db"

[api]
request_timeout_seconds = 5

[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
scopes = ["user-top-read"]
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}
		if config.Credentials.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected spotify client_id test_client_id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Credentials.Spotify.RedirectURI != "http://127.0.0.1:3000/callback" {
			t.Errorf("expected default redirect uri, got %s", config.Credentials.Spotify.RedirectURI)
		}
		if config.RequestTimeout() != 5*time.Second {
			t.Errorf("expected 5s timeout, got %v", config.RequestTimeout())
		}
		if len(config.Credentials.Spotify.Scopes) != 1 {
			t.Errorf("expected scopes to be replaced, got %v", config.Credentials.Spotify.Scopes)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("LoadConfig invalid toml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[database\npath ="), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("RequestTimeout default", func(t *testing.T) {
		config := DefaultConfig()
		config.API.TimeoutSeconds = 0
		if config.RequestTimeout() != 30*time.Second {
			t.Errorf("expected 30s fallback, got %v", config.RequestTimeout())
		}
	})

	t.Run("Client copies scopes", func(t *testing.T) {
		config := DefaultConfig()
		client := config.Client()
		config.Credentials.Spotify.Scopes[0] = "mutated"

		if client.Scopes[0] != "user-top-read" {
			t.Errorf("client scopes should be isolated from config, got %v", client.Scopes)
		}
		if client.TokenEndpoint != config.Credentials.Spotify.TokenURL {
			t.Errorf("unexpected token endpoint %s", client.TokenEndpoint)
		}
		if !client.ShowDialog {
			t.Error("expected show_dialog to default to true")
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "env_client")
		t.Setenv("SPOTIFY_CLIENT_SECRET", "env_secret")
		t.Setenv("TOPMIX_DATABASE_PATH", "/tmp/env.db")
		t.Setenv("TOPMIX_REQUEST_TIMEOUT_SECONDS", "12")

		config := DefaultConfig()
		ApplyEnv(config)

		if config.Credentials.Spotify.ClientID != "env_client" {
			t.Errorf("expected env client id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Credentials.Spotify.ClientSecret != "env_secret" {
			t.Errorf("expected env client secret, got %s", config.Credentials.Spotify.ClientSecret)
		}
		if config.Database.Path != "/tmp/env.db" {
			t.Errorf("expected env database path, got %s", config.Database.Path)
		}
		if config.RequestTimeout() != 12*time.Second {
			t.Errorf("expected 12s timeout, got %v", config.RequestTimeout())
		}
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Credentials.Spotify.ClientID = "id"
		c.Credentials.Spotify.ClientSecret = "secret"
		return c
	}

	tc := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing client id", mutate: func(c *Config) { c.Credentials.Spotify.ClientID = "" }, wantErr: ErrMissingCredentials},
		{name: "missing secret", mutate: func(c *Config) { c.Credentials.Spotify.ClientSecret = "" }, wantErr: ErrMissingCredentials},
		{name: "bad redirect", mutate: func(c *Config) { c.Credentials.Spotify.RedirectURI = "not a uri" }, wantErr: ErrInvalidConfig},
		{name: "no scopes", mutate: func(c *Config) { c.Credentials.Spotify.Scopes = nil }, wantErr: ErrInvalidConfig},
		{name: "no token url", mutate: func(c *Config) { c.Credentials.Spotify.TokenURL = "" }, wantErr: ErrInvalidConfig},
		{name: "no api base", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
