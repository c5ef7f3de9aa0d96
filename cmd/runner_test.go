package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/topmix/internal/auth"
	"github.com/desertthunder/topmix/internal/repositories"
	"github.com/desertthunder/topmix/internal/shared"
	tu "github.com/desertthunder/topmix/internal/testing"
)

type stubConsent struct {
	mu      sync.Mutex
	result  auth.AuthorizationResult
	authURL string
}

func (s *stubConsent) Open(_ context.Context, authURL, _ string) (<-chan auth.AuthorizationResult, error) {
	s.mu.Lock()
	s.authURL = authURL
	s.mu.Unlock()

	ch := make(chan auth.AuthorizationResult, 1)
	ch <- s.result
	close(ch)
	return ch, nil
}

// fakeSpotify serves the token endpoint and the Web API routes the commands use.
func fakeSpotify(addStatus int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "POST /api/token":
			fmt.Fprint(w, `{"access_token":"access-1234","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-5678"}`)
		case "GET /v1/me":
			fmt.Fprint(w, `{"id":"U1","display_name":"Test User","product":"premium","followers":{"total":3}}`)
		case "GET /v1/me/top/tracks":
			fmt.Fprint(w, `{"items":[
				{"id":"abc","uri":"spotify:track:abc","name":"Song A","duration_ms":200000,"artists":[{"name":"Artist A"}],"album":{"name":"Album A"}},
				{"id":"def","uri":"spotify:track:def","name":"Song D","duration_ms":100000,"artists":[{"name":"Artist D"}],"album":{"name":"Album D"}}
			]}`)
		case "POST /v1/users/U1/playlists":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":"P1"}`)
		case "POST /v1/playlists/P1/tracks":
			w.WriteHeader(addStatus)
			fmt.Fprint(w, `{"snapshot_id":"s1"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

type testRunner struct {
	*Runner
	out     *bytes.Buffer
	srv     *tu.RecordingServer
	consent *stubConsent
}

func newTestRunner(t *testing.T, addStatus int, result auth.AuthorizationResult) *testRunner {
	t.Helper()
	srv := tu.NewRecordingServer(t, fakeSpotify(addStatus))

	config := shared.DefaultConfig()
	config.Credentials.Spotify.ClientID = "client-id"
	config.Credentials.Spotify.ClientSecret = "client-secret"
	config.Credentials.Spotify.TokenURL = srv.URL + "/api/token"
	config.API.BaseURL = srv.URL + "/v1"
	config.API.RequestsPerSecond = 0
	config.Database.Path = filepath.Join(t.TempDir(), "topmix.db")
	config.Log.Level = "error"

	out := &bytes.Buffer{}
	consent := &stubConsent{result: result}
	r := NewRunner(RunnerOpts{
		Config:     config,
		HTTPClient: srv.Client(),
		Logger:     shared.NewLogger(&bytes.Buffer{}),
		Output:     out,
		Consent:    consent,
	})
	t.Cleanup(func() { r.Close() })

	return &testRunner{Runner: r, out: out, srv: srv, consent: consent}
}

func (tr *testRunner) run(args ...string) error {
	tr.out.Reset()
	return newApp(tr.Runner).Run(context.Background(), append([]string{"topmix"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
			if runner.configPath != "config.toml" {
				t.Errorf("expected default config path, got %s", runner.configPath)
			}
		})

		t.Run("with store override", func(t *testing.T) {
			store := repositories.NewMemoryCredentials()
			runner := NewRunner(RunnerOpts{Store: store})
			if runner.store != store {
				t.Error("expected store to be set")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		var names []string
		for _, c := range NewRunner(RunnerOpts{}).register() {
			names = append(names, c.Name)
		}
		if got := strings.Join(names, ","); got != "setup,auth,me,top,generate,history" {
			t.Errorf("unexpected commands %s", got)
		}
	})
}

func TestSessionCommands(t *testing.T) {
	tr := newTestRunner(t, http.StatusCreated, auth.Success("code-1"))

	if err := tr.run("auth", "status"); err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(tr.out.String(), "signed out") {
		t.Errorf("expected signed out status, got %q", tr.out.String())
	}

	if err := tr.run("auth", "login"); err != nil {
		t.Fatalf("login error = %v", err)
	}
	if !strings.Contains(tr.out.String(), "Signed in to Spotify") {
		t.Errorf("unexpected login output %q", tr.out.String())
	}
	if !strings.Contains(tr.consent.authURL, "show_dialog=true") {
		t.Errorf("auth URL missing show_dialog: %s", tr.consent.authURL)
	}

	if err := tr.run("auth", "login"); err != nil {
		t.Fatalf("second login error = %v", err)
	}
	if !strings.Contains(tr.out.String(), "Already signed in") {
		t.Errorf("expected already signed in, got %q", tr.out.String())
	}

	if err := tr.run("auth", "status"); err != nil {
		t.Fatalf("status error = %v", err)
	}
	status := tr.out.String()
	if !strings.Contains(status, "signed in") || !strings.Contains(status, "********1234") {
		t.Errorf("unexpected status %q", status)
	}
	if strings.Contains(status, "access-1234") {
		t.Error("status must not print the raw token")
	}

	if err := tr.run("me"); err != nil {
		t.Fatalf("me error = %v", err)
	}
	if !strings.Contains(tr.out.String(), "Test User") {
		t.Errorf("unexpected profile output %q", tr.out.String())
	}

	if err := tr.run("auth", "logout"); err != nil {
		t.Fatalf("logout error = %v", err)
	}
	if _, ok, _ := tr.tokens.CurrentAccessToken(context.Background()); ok {
		t.Error("logout should clear the stored token")
	}
	if err := tr.run("me"); !errors.Is(err, shared.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated after logout, got %v", err)
	}
}

func TestLoginCancelled(t *testing.T) {
	tr := newTestRunner(t, http.StatusCreated, auth.Cancelled())

	if err := tr.run("auth", "login"); err != nil {
		t.Fatalf("login error = %v", err)
	}
	if !strings.Contains(tr.out.String(), "cancelled") {
		t.Errorf("unexpected output %q", tr.out.String())
	}
	for _, route := range tr.srv.Routes() {
		if route == "POST /api/token" {
			t.Error("cancelled sign-in must not exchange a code")
		}
	}
}

func TestLoginMissingCredentials(t *testing.T) {
	tr := newTestRunner(t, http.StatusCreated, auth.Success("code-1"))
	tr.config.Credentials.Spotify.ClientSecret = ""

	if err := tr.run("auth", "login"); !errors.Is(err, shared.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	t.Run("requires a session", func(t *testing.T) {
		tr := newTestRunner(t, http.StatusCreated, auth.Success("code-1"))
		if err := tr.run("generate"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("creates playlist and records history", func(t *testing.T) {
		tr := newTestRunner(t, http.StatusCreated, auth.Success("code-1"))
		if err := tr.run("auth", "login"); err != nil {
			t.Fatalf("login error = %v", err)
		}

		if err := tr.run("generate", "--name", "Weekly"); err != nil {
			t.Fatalf("generate error = %v", err)
		}
		out := tr.out.String()
		for _, want := range []string{"[1/3]", "[2/3]", "[3/3]", `Created "Weekly" with 2 tracks`, "open.spotify.com/playlist/P1"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}

		if err := tr.run("history"); err != nil {
			t.Fatalf("history error = %v", err)
		}
		if !strings.Contains(tr.out.String(), "complete") || !strings.Contains(tr.out.String(), "P1") {
			t.Errorf("unexpected history %q", tr.out.String())
		}
	})

	t.Run("partial playlist", func(t *testing.T) {
		tr := newTestRunner(t, http.StatusInternalServerError, auth.Success("code-1"))
		if err := tr.run("auth", "login"); err != nil {
			t.Fatalf("login error = %v", err)
		}

		err := tr.run("generate")
		var partial *shared.PartialPlaylistError
		if !errors.As(err, &partial) || partial.PlaylistID != "P1" {
			t.Fatalf("expected PartialPlaylistError for P1, got %v", err)
		}
		if !strings.Contains(tr.out.String(), "could not be added") {
			t.Errorf("unexpected output %q", tr.out.String())
		}

		if err := tr.run("history", "--status", "partial"); err != nil {
			t.Fatalf("history error = %v", err)
		}
		if !strings.Contains(tr.out.String(), "partial") {
			t.Errorf("unexpected history %q", tr.out.String())
		}
	})
}

func TestHistory(t *testing.T) {
	tr := newTestRunner(t, http.StatusCreated, auth.Success("code-1"))

	if err := tr.run("history"); err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(tr.out.String(), "No playlists generated yet") {
		t.Errorf("unexpected output %q", tr.out.String())
	}

	if err := tr.run("history", "--status", "bogus"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTop(t *testing.T) {
	tr := newTestRunner(t, http.StatusCreated, auth.Success("code-1"))
	if err := tr.run("auth", "login"); err != nil {
		t.Fatalf("login error = %v", err)
	}

	t.Run("stdout", func(t *testing.T) {
		if err := tr.run("top", "--limit", "2"); err != nil {
			t.Fatalf("top error = %v", err)
		}
		if !strings.Contains(tr.out.String(), "1. Artist A - Song A") {
			t.Errorf("unexpected output %q", tr.out.String())
		}

		reqs := tr.srv.Requests()
		last := reqs[len(reqs)-1]
		if !strings.Contains(last.RawQuery, "limit=2") {
			t.Errorf("expected limit=2 in %q", last.RawQuery)
		}
	})

	t.Run("csv file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "top.csv")
		if err := tr.run("top", "--format", "csv", "--output", path); err != nil {
			t.Fatalf("top error = %v", err)
		}
		tu.AssertFileExists(t, path)
		if content := tu.MustReadFile(t, path); !strings.Contains(content, "1,spotify:track:abc,Song A,Artist A,Album A,200,") {
			t.Errorf("unexpected csv %q", content)
		}
	})

	t.Run("bad format", func(t *testing.T) {
		if err := tr.run("top", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	tu.MustChdir(t, dir)

	out := &bytes.Buffer{}
	r := NewRunner(RunnerOpts{Output: out, Logger: shared.NewLogger(&bytes.Buffer{})})
	t.Cleanup(func() { r.Close() })

	if err := newApp(r).Run(context.Background(), []string{"topmix", "setup"}); err != nil {
		t.Fatalf("setup error = %v", err)
	}

	tu.AssertFileExists(t, filepath.Join(dir, "config.toml"))
	if !strings.Contains(out.String(), "2 migrations applied") {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	if err := newApp(r).Run(context.Background(), []string{"topmix", "setup", "--rollback"}); err != nil {
		t.Fatalf("rollback error = %v", err)
	}
	if !strings.Contains(out.String(), "1 remaining") {
		t.Errorf("unexpected output %q", out.String())
	}
}
