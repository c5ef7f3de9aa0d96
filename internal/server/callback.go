package server

import (
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/desertthunder/topmix/internal/auth"
)

// errorAccessDenied is what the accounts service sends when the user declines consent.
const errorAccessDenied = "access_denied"

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: {{.Color}}; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

type pageData struct {
	Title, Message, Color string
}

// CallbackHandler turns the authorization redirect into an [auth.AuthorizationResult].
//
// It does not exchange the code. Only the first callback is accepted and
// the result channel receives exactly one value before it is closed.
type CallbackHandler struct {
	path       string
	state      string
	resultChan chan auth.AuthorizationResult
	once       sync.Once

	mu  sync.Mutex
	hit bool
}

// NewCallbackHandler creates a handler for path that accepts only the given state.
func NewCallbackHandler(path, state string) *CallbackHandler {
	if path == "" {
		path = "/"
	}
	return &CallbackHandler{
		path:       path,
		state:      state,
		resultChan: make(chan auth.AuthorizationResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"GET " + h.path}
}

// ServeHTTP handles the redirect from the consent page.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()

	if q.Get("state") != h.state {
		h.Send(auth.Failed("state mismatch"))
		h.render(w, http.StatusBadRequest, pageData{"Authorization Failed", "The response did not match this sign-in attempt.", "#e22134"})
		return
	}

	if reason := q.Get("error"); reason != "" {
		if reason == errorAccessDenied {
			h.Send(auth.Cancelled())
			h.render(w, http.StatusOK, pageData{"Authorization Cancelled", "You can close this window and return to the terminal.", "#666"})
			return
		}
		if desc := q.Get("error_description"); desc != "" {
			reason = fmt.Sprintf("%s: %s", reason, desc)
		}
		h.Send(auth.Failed(reason))
		h.render(w, http.StatusBadRequest, pageData{"Authorization Failed", reason, "#e22134"})
		return
	}

	code := q.Get("code")
	if code == "" {
		h.Send(auth.Failed("missing code"))
		h.render(w, http.StatusBadRequest, pageData{"Authorization Failed", "No authorization code was returned.", "#e22134"})
		return
	}

	h.Send(auth.Success(code))
	h.render(w, http.StatusOK, pageData{"Authorization Successful", "You can close this window and return to the terminal.", "#1DB954"})
}

func (h *CallbackHandler) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = resultPage.Execute(w, data)
}

// Send delivers result through the channel (only once).
func (h *CallbackHandler) Send(result auth.AuthorizationResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel.
func (h *CallbackHandler) Result() <-chan auth.AuthorizationResult {
	return h.resultChan
}
