// Package server provides HTTP routing, middleware, and the loopback redirect listener used by sign-in.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
// [BasicRouter] uses [http.ServeMux] method patterns. The first [Middleware] added is the outermost.
// [RequestLogger] and [Recoverer] are the stock middleware.
//
// # Callback Handler
//
// [CallbackHandler] validates the state parameter and converts the redirect query into an
// auth.AuthorizationResult: a code becomes success, error=access_denied becomes cancel and
// any other error becomes a failure. It only processes one callback.
//
// # Loopback Consent
//
// [Loopback] satisfies the session package's Consent contract. Open binds the redirect URI's
// host and port, opens the consent page in the browser, and returns a channel that yields the
// callback result. The listener shuts down once a result arrives or the context ends.
package server
