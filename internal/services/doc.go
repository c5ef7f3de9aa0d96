// Package services implements the Spotify Web API calls needed to build a playlist from top tracks.
//
// [SpotifyClient] reads a fresh bearer token from a [TokenProvider] for every request, paces requests
// with a token-bucket limiter and bounds each one with a timeout. Failures are typed:
//
//   - non-2xx responses become shared.APIRequestError carrying the status and endpoint
//   - 2xx responses missing a required field become shared.APIParseError
//
// Nothing is retried.
package services
