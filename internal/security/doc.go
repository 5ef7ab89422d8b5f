// Package security implements the Auth Verifier (C3) and the
// authentication/authorization half of the Session Layer (C13): bearer
// token validation (HS256 shared secret or RS256 against a static key or a
// cached, periodically-refreshed JWKS endpoint), scope-based method
// authorization, per-connection session state, rate limiting, input
// validation, and security audit logging.
package security
