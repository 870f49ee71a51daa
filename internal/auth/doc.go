// Package auth issues and verifies the bearer tokens that guard the status API.
//
// Tokens are HS256-signed JWTs carrying a subject and a fixed audience. They
// are validated by signature and expiry only; there is no user store.
package auth
