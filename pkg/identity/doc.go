// Package identity resolves the authenticated user from a signed session token.
//
// Tokens are HS256 JWTs whose subject is the user id, minted by the identity
// layer that owns sign-in. Middleware verifies the token from the
// Authorization header or the session cookie and stores the User in the
// request context; FromContext reads it back in handlers.
package identity
