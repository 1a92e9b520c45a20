package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims of a vcall session token.
// The username is free text chosen at the entry screen; the token only binds a
// surface connection to the session it was issued for and is not proof of identity.
type Payload struct {
	jwt.StandardClaims `json:"standard_claims"`

	// Username is the name the session publishes under in the presence store.
	Username string `json:"username"`

	// SessionID distinguishes two logins that picked the same username.
	SessionID string `json:"sid"`
}
