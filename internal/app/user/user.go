/*
Package user contains the identity of a signaling session.

Usernames are unauthenticated free text picked at the entry screen. They are only
checked for being present and of reasonable length.
*/
package user

import (
	"strings"
	"unicode/utf8"

	"vcall/internal/pkg/errs"
)

// MaxUsernameLength is the longest accepted username, in characters.
const MaxUsernameLength = 64

// User is the identity bound to a session token.
type User struct {
	// Username is the name the session publishes under in the presence store.
	Username string `json:"username"`

	// SessionID identifies the login that issued the token.
	SessionID string `json:"sessionId"`
}

// NormalizeUsername trims surrounding whitespace and validates the result.
func NormalizeUsername(raw string) (string, *errs.CustomError) {
	name := strings.TrimSpace(raw)

	if name == "" {
		return "", errs.NewError(errs.ErrUsernameEmpty)
	}
	if utf8.RuneCountInString(name) > MaxUsernameLength {
		return "", errs.NewError(errs.ErrUsernameTooLong, MaxUsernameLength)
	}

	return name, nil
}
