/*
Package presence is the typed client of the shared presence store used for call signaling.

The store is an external key-value service with push change notification. Every user owns
one record under /users/{username} with three optional fields: incoming (string),
isAvailable (boolean) and connId (string). This package validates values against that
schema at the boundary, serialises writes per client and turns backend change feeds into
ordered, cancellable subscriptions.
*/
package presence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// Field names a single value inside a user record.
type Field string

const (
	// FieldIncoming holds the username of a pending caller.
	FieldIncoming Field = "incoming"

	// FieldIsAvailable is set by a callee who accepted and is ready to be connected to.
	FieldIsAvailable Field = "isAvailable"

	// FieldConnID holds the connection id the accepting party publishes for its caller.
	FieldConnID Field = "connId"
)

// usersRoot is the top-level collection every record lives under.
const usersRoot = "users"

var (
	// ErrInvalidPath is returned for paths with an empty username or an unknown field.
	ErrInvalidPath = errors.New("presence: invalid path")

	// ErrInvalidValue is returned when a value does not match the type of its field.
	ErrInvalidValue = errors.New("presence: invalid value")
)

var nullJSON = []byte("null")

// Path addresses either a whole user record (empty Field) or one field of it.
type Path struct {
	User  string
	Field Field
}

// UserPath addresses the whole record of user.
func UserPath(user string) Path {
	return Path{User: user}
}

// FieldPath addresses one field of user's record.
func FieldPath(user string, field Field) Path {
	return Path{User: user, Field: field}
}

// IsRecord reports whether the path addresses a whole record.
func (p Path) IsRecord() bool {
	return p.Field == ""
}

// Validate checks the username and the field name.
func (p Path) Validate() error {
	if p.User == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidPath)
	}

	switch p.Field {
	case "", FieldIncoming, FieldIsAvailable, FieldConnID:
		return nil
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidPath, p.Field)
	}
}

// Key is the backend key of the path. Usernames are free text, so they are path-escaped;
// the escaped form never contains '/', '*', '?', '[' or ']'.
func (p Path) Key() string {
	key := usersRoot + "/" + url.PathEscape(p.User)
	if p.Field != "" {
		key += "/" + string(p.Field)
	}
	return key
}

// String renders the logical path, e.g. /users/alice/incoming.
func (p Path) String() string {
	s := "/" + usersRoot + "/" + p.User
	if p.Field != "" {
		s += "/" + string(p.Field)
	}
	return s
}

// Record is a snapshot of one user's presence record. Nil pointers are absent values.
type Record struct {
	Incoming    *string `json:"incoming"`
	IsAvailable *bool   `json:"isAvailable"`
	ConnID      *string `json:"connId"`
}

// Value is a raw field value as seen by a subscriber.
type Value struct {
	raw []byte
}

// Present reports whether the field holds a value.
func (v Value) Present() bool {
	return len(v.raw) > 0 && !bytes.Equal(v.raw, nullJSON)
}

// AsString decodes a string field. Absent values return ok == false.
func (v Value) AsString() (s string, ok bool, err error) {
	if !v.Present() {
		return "", false, nil
	}
	if err := json.Unmarshal(v.raw, &s); err != nil {
		return "", false, fmt.Errorf("%w: want string, got %s", ErrInvalidValue, v.raw)
	}
	return s, true, nil
}

// AsBool decodes a boolean field. Absent values return ok == false.
func (v Value) AsBool() (b bool, ok bool, err error) {
	if !v.Present() {
		return false, false, nil
	}
	if err := json.Unmarshal(v.raw, &b); err != nil {
		return false, false, fmt.Errorf("%w: want boolean, got %s", ErrInvalidValue, v.raw)
	}
	return b, true, nil
}

// encodeValue validates value against the field type and returns its stored form.
// A nil value encodes to nil, meaning "absent".
func encodeValue(field Field, value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	switch field {
	case FieldIncoming, FieldConnID:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidValue, field, value)
		}
		return json.Marshal(s)

	case FieldIsAvailable:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidValue, field, value)
		}
		return json.Marshal(b)

	default:
		return nil, fmt.Errorf("%w: cannot write a value to %q", ErrInvalidPath, field)
	}
}

// normalizeRaw maps the JSON null produced by some backends to nil.
func normalizeRaw(raw []byte) []byte {
	if len(raw) == 0 || bytes.Equal(raw, nullJSON) {
		return nil
	}
	return raw
}
