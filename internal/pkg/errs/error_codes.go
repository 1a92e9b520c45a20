/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the server
and on the wire to the rendering surface and HTTP clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Call Signaling Errors
const (
	// ErrUsernameEmpty indicates that a session was requested without a username.
	ErrUsernameEmpty = 2001

	// ErrUsernameTooLong indicates that the username exceeds the accepted length.
	ErrUsernameTooLong = 2002

	// ErrPeerNotConnected indicates a call was placed before the media engine reported a connection.
	ErrPeerNotConnected = 2101

	// ErrCallTargetEmpty indicates a call was placed without naming who to call.
	ErrCallTargetEmpty = 2102

	// ErrCallSelf indicates the user tried to call their own username.
	ErrCallSelf = 2103

	// ErrCallStateInvalid indicates the requested action is not valid in the current call state.
	ErrCallStateInvalid = 2104

	// ErrCallTimedOut indicates the callee did not answer within the configured call timeout.
	ErrCallTimedOut = 2105

	// ErrSurfaceNotReady indicates an action arrived before the rendering surface finished loading.
	ErrSurfaceNotReady = 2201
)

// 3xxx: Session and Security Errors
const (
	// ErrSessionKicked indicates that the session was replaced by a newer connection for the same username.
	ErrSessionKicked = 3004

	// ErrSessionNotFound indicates that no live session exists for the given identity.
	ErrSessionNotFound = 3005

	// ErrUnauthorized indicates a missing or invalid session token.
	ErrUnauthorized = 3401
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrPresenceUnavailable indicates the presence store could not be read.
	ErrPresenceUnavailable = 5101
)
