/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses, surface error messages and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Call Signaling Errors
	ErrUsernameEmpty:    {Code: ErrUsernameEmpty, Message: "Username cannot be empty", Status: http.StatusBadRequest},
	ErrUsernameTooLong:  {Code: ErrUsernameTooLong, Message: "Username must be at most %d characters.", Status: http.StatusBadRequest},
	ErrPeerNotConnected: {Code: ErrPeerNotConnected, Message: "You're not connected. Check your internet"},
	ErrCallTargetEmpty:  {Code: ErrCallTargetEmpty, Message: "Enter the username you want to call."},
	ErrCallSelf:         {Code: ErrCallSelf, Message: "You cannot call yourself."},
	ErrCallStateInvalid: {Code: ErrCallStateInvalid, Message: "That action is not available right now (%s)."},
	ErrCallTimedOut:     {Code: ErrCallTimedOut, Message: "%s did not answer."},
	ErrSurfaceNotReady:  {Code: ErrSurfaceNotReady, Message: "The call screen is still loading."},

	// 3xxx: Session and Security Errors
	ErrSessionKicked:   {Code: ErrSessionKicked, Message: "You were signed in on another device."},
	ErrSessionNotFound: {Code: ErrSessionNotFound, Message: "Session not found.", Status: http.StatusNotFound},
	ErrUnauthorized:    {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:             {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrPresenceUnavailable: {Code: ErrPresenceUnavailable, Message: "Presence service is unavailable.", Status: http.StatusServiceUnavailable},
}
