/*
Package handler provides HTTP handler functions for the entry screen: opening a session
under a chosen username and inspecting it.
*/
package handler

import (
	"net/http"

	"vcall/internal/app/session"
	"vcall/internal/app/user"
	"vcall/internal/pkg/auth/jwt"
	"vcall/internal/pkg/errs"
	"vcall/internal/pkg/logx"
	"vcall/internal/pkg/randx"
	"vcall/internal/pkg/req"
	"vcall/internal/pkg/resp"
)

type CreateSessionInput struct {
	Username string `json:"username"`
}

type CreateSessionResponse struct {
	Token string `json:"token"`
	user.User
}

type SessionInfoResponse struct {
	user.User

	// Attached reports whether a surface of this very session is connected.
	Attached bool            `json:"attached"`
	Status   *session.Status `json:"status,omitempty"`
}

// HandleCreateSession issues a session token for the submitted username.
func HandleCreateSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateSessionInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		username, customErr := user.NormalizeUsername(input.Username)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		sessionID, err := randx.SessionID()
		if err != nil {
			logx.Error(err, "Failed to generate session id")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		token, err := jwt.GenerateToken(&jwt.Payload{
			Username:  username,
			SessionID: sessionID,
		}, deps.Config.JWTSecret, jwt.SessionTokenExpiration)
		if err != nil {
			logx.Error(err, "Failed to sign session token", "username", username)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("Session issued", "username", username, "session_id", sessionID)

		resp.RespondSuccess(w, r, CreateSessionResponse{
			Token: token,
			User:  user.User{Username: username, SessionID: sessionID},
		})
	}
}

// HandleGetSession returns the identity of the Bearer token and the state of its surface.
func HandleGetSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		info := SessionInfoResponse{
			User: user.User{Username: payload.Username, SessionID: payload.SessionID},
		}

		if c := deps.Manager.Get(payload.Username); c != nil && c.SessionID() == payload.SessionID {
			status := c.Status()
			info.Attached = true
			info.Status = &status
		}

		resp.RespondSuccess(w, r, info)
	}
}
