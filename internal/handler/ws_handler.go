/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting, validating
the session token, upgrading the HTTP connection to WebSocket, and attaching the surface to a session.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"vcall/internal/app/surface"
	"vcall/internal/pkg/auth/jwt"
	"vcall/internal/pkg/errs"
	"vcall/internal/pkg/limiter"
	"vcall/internal/pkg/logx"
	"vcall/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process surface connection requests.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logx.FromContext(r.Context())

		if !rateLimiter.Allow(r) {
			log.Warn().Msg("WebSocket connection rejected: Rate limit exceeded.")
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		payload, err := jwt.FromQuery(r, deps.Config.JWTSecret)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket request rejected: Invalid session token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		log.Info().Str("username", payload.Username).Str("session_id", payload.SessionID).Msg("Attempting to upgrade connection")

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}

		conn := surface.NewConn(ws, payload.Username)
		ctrl, err := deps.Manager.Attach(payload.Username, payload.SessionID, conn)
		if err != nil {
			log.Warn().Err(err).Msg("Surface rejected, closing connection")
			// flushes the close frame queued by Attach
			conn.WritePump()
			return
		}
		conn.SetHandler(ctrl)

		go conn.WritePump()

		log.Info().Str("username", payload.Username).Msg("Surface connected and session attached")

		conn.ReadPump()
	}
}
