package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vcall/internal/app/presence"
	"vcall/internal/pkg/errs"
	"vcall/internal/pkg/logx"
	"vcall/internal/pkg/resp"
)

const presenceFetchTimeout = 3 * time.Second

// HandleGetPresence returns the presence record of a user, read-only.
func HandleGetPresence(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "username")

		ctx, cancel := context.WithTimeout(r.Context(), presenceFetchTimeout)
		defer cancel()

		record, err := deps.Presence.Fetch(ctx, username)
		if err != nil {
			if errors.Is(err, presence.ErrInvalidPath) {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}

			logx.Error(err, "Failed to fetch presence record", "username", username)
			resp.RespondError(w, r, errs.NewError(errs.ErrPresenceUnavailable))
			return
		}

		resp.RespondSuccess(w, r, record)
	}
}
