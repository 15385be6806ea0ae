package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/clinicdesk/appointment-backend/internal/auth"
)

func loginHandler(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body LoginRequest
		if !decodeBody(w, r, &body) {
			return
		}

		res, err := svc.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Token:     res.Token,
			Role:      res.Principal.Role,
			UserID:    res.Principal.ID,
			ExpiresIn: int64(res.ExpiresIn / time.Second),
		})
	}
}
