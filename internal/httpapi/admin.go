package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mopstar/mopstar-api/internal/auth"
	"github.com/mopstar/mopstar-api/internal/logging"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	var req loginRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	token, err := s.deps.Auth.Login(req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		logger.Warn("admin login failed", "email", logging.RedactEmail(req.Email))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		logger.Error("failed to issue admin token", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("admin logged in")
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: token})
}
