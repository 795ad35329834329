package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/model"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func profileOf(u model.User) userProfile {
	return userProfile{ID: u.ID.String(), Username: u.Username, Email: u.Email}
}

type authPayload struct {
	User      userProfile `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// handleRegister creates an account and returns a token so the client can
// start syncing without a separate login round-trip.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", errs.ErrValidation, err), "Invalid request body")
		return
	}

	tok, u, err := s.auth.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.respondError(c, err, "Error registering user")
		return
	}
	respond(c, http.StatusCreated, "User registered successfully",
		authPayload{User: profileOf(u), Token: tok.AccessToken, ExpiresAt: tok.ExpiresAt})
}

// handleLogin authenticates by email and password.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", errs.ErrValidation, err), "Invalid request body")
		return
	}

	tok, u, err := s.auth.LoginWithIP(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		s.respondError(c, err, "Invalid credentials")
		return
	}
	respond(c, http.StatusOK, "Login successful",
		authPayload{User: profileOf(u), Token: tok.AccessToken, ExpiresAt: tok.ExpiresAt})
}

// handleMe returns the authenticated caller's profile.
func (s *Server) handleMe(c *gin.Context) {
	u, err := s.auth.GetUser(c.Request.Context(), ownerID(c))
	if err != nil {
		s.respondError(c, err, "Error loading user")
		return
	}
	respond(c, http.StatusOK, "", gin.H{"user": profileOf(*u)})
}
