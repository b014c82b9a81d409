package auth

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/secure-events/backend/internal/middleware"
	"github.com/secure-events/backend/internal/models"
	"github.com/secure-events/backend/internal/sessions"
	"github.com/secure-events/backend/pkg/response"
	"github.com/secure-events/backend/pkg/utils"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"` // optional, defaults to student
}

// LoginRequest is the body for POST /auth/login (step 1).
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// VerifyTOTPRequest is the body for POST /auth/verify-totp (step 2).
type VerifyTOTPRequest struct {
	PendingHandle string `json:"pending_handle" binding:"required"`
	TOTPCode      string `json:"totp_code" binding:"required"`
}

// RegisterResponse carries the new account plus one-time TOTP enrollment
// material. The secret is returned exactly once, here.
type RegisterResponse struct {
	Account    models.AccountPublic `json:"account"`
	TOTPSecret string               `json:"totp_secret"`
	TOTPURI    string               `json:"totp_uri"`
}

// PendingResponse is the step-1 success output: a handle, never a session.
type PendingResponse struct {
	PendingHandle string    `json:"pending_handle"`
	ExpiresAt     time.Time `json:"expires_at"`
	RequiresTOTP  bool      `json:"requires_totp"`
}

// SessionResponse is the step-2 success output.
type SessionResponse struct {
	SessionToken string               `json:"session_token"`
	ExpiresAt    time.Time            `json:"expires_at"`
	Account      models.AccountPublic `json:"account"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	service  *Service
	sessions sessions.Store
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(service *Service, sessionStore sessions.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, sessions: sessionStore, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role := models.RoleStudent
	if req.Role != "" {
		if !models.ValidRole(req.Role) {
			response.BadRequest(c, "invalid role")
			return
		}
		role = models.Role(req.Role)
	}

	result, err := h.service.Register(c.Request.Context(), req.Username, req.Email, req.Password, role)
	switch {
	case err == nil:
		response.Created(c, RegisterResponse{
			Account:    result.Account.ToPublic(),
			TOTPSecret: result.TOTPSecret,
			TOTPURI:    result.ProvisioningURI,
		})
	case errors.Is(err, utils.ErrWeakPassword):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrDuplicateIdentity):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("registration failed", zap.Error(err))
		response.Internal(c, "failed to register")
	}
}

// Login handles POST /auth/login: password verification only. Success hands
// back a short-lived pending handle for the TOTP step.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	pending, err := h.service.VerifyPassword(c.Request.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		response.OK(c, PendingResponse{
			PendingHandle: pending.Handle,
			ExpiresAt:     pending.ExpiresAt,
			RequiresTOTP:  true,
		})
	case errors.Is(err, ErrInvalidCredentials):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, ErrAccountLocked):
		response.Locked(c, err.Error())
	default:
		h.logger.Error("login failed", zap.Error(err))
		response.Internal(c, "failed to log in")
	}
}

// VerifyTOTP handles POST /auth/verify-totp: consumes the pending handle and
// the TOTP code, mints a session.
func (h *Handler) VerifyTOTP(c *gin.Context) {
	var req VerifyTOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	token, session, account, err := h.service.VerifyTOTP(c.Request.Context(), h.sessions, req.PendingHandle, req.TOTPCode)
	switch {
	case err == nil:
		response.OK(c, SessionResponse{
			SessionToken: token,
			ExpiresAt:    session.ExpiresAt,
			Account:      account.ToPublic(),
		})
	case errors.Is(err, ErrPendingExpired):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, ErrInvalidCode):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, ErrAccountLocked):
		response.Locked(c, err.Error())
	default:
		h.logger.Error("totp verification failed", zap.Error(err))
		response.Internal(c, "failed to verify code")
	}
}

// Logout handles POST /auth/logout: revokes the presented session token.
// Revocation is idempotent, so logout always succeeds for a well-formed
// request.
func (h *Handler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		response.Unauthorized(c, "missing or malformed authorization header")
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), token); err != nil {
		h.logger.Error("session revocation failed", zap.Error(err))
		response.Internal(c, "failed to log out")
		return
	}
	response.NoContent(c)
}

// List handles GET /users (admin only).
func (h *Handler) List(c *gin.Context) {
	accounts, err := h.service.ListAccounts(c.Request.Context())
	if err != nil {
		h.logger.Error("list accounts failed", zap.Error(err))
		response.Internal(c, "failed to list accounts")
		return
	}
	response.OK(c, accounts)
}
