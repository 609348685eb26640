// internal/handlers/session/session_handler.go
package session

import (
	"errors"
	"net/http"
	"time"

	"license-service/internal/middleware"
	"license-service/internal/pkg/response"
	"license-service/internal/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionCloser drops live connections opened with a revoked token.
type SessionCloser interface {
	DisconnectSession(sessionID string, reason string) int
}

type SessionHandler struct {
	sessions *session.Manager
	closer   SessionCloser
	logger   *zap.Logger
}

func NewSessionHandler(sessions *session.Manager, closer SessionCloser, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, closer: closer, logger: logger}
}

type RevokeTokenRequest struct {
	JTI       string    `json:"jti" binding:"required"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at" binding:"required"`
	Reason    string    `json:"reason" binding:"max=255"`
}

// Logout revokes the token used for this request.
func (h *SessionHandler) Logout(c *gin.Context) {
	subject, _ := middleware.GetSubject(c)
	expiresAt, ok := middleware.GetTokenExpiry(c)
	if !ok {
		// tokens without exp cannot be parked until expiry
		response.Error(c, http.StatusBadRequest, "token has no expiry", nil)
		return
	}

	h.revoke(c, &session.Revocation{
		JTI:       middleware.GetTokenID(c),
		Subject:   subject,
		RevokedBy: subject,
		Reason:    "logout",
		ExpiresAt: expiresAt,
	}, "logged out")
}

// RevokeToken lets a super admin revoke another operator's token.
func (h *SessionHandler) RevokeToken(c *gin.Context) {
	var req RevokeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	by, _ := middleware.GetSubject(c)
	h.revoke(c, &session.Revocation{
		JTI:       req.JTI,
		Subject:   req.Subject,
		RevokedBy: by,
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
	}, "token revoked")
}

func (h *SessionHandler) revoke(c *gin.Context, r *session.Revocation, message string) {
	if err := h.sessions.Revoke(c.Request.Context(), r); err != nil {
		if errors.Is(err, session.ErrMissingJTI) {
			response.Error(c, http.StatusBadRequest, "token has no jti", err)
			return
		}
		h.logger.Error("failed to revoke token", zap.String("jti", r.JTI), zap.Error(err))
		response.Fail(c, http.StatusServiceUnavailable, "session_store_unavailable", "could not revoke token", nil)
		return
	}

	closed := 0
	if h.closer != nil {
		closed = h.closer.DisconnectSession(r.JTI, "token revoked")
	}

	h.logger.Info("operator token revoked",
		zap.String("jti", r.JTI),
		zap.String("subject", r.Subject),
		zap.String("revoked_by", r.RevokedBy),
		zap.Int("closed_connections", closed))

	response.Success(c, http.StatusOK, message, gin.H{
		"jti":                r.JTI,
		"expires_at":         r.ExpiresAt,
		"closed_connections": closed,
	})
}
