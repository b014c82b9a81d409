package certificates

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/secure-events/backend/internal/middleware"
	"github.com/secure-events/backend/internal/models"
	"github.com/secure-events/backend/internal/registrations"
	"github.com/secure-events/backend/pkg/response"
)

// Handler handles certificate HTTP endpoints.
type Handler struct {
	engine *Engine
	logger *zap.Logger
}

// NewHandler creates a certificates handler.
func NewHandler(engine *Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

// certificateView is the API shape of a certificate record.
type certificateView struct {
	CertificateID  string `json:"certificate_id"`
	RegistrationID string `json:"registration_id"`
	AccountID      string `json:"account_id"`
	EventID        string `json:"event_id"`
	IssuedAt       string `json:"issued_at"`
	Payload        string `json:"payload"`
	Signature      []byte `json:"signature"`
	QRPayload      string `json:"qr_payload"`
	AlreadyIssued  bool   `json:"already_issued,omitempty"`
}

func toView(c *models.Certificate, alreadyIssued bool) certificateView {
	return certificateView{
		CertificateID:  c.CertificateID,
		RegistrationID: c.RegistrationID.String(),
		AccountID:      c.AccountID.String(),
		EventID:        c.EventID.String(),
		IssuedAt:       c.IssuedAt.UTC().Format(time.RFC3339),
		Payload:        string(c.Payload),
		Signature:      c.Signature,
		QRPayload:      c.QRPayload,
		AlreadyIssued:  alreadyIssued,
	}
}

// Generate handles POST /registrations/:id/certificate (organizer/admin).
// Re-issuing for the same registration returns the stored record.
func (h *Handler) Generate(c *gin.Context) {
	regID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	cert, err := h.engine.Issue(c.Request.Context(), regID)
	switch {
	case err == nil:
		response.Created(c, toView(cert, false))
	case errors.Is(err, ErrAlreadyIssued):
		response.OK(c, toView(cert, true))
	case errors.Is(err, registrations.ErrNotFound):
		response.NotFound(c, "registration not found")
	case errors.Is(err, ErrAttendanceNotMarked):
		response.BadRequest(c, "attendance not marked for registration")
	default:
		h.logger.Error("certificate issuance failed", zap.Error(err), zap.String("registration_id", regID.String()))
		response.Internal(c, "failed to generate certificate")
	}
}

// Verify handles GET /certificates/:id/verify. Public: no session required.
func (h *Handler) Verify(c *gin.Context) {
	certID := c.Param("id")
	cert, valid, err := h.engine.Verify(c.Request.Context(), certID)
	if err != nil {
		if errors.Is(err, ErrCertificateNotFound) {
			c.JSON(http.StatusNotFound, response.Body{Success: false, Data: gin.H{"valid": false}, Error: "certificate not found"})
			return
		}
		h.logger.Error("certificate verification failed", zap.Error(err), zap.String("certificate_id", certID))
		response.Internal(c, "failed to verify certificate")
		return
	}
	response.OK(c, gin.H{
		"valid":       valid,
		"certificate": toView(cert, false),
	})
}

// Mine handles GET /my-certificates for the authenticated account.
func (h *Handler) Mine(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Unauthorized(c, "missing account context")
		return
	}
	list, err := h.engine.ListByAccount(c.Request.Context(), accountID)
	if err != nil {
		h.logger.Error("list certificates failed", zap.Error(err), zap.String("account_id", accountID.String()))
		response.Internal(c, "failed to list certificates")
		return
	}
	views := make([]certificateView, 0, len(list))
	for i := range list {
		views = append(views, toView(&list[i], false))
	}
	response.OK(c, views)
}
