package registrations

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/secure-events/backend/pkg/response"
)

// Handler handles attendance HTTP endpoints.
type Handler struct {
	repo   Repository
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(repo Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// MarkAttendance handles POST /registrations/:id/attendance (organizer/admin).
func (h *Handler) MarkAttendance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	if err := h.repo.MarkAttendance(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "registration not found")
			return
		}
		h.logger.Error("mark attendance failed", zap.Error(err), zap.String("registration_id", id.String()))
		response.Internal(c, "failed to mark attendance")
		return
	}
	response.OK(c, gin.H{"registration_id": id, "attendance_marked": true})
}
