package models

import (
	"time"

	"github.com/google/uuid"
)

// Registration is a student registration for an event. This subsystem reads
// attendance state and flips the attendance flag; the rest of registration
// bookkeeping belongs to the surrounding CRUD layer.
type Registration struct {
	ID               uuid.UUID `json:"id"`
	EventID          uuid.UUID `json:"event_id"`
	AccountID        uuid.UUID `json:"account_id"`
	AttendanceMarked bool      `json:"attendance_marked"`
	CreatedAt        time.Time `json:"created_at"`
}
