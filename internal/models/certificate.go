package models

import (
	"time"

	"github.com/google/uuid"
)

// Certificate is a signed attendance certificate. Records are append-only:
// created once per registration, immutable afterward, never deleted.
type Certificate struct {
	CertificateID  string    `json:"certificate_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	AccountID      uuid.UUID `json:"account_id"`
	EventID        uuid.UUID `json:"event_id"`
	IssuedAt       time.Time `json:"issued_at"`
	Payload        []byte    `json:"-"`
	Signature      []byte    `json:"signature"`
	QRPayload      string    `json:"qr_payload"`
	QRObjectKey    string    `json:"qr_object_key,omitempty"`
}
