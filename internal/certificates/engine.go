package certificates

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/secure-events/backend/internal/models"
	"github.com/secure-events/backend/internal/registrations"
)

var (
	// ErrAttendanceNotMarked is returned when issuance is attempted for a
	// registration whose attendance flag is not set.
	ErrAttendanceNotMarked = errors.New("attendance not marked for registration")
	// ErrAlreadyIssued signals that a certificate already exists for the
	// registration. It is soft: the existing record accompanies it and
	// callers may treat it as success-with-existing.
	ErrAlreadyIssued = errors.New("certificate already issued")
	// ErrCertificateNotFound is returned by verification for unknown IDs.
	ErrCertificateNotFound = errors.New("certificate not found")
)

// ArtifactQueue schedules the QR image rendering/upload that follows
// issuance. Rendering is a presentation concern; failures here never block
// or invalidate the signed record.
type ArtifactQueue interface {
	EnqueueCertificateArtifact(ctx context.Context, certificateID string) error
}

// canonicalPayload is the deterministic byte encoding of certificate facts.
// Field order is fixed by the struct declaration and issued_at is UTC
// RFC 3339, so the same facts always marshal to the same bytes. The
// signature and the derived identifier depend on that.
type canonicalPayload struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	AccountID      uuid.UUID `json:"account_id"`
	EventID        uuid.UUID `json:"event_id"`
	IssuedAt       string    `json:"issued_at"`
}

// Engine issues signed attendance certificates. Issuance is idempotent per
// registration: the unique registration binding in the repository guarantees
// exactly one stored record no matter how many calls race.
type Engine struct {
	certs     Repository
	regs      registrations.Repository
	signer    *Signer
	artifacts ArtifactQueue // optional
	verifyURL string
	logger    *zap.Logger

	now func() time.Time
}

// NewEngine creates a certificate engine.
func NewEngine(certs Repository, regs registrations.Repository, signer *Signer, artifacts ArtifactQueue, verifyBaseURL string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		certs:     certs,
		regs:      regs,
		signer:    signer,
		artifacts: artifacts,
		verifyURL: strings.TrimRight(verifyBaseURL, "/"),
		logger:    logger,
		now:       time.Now,
	}
}

// Issue generates (or returns) the certificate for a registration.
// Preconditions are re-checked here regardless of the caller: the
// registration must exist and have attendance marked. When a certificate
// already exists the stored record is returned together with
// ErrAlreadyIssued.
func (e *Engine) Issue(ctx context.Context, registrationID uuid.UUID) (*models.Certificate, error) {
	reg, err := e.regs.GetByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if !reg.AttendanceMarked {
		return nil, ErrAttendanceNotMarked
	}

	if existing, err := e.certs.GetByRegistrationID(ctx, registrationID); err == nil {
		return existing, ErrAlreadyIssued
	} else if !errors.Is(err, ErrCertificateNotFound) {
		return nil, err
	}

	issuedAt := e.now().UTC().Truncate(time.Second)
	payload, err := json.Marshal(canonicalPayload{
		RegistrationID: reg.ID,
		AccountID:      reg.AccountID,
		EventID:        reg.EventID,
		IssuedAt:       issuedAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("encode canonical payload: %w", err)
	}

	certID := DeriveCertificateID(payload)
	cert := &models.Certificate{
		CertificateID:  certID,
		RegistrationID: reg.ID,
		AccountID:      reg.AccountID,
		EventID:        reg.EventID,
		IssuedAt:       issuedAt,
		Payload:        payload,
		Signature:      e.signer.Sign(payload),
		QRPayload:      fmt.Sprintf("%s/%s/verify", e.verifyURL, certID),
	}

	stored, created, err := e.certs.CreateIfAbsent(ctx, cert)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost the race; the winner's record is authoritative.
		return stored, ErrAlreadyIssued
	}

	if e.artifacts != nil {
		if err := e.artifacts.EnqueueCertificateArtifact(ctx, certID); err != nil {
			e.logger.Warn("enqueue certificate artifact failed", zap.Error(err), zap.String("certificate_id", certID))
		}
	}
	e.logger.Info("certificate issued",
		zap.String("certificate_id", certID),
		zap.String("registration_id", reg.ID.String()))
	return stored, nil
}

// Verify looks up a certificate and re-validates its signature with the
// public key only. It never consults sessions; anyone holding a certificate
// ID may call it. A stored record that fails verification indicates key or
// storage corruption and is logged as such, but the caller only sees
// valid=false.
func (e *Engine) Verify(ctx context.Context, certificateID string) (*models.Certificate, bool, error) {
	cert, err := e.certs.GetByCertificateID(ctx, certificateID)
	if err != nil {
		return nil, false, err
	}
	valid := ed25519.Verify(e.signer.Public(), cert.Payload, cert.Signature)
	if !valid {
		e.logger.Error("stored certificate failed signature verification",
			zap.String("certificate_id", certificateID))
	}
	return cert, valid, nil
}

// ListByAccount returns the certificates issued to an account.
func (e *Engine) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Certificate, error) {
	return e.certs.ListByAccount(ctx, accountID)
}

// DeriveCertificateID derives the display identifier from the canonical
// payload: CERT- followed by the first 20 hex chars of its SHA-256 digest.
func DeriveCertificateID(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "CERT-" + strings.ToUpper(hex.EncodeToString(sum[:]))[:20]
}
