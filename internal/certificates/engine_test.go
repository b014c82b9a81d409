package certificates

import (
	"context"
	"crypto/ed25519"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secure-events/backend/internal/models"
	"github.com/secure-events/backend/internal/registrations"
)

func newTestEngine(t *testing.T) (*Engine, *registrations.MemoryRepository, *MemoryRepository) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	regs := registrations.NewMemoryRepository()
	certs := NewMemoryRepository()
	engine := NewEngine(certs, regs, NewSigner(priv), nil, "http://localhost:8080/certificates", nil)
	return engine, regs, certs
}

func attendedRegistration(t *testing.T, regs *registrations.MemoryRepository) *models.Registration {
	t.Helper()
	reg := &models.Registration{EventID: uuid.New(), AccountID: uuid.New()}
	require.NoError(t, regs.Create(context.Background(), reg))
	require.NoError(t, regs.MarkAttendance(context.Background(), reg.ID))
	return reg
}

func TestIssue(t *testing.T) {
	engine, regs, _ := newTestEngine(t)
	ctx := context.Background()
	reg := attendedRegistration(t, regs)

	cert, err := engine.Issue(ctx, reg.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cert.CertificateID, "CERT-"))
	assert.Len(t, cert.CertificateID, len("CERT-")+20)
	assert.Equal(t, reg.ID, cert.RegistrationID)
	assert.Equal(t, reg.AccountID, cert.AccountID)
	assert.Equal(t, reg.EventID, cert.EventID)
	assert.Equal(t, "http://localhost:8080/certificates/"+cert.CertificateID+"/verify", cert.QRPayload)
	assert.Equal(t, DeriveCertificateID(cert.Payload), cert.CertificateID)
}

func TestIssueRequiresAttendance(t *testing.T) {
	engine, regs, _ := newTestEngine(t)
	ctx := context.Background()

	reg := &models.Registration{EventID: uuid.New(), AccountID: uuid.New()}
	require.NoError(t, regs.Create(ctx, reg))

	_, err := engine.Issue(ctx, reg.ID)
	assert.ErrorIs(t, err, ErrAttendanceNotMarked)
}

func TestIssueUnknownRegistration(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.Issue(context.Background(), uuid.New())
	assert.ErrorIs(t, err, registrations.ErrNotFound)
}

func TestIssueIsIdempotent(t *testing.T) {
	engine, regs, _ := newTestEngine(t)
	ctx := context.Background()
	reg := attendedRegistration(t, regs)

	first, err := engine.Issue(ctx, reg.ID)
	require.NoError(t, err)

	// Later clock: the stored record wins, not a re-derived one.
	engine.now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := engine.Issue(ctx, reg.ID)
	assert.ErrorIs(t, err, ErrAlreadyIssued)
	assert.Equal(t, first.CertificateID, second.CertificateID)
	assert.Equal(t, first.Signature, second.Signature)
	assert.Equal(t, first.IssuedAt, second.IssuedAt)
}

func TestConcurrentIssueSingleWinner(t *testing.T) {
	engine, regs, _ := newTestEngine(t)
	ctx := context.Background()
	reg := attendedRegistration(t, regs)

	const n = 20
	var wg sync.WaitGroup
	results := make([]*models.Certificate, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Issue(ctx, reg.ID)
		}(i)
	}
	wg.Wait()

	created := 0
	certID := ""
	for i := 0; i < n; i++ {
		require.NotNil(t, results[i])
		if errs[i] == nil {
			created++
		} else {
			require.ErrorIs(t, errs[i], ErrAlreadyIssued)
		}
		if certID == "" {
			certID = results[i].CertificateID
		}
		assert.Equal(t, certID, results[i].CertificateID)
	}
	assert.Equal(t, 1, created)
}

func TestVerify(t *testing.T) {
	engine, regs, _ := newTestEngine(t)
	ctx := context.Background()
	reg := attendedRegistration(t, regs)

	cert, err := engine.Issue(ctx, reg.ID)
	require.NoError(t, err)

	got, valid, err := engine.Verify(ctx, cert.CertificateID)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, cert.CertificateID, got.CertificateID)
}

func TestVerifyUnknownCertificate(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, _, err := engine.Verify(context.Background(), "CERT-DOESNOTEXIST0000000")
	assert.ErrorIs(t, err, ErrCertificateNotFound)
}

func TestVerifyDetectsTampering(t *testing.T) {
	engine, regs, certs := newTestEngine(t)
	ctx := context.Background()

	t.Run("payload byte flipped", func(t *testing.T) {
		reg := attendedRegistration(t, regs)
		cert, err := engine.Issue(ctx, reg.ID)
		require.NoError(t, err)

		certs.Corrupt(cert.CertificateID, func(c *models.Certificate) {
			c.Payload[0] ^= 0x01
		})
		_, valid, err := engine.Verify(ctx, cert.CertificateID)
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("signature byte flipped", func(t *testing.T) {
		reg := attendedRegistration(t, regs)
		cert, err := engine.Issue(ctx, reg.ID)
		require.NoError(t, err)

		certs.Corrupt(cert.CertificateID, func(c *models.Certificate) {
			c.Signature[0] ^= 0x01
		})
		_, valid, err := engine.Verify(ctx, cert.CertificateID)
		require.NoError(t, err)
		assert.False(t, valid)
	})
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	engine, regs, certs := newTestEngine(t)
	ctx := context.Background()
	reg := attendedRegistration(t, regs)

	cert, err := engine.Issue(ctx, reg.ID)
	require.NoError(t, err)

	// Same stored record checked by an engine holding a different key pair.
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	other := NewEngine(certs, regs, NewSigner(otherPriv), nil, "http://localhost:8080/certificates", nil)

	_, valid, err := other.Verify(ctx, cert.CertificateID)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestListByAccount(t *testing.T) {
	engine, regs, _ := newTestEngine(t)
	ctx := context.Background()

	accountID := uuid.New()
	for i := 0; i < 2; i++ {
		reg := &models.Registration{EventID: uuid.New(), AccountID: accountID}
		require.NoError(t, regs.Create(ctx, reg))
		require.NoError(t, regs.MarkAttendance(ctx, reg.ID))
		_, err := engine.Issue(ctx, reg.ID)
		require.NoError(t, err)
	}
	otherReg := attendedRegistration(t, regs)
	_, err := engine.Issue(ctx, otherReg.ID)
	require.NoError(t, err)

	list, err := engine.ListByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDeriveCertificateIDDeterministic(t *testing.T) {
	payload := []byte(`{"registration_id":"x"}`)
	assert.Equal(t, DeriveCertificateID(payload), DeriveCertificateID(payload))
	assert.NotEqual(t, DeriveCertificateID(payload), DeriveCertificateID([]byte(`{"registration_id":"y"}`)))
}
