package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secure-events/backend/config"
	"github.com/secure-events/backend/internal/certificates"
	"github.com/secure-events/backend/internal/middleware"
	"github.com/secure-events/backend/internal/models"
	"github.com/secure-events/backend/internal/registrations"
	"github.com/secure-events/backend/internal/sessions"
)

type testEnv struct {
	router *gin.Engine
	regs   *registrations.MemoryRepository
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// newTestEnv assembles the full HTTP surface on in-memory stores, mirroring
// the production route table.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.AuthConfig{
		Issuer:          "Secure Event System",
		PendingTTL:      5 * time.Minute,
		SessionTTL:      24 * time.Hour,
		MaxFailures:     5,
		FailureWindow:   15 * time.Minute,
		LockoutCooldown: 15 * time.Minute,
	}
	lockout := NewMemoryLockoutStore(LockoutPolicy{
		MaxFailures: cfg.MaxFailures,
		Window:      cfg.FailureWindow,
		Cooldown:    cfg.LockoutCooldown,
	})
	service := NewService(NewMemoryAccountRepository(), NewMemoryPendingStore(), lockout, lockout, cfg, nil)
	sessionStore := sessions.NewMemoryStore(cfg.SessionTTL)
	authHandler := NewHandler(service, sessionStore, nil)

	regRepo := registrations.NewMemoryRepository()
	regHandler := registrations.NewHandler(regRepo, nil)

	signer, err := certificates.LoadSigner(t.TempDir() + "/signing-key.pem")
	require.NoError(t, err)
	certEngine := certificates.NewEngine(certificates.NewMemoryRepository(), regRepo, signer, nil, "http://localhost:8080/certificates", nil)
	certHandler := certificates.NewHandler(certEngine, nil)

	router := gin.New()
	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)
	router.POST("/auth/verify-totp", authHandler.VerifyTOTP)
	router.GET("/certificates/:id/verify", certHandler.Verify)

	api := router.Group("")
	api.Use(middleware.Session(sessionStore))
	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/users", middleware.RequireRole("admin"), authHandler.List)
	api.POST("/registrations/:id/attendance", middleware.RequireRole("organizer", "admin"), regHandler.MarkAttendance)
	api.POST("/registrations/:id/certificate", middleware.RequireRole("organizer", "admin"), certHandler.Generate)
	api.GET("/my-certificates", certHandler.Mine)

	return &testEnv{router: router, regs: regRepo}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

// register creates an account through the API and returns its TOTP secret.
func (e *testEnv) register(t *testing.T, username, role string) string {
	t.Helper()
	w, env := e.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "Abcdef1!",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var data struct {
		Account struct {
			ID string `json:"id"`
		} `json:"account"`
		TOTPSecret string `json:"totp_secret"`
		TOTPURI    string `json:"totp_uri"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.TOTPSecret)
	require.Contains(t, data.TOTPURI, "otpauth://totp/")
	return data.TOTPSecret
}

// login runs both steps and returns a live session token.
func (e *testEnv) login(t *testing.T, username, secret string) string {
	t.Helper()
	w, env := e.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"username": username,
		"password": "Abcdef1!",
	})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var pending struct {
		PendingHandle string `json:"pending_handle"`
		RequiresTOTP  bool   `json:"requires_totp"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.True(t, pending.RequiresTOTP)

	code, err := GenerateTOTPCode(secret, time.Now())
	require.NoError(t, err)
	w, env = e.do(t, http.MethodPost, "/auth/verify-totp", "", gin.H{
		"pending_handle": pending.PendingHandle,
		"totp_code":      code,
	})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var session struct {
		SessionToken string `json:"session_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.NotEmpty(t, session.SessionToken)
	return session.SessionToken
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "alice", "student")

	t.Run("duplicate username", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/auth/register", "", gin.H{
			"username": "alice", "email": "fresh@example.com", "password": "Abcdef1!",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("weak password", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/auth/register", "", gin.H{
			"username": "bob", "email": "bob@example.com", "password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid role", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/auth/register", "", gin.H{
			"username": "carol", "email": "carol@example.com", "password": "Abcdef1!", "role": "superuser",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLoginEndpointRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "student")

	w, _ := env.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"username": "alice", "password": "Wrong-Pass1!",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodPost, "/auth/login", "", gin.H{
		"username": "ghost", "password": "Abcdef1!",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFullLoginAndLogoutFlow(t *testing.T) {
	env := newTestEnv(t)
	secret := env.register(t, "alice", "student")
	token := env.login(t, "alice", secret)

	// The session works on a protected route.
	w, _ := env.do(t, http.MethodGet, "/my-certificates", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Logout revokes it; the very next request is rejected.
	w, _ = env.do(t, http.MethodPost, "/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = env.do(t, http.MethodGet, "/my-certificates", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleEnforcement(t *testing.T) {
	env := newTestEnv(t)
	studentSecret := env.register(t, "student1", "student")
	adminSecret := env.register(t, "boss", "admin")

	studentToken := env.login(t, "student1", studentSecret)
	adminToken := env.login(t, "boss", adminSecret)

	w, _ := env.do(t, http.MethodGet, "/users", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = env.do(t, http.MethodGet, "/users", adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceToCertificateFlow(t *testing.T) {
	env := newTestEnv(t)
	orgSecret := env.register(t, "organizer1", "organizer")
	orgToken := env.login(t, "organizer1", orgSecret)

	reg := seedRegistration(t, env)

	// Certificate before attendance is refused.
	w, _ := env.do(t, http.MethodPost, "/registrations/"+reg+"/certificate", orgToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/registrations/"+reg+"/attendance", orgToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env1 := env.do(t, http.MethodPost, "/registrations/"+reg+"/certificate", orgToken, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var cert struct {
		CertificateID string `json:"certificate_id"`
		AlreadyIssued bool   `json:"already_issued"`
	}
	require.NoError(t, json.Unmarshal(env1.Data, &cert))
	require.NotEmpty(t, cert.CertificateID)
	assert.False(t, cert.AlreadyIssued)

	// Re-issuing returns the stored record with 200, not a new one.
	w, env2 := env.do(t, http.MethodPost, "/registrations/"+reg+"/certificate", orgToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var again struct {
		CertificateID string `json:"certificate_id"`
		AlreadyIssued bool   `json:"already_issued"`
	}
	require.NoError(t, json.Unmarshal(env2.Data, &again))
	assert.Equal(t, cert.CertificateID, again.CertificateID)
	assert.True(t, again.AlreadyIssued)

	// Public verification needs no credentials.
	w, env3 := env.do(t, http.MethodGet, "/certificates/"+cert.CertificateID+"/verify", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var verify struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.Unmarshal(env3.Data, &verify))
	assert.True(t, verify.Valid)
}

func seedRegistration(t *testing.T, env *testEnv) string {
	t.Helper()
	reg := &models.Registration{EventID: uuid.New(), AccountID: uuid.New()}
	require.NoError(t, env.regs.Create(context.Background(), reg))
	return reg.ID.String()
}
