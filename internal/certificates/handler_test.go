package certificates

import (
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secure-events/backend/internal/registrations"
)

func newTestHandler(t *testing.T) (*gin.Engine, *registrations.MemoryRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	regs := registrations.NewMemoryRepository()
	engine := NewEngine(NewMemoryRepository(), regs, NewSigner(priv), nil, "http://localhost:8080/certificates", nil)
	handler := NewHandler(engine, nil)

	router := gin.New()
	router.POST("/registrations/:id/certificate", handler.Generate)
	router.GET("/certificates/:id/verify", handler.Verify)
	return router, regs
}

func TestGenerateRejectsMalformedID(t *testing.T) {
	router, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/registrations/not-a-uuid/certificate", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateUnknownRegistration(t *testing.T) {
	router, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/registrations/6a6e2a1e-1b5c-4f30-9f3e-0123456789ab/certificate", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifyUnknownCertificateEndpoint(t *testing.T) {
	router, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/certificates/CERT-UNKNOWN/verify", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	// Unknown IDs still answer with an explicit valid=false verdict.
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Valid bool `json:"valid"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.False(t, body.Data.Valid)
}
