package certificates

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSignerGeneratesKeyOnFirstBoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing-key.pem")

	signer, err := LoadSigner(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Second load reads the persisted key back; signatures stay verifiable
	// across restarts.
	reloaded, err := LoadSigner(path)
	require.NoError(t, err)

	msg := []byte("attendance payload")
	sig := signer.Sign(msg)
	assert.True(t, ed25519.Verify(reloaded.Public(), msg, sig))
	assert.Equal(t, signer.Public(), reloaded.Public())
}

func TestLoadSignerRejectsGarbagePEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing-key.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a pem"), 0o600))

	_, err := LoadSigner(path)
	assert.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := NewSigner(priv)

	msg := []byte(`{"registration_id":"r","account_id":"a"}`)
	sig := signer.Sign(msg)
	assert.True(t, ed25519.Verify(signer.Public(), msg, sig))
	assert.False(t, ed25519.Verify(signer.Public(), append(msg, 'x'), sig))
}

func TestRenderQR(t *testing.T) {
	png, err := RenderQR("http://localhost:8080/certificates/CERT-ABC/verify")
	require.NoError(t, err)
	// PNG magic bytes.
	require.True(t, len(png) > 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
