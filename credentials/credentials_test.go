package credentials

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"

	"github.com/tradingiq/binance-collector/signature"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func ed25519PEM(t *testing.T, key ed25519.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return key
}

func TestFileProvider_Ed25519(t *testing.T) {
	dir := t.TempDir()
	key := newKey(t)
	writeFile(t, dir, "private.pem", ed25519PEM(t, key))
	writeFile(t, dir, "config.toml", `
[keys]
api_key = "my-api-key"
private_key = "private.pem"
private_key_password = ""
`)

	provider := NewFileProvider(dir)
	provider.Root = dir

	cred, err := provider.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my-api-key", cred.APIKey)
	assert.Equal(t, SchemeEd25519, cred.Scheme)
	assert.Equal(t, key, cred.PrivateKey)
	assert.Empty(t, cred.Secret)

	signer, err := cred.Signer()
	require.NoError(t, err)
	assert.IsType(t, signature.Ed25519Signer{}, signer)
}

func TestFileProvider_EncryptedKey(t *testing.T) {
	dir := t.TempDir()
	key := newKey(t)

	der, err := pkcs8.MarshalPrivateKey(key, []byte("hunter2"), nil)
	require.NoError(t, err)
	keyPath := writeFile(t, dir, "private.pem", string(pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der})))
	writeFile(t, dir, "config.toml", `
[keys]
api_key = "k"
private_key = "`+filepath.ToSlash(keyPath)+`"
private_key_password = "hunter2"
`)

	cred, err := NewFileProvider(dir).Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, key, cred.PrivateKey)

	_, err = ParsePrivateKeyPEM([]byte(mustRead(t, keyPath)), "wrong")
	assert.Error(t, err)
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestFileProvider_HMAC(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.toml", `
[keys]
api_key = "k"
secret = "abc"
`)

	cred, err := NewFileProvider(dir).Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemeHMAC, cred.Scheme)

	signer, err := cred.Signer()
	require.NoError(t, err)
	sig, err := signer.Sign("apiKey=X&timestamp=1000")
	require.NoError(t, err)
	assert.Equal(t, "4a758b0317ddb0a8d16aa742a43b1df1fa68b9656749017d171de6830927db6f", sig)
}

func TestFileProvider_Errors(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecDER, err := x509.MarshalPKCS8PrivateKey(ecKey)
	require.NoError(t, err)

	tests := []struct {
		name    string
		config  string
		files   map[string]string
		wantErr error
	}{
		{
			name:    "missing api key",
			config:  "[keys]\nsecret = \"abc\"\n",
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "no credential",
			config:  "[keys]\napi_key = \"k\"\n",
			wantErr: ErrNoCredential,
		},
		{
			name:    "both credentials",
			config:  "[keys]\napi_key = \"k\"\nsecret = \"abc\"\nprivate_key = \"private.pem\"\n",
			files:   map[string]string{"private.pem": ed25519PEM(t, newKey(t))},
			wantErr: ErrAmbiguousCredential,
		},
		{
			name:    "wrong key type",
			config:  "[keys]\napi_key = \"k\"\nprivate_key = \"ec.pem\"\n",
			files:   map[string]string{"ec.pem": string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: ecDER}))},
			wantErr: ErrNotEd25519,
		},
		{
			name:    "scheme without matching credential",
			config:  "[keys]\napi_key = \"k\"\nsecret = \"abc\"\nscheme = \"ed25519\"\n",
			wantErr: ErrNoCredential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			writeFile(t, dir, "config.toml", tt.config)

			provider := NewFileProvider(dir)
			provider.Root = dir
			_, err := provider.Credential(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFileProvider_MissingFile(t *testing.T) {
	_, err := NewFileProvider(t.TempDir()).Credential(context.Background())
	assert.Error(t, err)
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "env-key")
	t.Setenv("BINANCE_API_SECRET", "env-secret")
	t.Setenv("BINANCE_PRIVATE_KEY_PATH", "")

	cred, err := EnvProvider{}.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-key", cred.APIKey)
	assert.Equal(t, SchemeHMAC, cred.Scheme)
	assert.Equal(t, "env-secret", cred.Secret)
}

func TestEnvProvider_PrivateKey(t *testing.T) {
	key := newKey(t)
	path := writeFile(t, t.TempDir(), "private.pem", ed25519PEM(t, key))

	t.Setenv("BINANCE_API_KEY", "env-key")
	t.Setenv("BINANCE_API_SECRET", "")
	t.Setenv("BINANCE_PRIVATE_KEY_PATH", path)

	cred, err := EnvProvider{}.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemeEd25519, cred.Scheme)
	assert.Equal(t, key, cred.PrivateKey)
}

func TestStatic(t *testing.T) {
	cred, err := Static{Value: Credential{APIKey: "k", Secret: "s"}}.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemeHMAC, cred.Scheme)

	_, err = Static{Value: Credential{APIKey: "k"}}.Credential(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}
