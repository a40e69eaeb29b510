// Package credentials resolves the API key and signing credential used to
// authenticate ws-api sessions.
package credentials

import (
	"context"
	"crypto/ed25519"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/youmark/pkcs8"

	"github.com/tradingiq/binance-collector/signature"
)

var (
	ErrNoCredential        = errors.New("credentials: neither a secret nor a private key is configured")
	ErrAmbiguousCredential = errors.New("credentials: both a secret and a private key are configured")
	ErrMissingAPIKey       = errors.New("credentials: api key is empty")
	ErrNotEd25519          = errors.New("credentials: private key is not ed25519")
)

type Scheme string

const (
	SchemeHMAC    Scheme = "HMAC"
	SchemeEd25519 Scheme = "ED25519"
)

// Credential holds an API key and exactly one of a shared secret or an
// Ed25519 private key.
type Credential struct {
	APIKey     string
	Scheme     Scheme
	Secret     string
	PrivateKey ed25519.PrivateKey
}

// Provider resolves a credential from durable storage.
type Provider interface {
	Credential(ctx context.Context) (*Credential, error)
}

// ProviderFunc adapts a function into a Provider.
type ProviderFunc func(ctx context.Context) (*Credential, error)

func (f ProviderFunc) Credential(ctx context.Context) (*Credential, error) {
	return f(ctx)
}

// Static always returns the wrapped credential after validating it.
type Static struct {
	Value Credential
}

func (s Static) Credential(_ context.Context) (*Credential, error) {
	cred := s.Value
	if err := cred.normalize(); err != nil {
		return nil, err
	}
	return &cred, nil
}

// Signer returns the signer matching the credential's scheme.
func (c *Credential) Signer() (signature.Signer, error) {
	switch c.Scheme {
	case SchemeHMAC:
		return signature.HMACSigner{Secret: c.Secret}, nil
	case SchemeEd25519:
		return signature.Ed25519Signer{Key: c.PrivateKey}, nil
	default:
		return nil, fmt.Errorf("credentials: unknown scheme %q", c.Scheme)
	}
}

// normalize infers the scheme when it is unset and enforces the one-of rule.
func (c *Credential) normalize() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}

	hasSecret := c.Secret != ""
	hasKey := len(c.PrivateKey) > 0
	switch {
	case hasSecret && hasKey:
		return ErrAmbiguousCredential
	case !hasSecret && !hasKey:
		return ErrNoCredential
	}

	switch c.Scheme {
	case "":
		if hasSecret {
			c.Scheme = SchemeHMAC
		} else {
			c.Scheme = SchemeEd25519
		}
	case SchemeHMAC:
		if !hasSecret {
			return fmt.Errorf("%w: scheme %s needs a secret", ErrNoCredential, c.Scheme)
		}
	case SchemeEd25519:
		if !hasKey {
			return fmt.Errorf("%w: scheme %s needs a private key", ErrNoCredential, c.Scheme)
		}
	default:
		return fmt.Errorf("credentials: unknown scheme %q", c.Scheme)
	}
	return nil
}

type fileConfig struct {
	Keys struct {
		APIKey             string `toml:"api_key"`
		PrivateKey         string `toml:"private_key"`
		PrivateKeyPassword string `toml:"private_key_password"`
		Secret             string `toml:"secret"`
		Scheme             string `toml:"scheme"`
	} `toml:"keys"`
}

// FileProvider reads a TOML file with a [keys] table. A relative
// private_key path is resolved against Root, or the working directory when
// Root is empty.
type FileProvider struct {
	Path string
	Root string
}

// NewFileProvider points at <folder>/config.toml.
func NewFileProvider(folder string) *FileProvider {
	return &FileProvider{Path: filepath.Join(folder, "config.toml")}
}

func (p *FileProvider) Credential(_ context.Context) (*Credential, error) {
	var raw fileConfig
	if _, err := toml.DecodeFile(p.Path, &raw); err != nil {
		return nil, fmt.Errorf("failed to load credential file %s: %w", p.Path, err)
	}

	cred := &Credential{
		APIKey: strings.TrimSpace(raw.Keys.APIKey),
		Scheme: Scheme(strings.ToUpper(strings.TrimSpace(raw.Keys.Scheme))),
		Secret: raw.Keys.Secret,
	}

	if keyPath := strings.TrimSpace(raw.Keys.PrivateKey); keyPath != "" {
		key, err := LoadPrivateKeyFile(p.resolve(keyPath), raw.Keys.PrivateKeyPassword)
		if err != nil {
			return nil, err
		}
		cred.PrivateKey = key
	}

	if err := cred.normalize(); err != nil {
		return nil, err
	}
	return cred, nil
}

func (p *FileProvider) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	root := p.Root
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}
	return filepath.Join(root, path)
}

type envConfig struct {
	APIKey             string `env:"BINANCE_API_KEY"`
	Secret             string `env:"BINANCE_API_SECRET"`
	PrivateKeyPath     string `env:"BINANCE_PRIVATE_KEY_PATH"`
	PrivateKeyPassword string `env:"BINANCE_PRIVATE_KEY_PASSWORD"`
	Scheme             string `env:"BINANCE_KEY_SCHEME"`
}

// EnvProvider reads BINANCE_* environment variables.
type EnvProvider struct{}

func (EnvProvider) Credential(_ context.Context) (*Credential, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse credential environment: %w", err)
	}

	cred := &Credential{
		APIKey: strings.TrimSpace(raw.APIKey),
		Scheme: Scheme(strings.ToUpper(strings.TrimSpace(raw.Scheme))),
		Secret: raw.Secret,
	}

	if raw.PrivateKeyPath != "" {
		key, err := LoadPrivateKeyFile(raw.PrivateKeyPath, raw.PrivateKeyPassword)
		if err != nil {
			return nil, err
		}
		cred.PrivateKey = key
	}

	if err := cred.normalize(); err != nil {
		return nil, err
	}
	return cred, nil
}

// LoadPrivateKeyFile reads a PEM encoded PKCS#8 Ed25519 private key,
// decrypting it when password is non-empty.
func LoadPrivateKeyFile(path, password string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", path, err)
	}
	return ParsePrivateKeyPEM(data, password)
}

func ParsePrivateKeyPEM(data []byte, password string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("credentials: no PEM block found in private key")
	}

	var (
		parsed any
		err    error
	)
	if password != "" {
		parsed, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(password))
	} else {
		parsed, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotEd25519, parsed)
	}
	return key, nil
}
