// Package signature canonicalizes request parameters and signs them with
// either an HMAC-SHA256 shared secret or an Ed25519 private key, the two
// schemes Binance accepts for API keys.
package signature

import (
	"crypto"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tradingiq/binance-collector/types"
)

var (
	ErrMissingSecret = errors.New("signature: shared secret is empty")
	ErrMissingKey    = errors.New("signature: private key is absent")
	ErrWrongKeyType  = errors.New("signature: private key is not ed25519")
)

// Signer signs a canonical parameter string.
type Signer interface {
	Sign(canonical string) (string, error)
}

// Canonicalize renders params as key=value pairs joined by '&', keys sorted
// lexicographically. Values are not escaped; the remote verifier rebuilds the
// same string from the decoded parameters.
func Canonicalize(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatValue(params[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// SignHMAC returns the lowercase hex HMAC-SHA256 of canonical keyed by secret.
func SignHMAC(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignEd25519 returns the standard base64 encoding of the Ed25519 signature
// of canonical.
func SignEd25519(key crypto.PrivateKey, canonical string) (string, error) {
	var priv ed25519.PrivateKey
	switch k := key.(type) {
	case nil:
		return "", ErrMissingKey
	case ed25519.PrivateKey:
		priv = k
	case *ed25519.PrivateKey:
		if k == nil {
			return "", ErrMissingKey
		}
		priv = *k
	default:
		return "", fmt.Errorf("%w: got %T", ErrWrongKeyType, key)
	}

	if len(priv) == 0 {
		return "", ErrMissingKey
	}
	if len(priv) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("%w: bad key length %d", ErrWrongKeyType, len(priv))
	}

	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(canonical))), nil
}

type HMACSigner struct {
	Secret string
}

func (s HMACSigner) Sign(canonical string) (string, error) {
	if s.Secret == "" {
		return "", ErrMissingSecret
	}
	return SignHMAC(s.Secret, canonical), nil
}

type Ed25519Signer struct {
	Key ed25519.PrivateKey
}

func (s Ed25519Signer) Sign(canonical string) (string, error) {
	return SignEd25519(s.Key, canonical)
}

// NeedsSignature reports whether the payload carries an apiKey and must
// therefore be stamped before every connect and refresh.
func NeedsSignature(p *types.Payload) bool {
	if p == nil {
		return false
	}
	_, ok := p.APIKey()
	return ok
}

// Stamp signs {apiKey, timestamp} for the given instant and writes the
// timestamp/signature pair into the payload in one step. The payload is left
// untouched when signing fails.
func Stamp(p *types.Payload, apiKey string, signer Signer, now time.Time) error {
	if signer == nil {
		return ErrMissingKey
	}

	timestamp := now.UnixMilli()
	canonical := Canonicalize(map[string]any{
		types.ParamAPIKey:    apiKey,
		types.ParamTimestamp: timestamp,
	})

	sig, err := signer.Sign(canonical)
	if err != nil {
		return err
	}

	p.SetAuth(timestamp, sig)
	return nil
}
