package crypto

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/and161185/thermolink/internal/errs"
)

// keyCacheTTL bounds how long a parsed key stays cached after last use.
const keyCacheTTL = 30 * time.Minute

// Verifier checks device signatures over login nonces with RSA-PSS/SHA-256.
// Registered keys never change, so parsed keys are cached by their PEM text.
type Verifier struct {
	keys *cache.Cache
}

// NewVerifier constructs a Verifier with an empty key cache.
func NewVerifier() *Verifier {
	return &Verifier{keys: cache.New(keyCacheTTL, 2*keyCacheTTL)}
}

// Verify checks signature over the UTF-8 bytes of nonce. Any malformed key,
// malformed signature or mismatch yields errs.ErrInvalidSignature.
func (v *Verifier) Verify(publicKeyPEM, nonce string, signature []byte) error {
	if len(signature) == 0 {
		return errs.ErrInvalidSignature
	}
	pub, err := v.key(publicKeyPEM)
	if err != nil {
		return errs.ErrInvalidSignature
	}
	digest := sha256.Sum256([]byte(nonce))
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], signature, opts); err != nil {
		return errs.ErrInvalidSignature
	}
	return nil
}

func (v *Verifier) key(publicKeyPEM string) (*rsa.PublicKey, error) {
	if k, ok := v.keys.Get(publicKeyPEM); ok {
		v.keys.SetDefault(publicKeyPEM, k)
		return k.(*rsa.PublicKey), nil
	}
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	v.keys.SetDefault(publicKeyPEM, pub)
	return pub, nil
}

// ParsePublicKey decodes an RSA public key from a PKIX or PKCS#1 PEM block.
// The PEM text may itself be base64-encoded.
func ParsePublicKey(s string) (*rsa.PublicKey, error) {
	raw := []byte(strings.TrimSpace(s))
	if !strings.HasPrefix(string(raw), "-----BEGIN") {
		dec, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			return nil, errors.New("public key is neither PEM nor base64-encoded PEM")
		}
		raw = dec
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKIX key: %w", err)
		}
		rk, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", k)
		}
		return rk, nil
	case "RSA PUBLIC KEY":
		rk, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS1 key: %w", err)
		}
		return rk, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
}
