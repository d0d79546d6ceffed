package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/and161185/thermolink/internal/crypto/clientcrypto"
	"github.com/and161185/thermolink/internal/errs"
)

func genKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	k, err := clientcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p, err := clientcrypto.PublicKeyPEM(&k.PublicKey)
	if err != nil {
		t.Fatalf("PublicKeyPEM: %v", err)
	}
	return k, string(p)
}

func sign(t *testing.T, k *rsa.PrivateKey, nonce string) []byte {
	t.Helper()
	s, err := clientcrypto.SignNonce(k, nonce)
	if err != nil {
		t.Fatalf("SignNonce: %v", err)
	}
	b, _ := base64.StdEncoding.DecodeString(s)
	return b
}

func TestVerify_AcceptsMatchingSignature(t *testing.T) {
	t.Parallel()
	k, pub := genKey(t)
	v := NewVerifier()

	if err := v.Verify(pub, "nonce-1", sign(t, k, "nonce-1")); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	// Second call is served from the key cache.
	if err := v.Verify(pub, "nonce-2", sign(t, k, "nonce-2")); err != nil {
		t.Fatalf("Verify (cached): %v", err)
	}
}

func TestVerify_AcceptsBase64PEMAndPKCS1(t *testing.T) {
	t.Parallel()
	k, pub := genKey(t)
	v := NewVerifier()
	sig := sign(t, k, "n")

	b64 := base64.StdEncoding.EncodeToString([]byte(pub))
	if err := v.Verify(b64, "n", sig); err != nil {
		t.Fatalf("Verify base64 PEM: %v", err)
	}

	pkcs1 := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&k.PublicKey)}))
	if err := v.Verify(pkcs1, "n", sig); err != nil {
		t.Fatalf("Verify PKCS1: %v", err)
	}
}

func TestVerify_FailsClosed(t *testing.T) {
	t.Parallel()
	k, pub := genKey(t)
	other, _ := genKey(t)
	v := NewVerifier()
	good := sign(t, k, "nonce")

	tampered := append([]byte(nil), good...)
	tampered[len(tampered)-1] ^= 0xff

	ecKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	ecDER, _ := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	ecPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: ecDER}))

	cases := []struct {
		name  string
		pub   string
		nonce string
		sig   []byte
	}{
		{"wrong key", pub, "nonce", sign(t, other, "nonce")},
		{"tampered nonce", pub, "nonce!", good},
		{"tampered signature", pub, "nonce", tampered},
		{"empty signature", pub, "nonce", nil},
		{"garbage key", "not a key", "nonce", good},
		{"non-RSA key", ecPEM, "nonce", good},
	}
	for _, tc := range cases {
		if err := v.Verify(tc.pub, tc.nonce, tc.sig); !errors.Is(err, errs.ErrInvalidSignature) {
			t.Fatalf("%s: err=%v, want ErrInvalidSignature", tc.name, err)
		}
	}
}

func TestParsePublicKey_RejectsUnknownBlock(t *testing.T) {
	t.Parallel()
	p := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1, 2, 3}}))
	if _, err := ParsePublicKey(p); err == nil {
		t.Fatalf("expected error for CERTIFICATE block")
	}
}
