package main

import (
	"crypto/rsa"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"go.etcd.io/bbolt"

	"github.com/and161185/thermolink/internal/crypto/clientcrypto"
)

var (
	bucketIdentity = []byte("identity")
	bucketTokens   = []byte("tokens")

	keyDeviceID   = []byte("device_id")
	keyPrivateKey = []byte("private_key")
)

var (
	errNoIdentity = errors.New("no device identity (run keygen first)")
	errNoToken    = errors.New("no valid token (login required)")
)

// tokenRecord is persisted per token owner ("device" or a user email).
type tokenRecord struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// store keeps the simulator's key pair and session tokens in a bbolt file.
type store struct {
	db *bbolt.DB
}

func defaultStatePath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "thermolink", "sim.db")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "thermolink", "sim.db")
}

func openStore(path string) (*store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketIdentity, bucketTokens} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) Close() error { return s.db.Close() }

func (s *store) saveIdentity(id uuid.UUID, key *rsa.PrivateKey) error {
	pem, err := clientcrypto.PrivateKeyPEM(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIdentity)
		if err := b.Put(keyDeviceID, id.Bytes()); err != nil {
			return err
		}
		if err := b.Put(keyPrivateKey, pem); err != nil {
			return err
		}
		// A new key invalidates any session of the old identity.
		return tx.Bucket(bucketTokens).Delete([]byte("device"))
	})
}

func (s *store) loadIdentity() (uuid.UUID, *rsa.PrivateKey, error) {
	var idRaw, pem []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIdentity)
		// bbolt values are only valid inside the transaction.
		idRaw = append([]byte(nil), b.Get(keyDeviceID)...)
		pem = append([]byte(nil), b.Get(keyPrivateKey)...)
		return nil
	})
	if err != nil {
		return uuid.Nil, nil, err
	}
	if len(idRaw) == 0 || len(pem) == 0 {
		return uuid.Nil, nil, errNoIdentity
	}
	id, err := uuid.FromBytes(idRaw)
	if err != nil {
		return uuid.Nil, nil, err
	}
	key, err := clientcrypto.ParsePrivateKeyPEM(pem)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return id, key, nil
}

func (s *store) hasIdentity() bool {
	_, _, err := s.loadIdentity()
	return err == nil
}

func (s *store) saveToken(owner, tok string, exp time.Time) error {
	raw, err := json.Marshal(tokenRecord{AccessToken: tok, ExpiresAt: exp})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).Put([]byte(owner), raw)
	})
}

func (s *store) loadToken(owner string, now time.Time) (string, error) {
	var rec tokenRecord
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketTokens).Get([]byte(owner))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return "", err
	}
	if !found || rec.AccessToken == "" || !now.Before(rec.ExpiresAt) {
		return "", errNoToken
	}
	return rec.AccessToken, nil
}
