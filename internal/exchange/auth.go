package exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Credentials sign trade API requests. Kalshi authenticates each request
// with an RSA-PSS signature over timestampMs + method + path, carried in
// the KALSHI-ACCESS-* headers.
type Credentials struct {
	KeyID      string // API key ID from the Kalshi dashboard
	PrivateKey *rsa.PrivateKey
}

// LoadCredentials reads the RSA private key at privateKeyPath and pairs it
// with the dashboard key ID.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, errors.New("API key ID is required")
	}
	if privateKeyPath == "" {
		return nil, errors.New("private key path is required")
	}

	data, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	key, err := parsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Credentials{KeyID: keyID, PrivateKey: key}, nil
}

// parsePrivateKey accepts PEM-encoded PKCS#8 or PKCS#1 RSA keys; the
// dashboard has issued both formats over time.
func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", key)
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return rsaKey, nil
}

// signRequest produces the auth headers for one request. path is the full
// URL path including the /trade-api/v2 prefix, without the query string.
func (c *Credentials) signRequest(method, path string) (map[string]string, error) {
	ts := time.Now().UnixMilli()

	sig, err := c.sign(ts, method, path)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"KALSHI-ACCESS-KEY":       c.KeyID,
		"KALSHI-ACCESS-TIMESTAMP": strconv.FormatInt(ts, 10),
		"KALSHI-ACCESS-SIGNATURE": sig,
	}, nil
}

func (c *Credentials) sign(timestampMs int64, method, path string) (string, error) {
	msg := strconv.FormatInt(timestampMs, 10) + method + path
	digest := sha256.Sum256([]byte(msg))

	sig, err := rsa.SignPSS(rand.Reader, c.PrivateKey, crypto.SHA256, digest[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
