package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"gitlab.com/vidfleet.net/internal/config"
	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/domain"
)

var _ primary.CredentialSealer = (*CredentialSealer)(nil)

var (
	ErrInvalidToken = fmt.Errorf("invalid token")
)

// CredentialSealer signs broker assertions with an ECDSA P-256 key and seals
// credential envelopes to the worker fleet's RSA public encryption key using
// RSA-OAEP key wrapping with AES-256-GCM content encryption.
type CredentialSealer struct {
	signingKey *ecdsa.PrivateKey
	verifyKey  *ecdsa.PublicKey
	encryptKey *rsa.PublicKey
}

// SealedCredential is the wire shape of an encrypted credential envelope.
type SealedCredential struct {
	EncryptedKey string `json:"encrypted_key"`
	Nonce        string `json:"nonce"`
	Ciphertext   string `json:"ciphertext"`
}

// NewCredentialSealer loads the broker key material from the configured PEM
// files.
func NewCredentialSealer(cfg *config.BrokerConfig) (*CredentialSealer, error) {
	signingPEM, err := os.ReadFile(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	signingKey, err := jwt.ParseECPrivateKeyFromPEM(signingPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	encPEM, err := os.ReadFile(cfg.WorkerEncPubFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read worker encryption key: %w", err)
	}
	encryptKey, err := jwt.ParseRSAPublicKeyFromPEM(encPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse worker encryption key: %w", err)
	}

	return &CredentialSealer{
		signingKey: signingKey,
		verifyKey:  &signingKey.PublicKey,
		encryptKey: encryptKey,
	}, nil
}

// NewCredentialSealerFromKeys builds a sealer from in-memory keys. Used by
// tests and by the worker agent's verification path.
func NewCredentialSealerFromKeys(signingKey *ecdsa.PrivateKey, verifyKey *ecdsa.PublicKey, encryptKey *rsa.PublicKey) *CredentialSealer {
	return &CredentialSealer{
		signingKey: signingKey,
		verifyKey:  verifyKey,
		encryptKey: encryptKey,
	}
}

// SignAssertion produces a compact ES256 token from the claims. The
// cnf.x5t#S256 member carries the certificate thumbprint binding.
func (c *CredentialSealer) SignAssertion(ctx context.Context, claims domain.AssertionClaims) (string, error) {
	if c.signingKey == nil {
		return "", fmt.Errorf("no signing key configured")
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"sub": claims.Subject,
		"iss": claims.Issuer,
		"iat": claims.IssuedAt,
		"exp": claims.ExpiresAt,
		"cnf": map[string]interface{}{
			"x5t#S256": claims.Thumbprint,
		},
	})
	return tok.SignedString(c.signingKey)
}

// VerifyAssertion parses and verifies a signed assertion, returning its
// claims including the bound thumbprint.
func (c *CredentialSealer) VerifyAssertion(ctx context.Context, token string) (*domain.AssertionClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.verifyKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := domain.AssertionClaims{}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	if iss, ok := mapClaims["iss"].(string); ok {
		claims.Issuer = iss
	}
	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.IssuedAt = int64(iat)
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}
	if cnf, ok := mapClaims["cnf"].(map[string]interface{}); ok {
		if tp, ok := cnf["x5t#S256"].(string); ok {
			claims.Thumbprint = tp
		}
	}

	if claims.Thumbprint == "" {
		return nil, fmt.Errorf("%w: assertion carries no certificate binding", ErrInvalidToken)
	}

	return &claims, nil
}

// Seal hybrid-encrypts the envelope to the worker's public key: a fresh
// AES-256 content key sealed with RSA-OAEP, the JSON envelope with AES-GCM.
func (c *CredentialSealer) Seal(ctx context.Context, envelope *domain.CredentialEnvelope) ([]byte, error) {
	if c.encryptKey == nil {
		return nil, fmt.Errorf("no encryption key configured")
	}

	plaintext, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential envelope: %w", err)
	}

	contentKey := make([]byte, 32)
	if _, err := rand.Read(contentKey); err != nil {
		return nil, fmt.Errorf("failed to generate content key: %w", err)
	}

	encryptedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, c.encryptKey, contentKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap content key: %w", err)
	}

	block, err := aes.NewCipher(contentKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := SealedCredential{
		EncryptedKey: base64.StdEncoding.EncodeToString(encryptedKey),
		Nonce:        base64.StdEncoding.EncodeToString(nonce),
		Ciphertext:   base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	}

	return json.Marshal(sealed)
}

// OpenSealedCredential decrypts a sealed credential with the worker's RSA
// private key. The worker-side counterpart of Seal.
func OpenSealedCredential(data []byte, decryptKey *rsa.PrivateKey) (*domain.CredentialEnvelope, error) {
	var sealed SealedCredential
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sealed credential: %w", err)
	}

	encryptedKey, err := base64.StdEncoding.DecodeString(sealed.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted key: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	contentKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, decryptKey, encryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap content key: %w", err)
	}

	block, err := aes.NewCipher(contentKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential envelope: %w", err)
	}

	var envelope domain.CredentialEnvelope
	if err := json.Unmarshal(plaintext, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential envelope: %w", err)
	}

	return &envelope, nil
}

// CertThumbprint computes the base64url SHA-256 thumbprint of a DER
// certificate, the x5t#S256 form.
func CertThumbprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
