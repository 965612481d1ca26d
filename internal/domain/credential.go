package domain

import "time"

// AssertionClaims is the signed assertion the credential broker issues
// alongside a platform secret bundle. The cnf.x5t#S256 member binds the
// assertion to the SHA-256 thumbprint of the requesting worker's client
// certificate, so a stolen token is useless from a different TLS identity.
type AssertionClaims struct {
	Subject    string `json:"sub"`
	Issuer     string `json:"iss"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
	Thumbprint string `json:"x5t#S256"`
}

// SecretBundle is a stored platform secret: opaque key/value material the
// platform adapter needs to call the external API. Never logged, never
// written to disk in plaintext.
type SecretBundle map[string]string

// CredentialEnvelope is the decrypted shape a worker receives from the
// platform-token endpoint: the signed assertion plus the secret bundle.
type CredentialEnvelope struct {
	Assertion string       `json:"assertion"`
	Platform  string       `json:"platform"`
	ProjectID string       `json:"project_id"`
	Secrets   SecretBundle `json:"secrets"`
	ExpiresAt time.Time    `json:"expires_at"`
}
