package primary

import (
	"context"

	"gitlab.com/vidfleet.net/internal/domain"
)

// CredentialSealer signs broker assertions and seals credential envelopes to
// a worker's public encryption key.
type CredentialSealer interface {
	// SignAssertion produces a compact signed token from the claims
	SignAssertion(ctx context.Context, claims domain.AssertionClaims) (string, error)

	// VerifyAssertion parses and verifies a signed assertion
	VerifyAssertion(ctx context.Context, token string) (*domain.AssertionClaims, error)

	// Seal hybrid-encrypts the envelope to the worker's public key
	Seal(ctx context.Context, envelope *domain.CredentialEnvelope) ([]byte, error)
}
