package broker

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"gitlab.com/vidfleet.net/internal/adapter/crypto"
	"gitlab.com/vidfleet.net/internal/config"
	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/core/ports/secondary"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/metrics"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

var _ IBrokerService = (*BrokerService)(nil)

// BrokerService implements credential brokering. Plaintext secret bundles
// exist only inside IssueCredential between the store read and the seal;
// they are never logged and never leave the process unencrypted.
type BrokerService struct {
	secretRepo secondary.SecretRepository
	sealer     primary.CredentialSealer
	cfg        *config.BrokerConfig
	logger     primary.Logger
	now        func() time.Time
}

// NewBrokerService creates a new broker service
func NewBrokerService(
	secretRepo secondary.SecretRepository,
	sealer primary.CredentialSealer,
	cfg *config.BrokerConfig,
	logger primary.Logger,
) *BrokerService {
	return &BrokerService{
		secretRepo: secretRepo,
		sealer:     sealer,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// IssueCredential implements IBrokerService
func (s *BrokerService) IssueCredential(ctx context.Context, workerCert *x509.Certificate, platform, projectID string) ([]byte, error) {
	workerID := workerCert.Subject.CommonName

	bundle, err := s.secretRepo.Get(ctx, platform, projectID)
	if err != nil {
		s.logger.Error("Failed to read platform secrets",
			"workerId", workerID, "platform", platform, "projectId", projectID, "error", err)
		return nil, fmt.Errorf("failed to read platform secrets: %w", err)
	}
	if bundle == nil {
		metrics.CredentialsDenied.Inc()
		s.logger.Warn("Credential request for unconnected platform",
			"workerId", workerID, "platform", platform, "projectId", projectID)
		return nil, errs.PlatformNotConnected
	}

	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.cfg.CredentialLifetime)

	claims := domain.AssertionClaims{
		Subject:    workerID,
		Issuer:     s.cfg.Issuer,
		IssuedAt:   issuedAt.Unix(),
		ExpiresAt:  expiresAt.Unix(),
		Thumbprint: crypto.CertThumbprint(workerCert),
	}
	assertion, err := s.sealer.SignAssertion(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign assertion: %w", err)
	}

	envelope := &domain.CredentialEnvelope{
		Assertion: assertion,
		Platform:  platform,
		ProjectID: projectID,
		Secrets:   bundle,
		ExpiresAt: expiresAt,
	}
	sealed, err := s.sealer.Seal(ctx, envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to seal credential envelope: %w", err)
	}

	metrics.CredentialsIssued.WithLabelValues(platform).Inc()
	s.logger.Info("Issued platform credential",
		"workerId", workerID, "platform", platform, "projectId", projectID, "expiresAt", expiresAt)
	return sealed, nil
}
