package broker

import (
	"context"
	"crypto/x509"
)

// IBrokerService hands short-lived, certificate-bound platform credentials to
// authenticated workers
type IBrokerService interface {
	// IssueCredential builds a sealed credential envelope for the calling
	// worker. The worker is identified by its verified client certificate;
	// the returned bytes are the sealed envelope, decryptable only with the
	// worker's private encryption key. Returns errs.PlatformNotConnected
	// when no secrets are stored for (platform, projectID).
	IssueCredential(ctx context.Context, workerCert *x509.Certificate, platform, projectID string) ([]byte, error)
}
