package broker

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vidfleet.net/internal/adapter/crypto"
	"gitlab.com/vidfleet.net/internal/config"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Warn(msg string, args ...interface{})  {}

type fakeSecretRepo struct {
	bundles map[string]domain.SecretBundle
}

func (f *fakeSecretRepo) Get(ctx context.Context, service, projectID string) (domain.SecretBundle, error) {
	return f.bundles[service+"|"+projectID], nil
}

func (f *fakeSecretRepo) Put(ctx context.Context, service, projectID string, bundle domain.SecretBundle) error {
	if f.bundles == nil {
		f.bundles = make(map[string]domain.SecretBundle)
	}
	f.bundles[service+"|"+projectID] = bundle
	return nil
}

func workerCert(t *testing.T, cn string) *x509.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func newTestBroker(t *testing.T, secrets *fakeSecretRepo) (*BrokerService, *ecdsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	signingKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	encKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	sealer := crypto.NewCredentialSealerFromKeys(signingKey, &signingKey.PublicKey, &encKey.PublicKey)
	cfg := &config.BrokerConfig{
		Issuer:             "coordinator-test",
		CredentialLifetime: 30 * time.Minute,
	}
	return NewBrokerService(secrets, sealer, cfg, nopLogger{}), signingKey, encKey
}

func TestIssueCredentialNotConnected(t *testing.T) {
	svc, _, _ := newTestBroker(t, &fakeSecretRepo{})

	_, err := svc.IssueCredential(context.Background(), workerCert(t, "w1"), "youtube", "proj-1")
	assert.ErrorIs(t, err, errs.PlatformNotConnected)
}

func TestIssueCredentialSealedAndBound(t *testing.T) {
	secrets := &fakeSecretRepo{}
	require.NoError(t, secrets.Put(context.Background(), "youtube", "proj-1", domain.SecretBundle{
		"api_key": "super-secret",
	}))
	svc, signingKey, encKey := newTestBroker(t, secrets)

	cert := workerCert(t, "w1")
	sealed, err := svc.IssueCredential(context.Background(), cert, "youtube", "proj-1")
	require.NoError(t, err)

	// The wire bytes never carry the plaintext secret
	assert.NotContains(t, string(sealed), "super-secret")

	envelope, err := crypto.OpenSealedCredential(sealed, encKey)
	require.NoError(t, err)
	assert.Equal(t, "youtube", envelope.Platform)
	assert.Equal(t, "proj-1", envelope.ProjectID)
	assert.Equal(t, "super-secret", envelope.Secrets["api_key"])
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), envelope.ExpiresAt, 5*time.Second)

	verifier := crypto.NewCredentialSealerFromKeys(nil, &signingKey.PublicKey, nil)
	claims, err := verifier.VerifyAssertion(context.Background(), envelope.Assertion)
	require.NoError(t, err)
	assert.Equal(t, "w1", claims.Subject)
	assert.Equal(t, "coordinator-test", claims.Issuer)
	assert.Equal(t, envelope.ExpiresAt.Unix(), claims.ExpiresAt)
	assert.Equal(t, claims.ExpiresAt-int64((30*time.Minute).Seconds()), claims.IssuedAt)
	assert.Equal(t, crypto.CertThumbprint(cert), claims.Thumbprint)

	// The assertion is bound to the requesting certificate, not whoever
	// holds the token
	otherCert := workerCert(t, "w2")
	assert.NotEqual(t, crypto.CertThumbprint(otherCert), claims.Thumbprint)
}
