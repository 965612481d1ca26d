// package secretstore stores platform secret bundles in PostgreSQL,
// encrypted at rest with a master key. Plaintext bundles only ever exist in
// memory for the duration of a single broker request.
package secretstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/chacha20poly1305"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/domain"
)

// SecretRepository implements the SecretRepository interface with PostgreSQL
type SecretRepository struct {
	db     *sqlx.DB
	key    []byte
	logger primary.Logger
}

// NewSecretRepository creates a secret repository. masterKey is the
// base64-encoded 32-byte at-rest encryption key.
func NewSecretRepository(db *sqlx.DB, masterKey string, logger primary.Logger) (*SecretRepository, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secrets master key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("secrets master key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	return &SecretRepository{
		db:     db,
		key:    key,
		logger: logger,
	}, nil
}

func (r *SecretRepository) seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(r.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func (r *SecretRepository) open(ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(r.key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, sealed, aad)
}

// Get returns the stored secret bundle for (service, project), nil when the
// platform has never been connected for the project
func (r *SecretRepository) Get(ctx context.Context, service, projectID string) (domain.SecretBundle, error) {
	var ciphertext []byte
	err := r.db.QueryRowContext(
		ctx,
		"SELECT ciphertext FROM platform_secrets WHERE service = $1 AND project_id = $2",
		service, projectID,
	).Scan(&ciphertext)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get platform secret", "service", service, "projectId", projectID, "error", err)
		return nil, fmt.Errorf("failed to get platform secret: %w", err)
	}

	plaintext, err := r.open(ciphertext, aad(service, projectID))
	if err != nil {
		r.logger.Error("Failed to decrypt platform secret", "service", service, "projectId", projectID, "error", err)
		return nil, fmt.Errorf("failed to decrypt platform secret: %w", err)
	}

	var bundle domain.SecretBundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret bundle: %w", err)
	}

	return bundle, nil
}

// Put stores a secret bundle, encrypted at rest
func (r *SecretRepository) Put(ctx context.Context, service, projectID string, bundle domain.SecretBundle) error {
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to marshal secret bundle: %w", err)
	}

	ciphertext, err := r.seal(plaintext, aad(service, projectID))
	if err != nil {
		r.logger.Error("Failed to encrypt platform secret", "service", service, "projectId", projectID, "error", err)
		return fmt.Errorf("failed to encrypt platform secret: %w", err)
	}

	query := `
		INSERT INTO platform_secrets (service, project_id, ciphertext, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (service, project_id) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, service, projectID, ciphertext, time.Now()); err != nil {
		r.logger.Error("Failed to store platform secret", "service", service, "projectId", projectID, "error", err)
		return fmt.Errorf("failed to store platform secret: %w", err)
	}

	return nil
}

// aad binds the ciphertext to its row so an encrypted bundle cannot be
// copied onto another (service, project) pair.
func aad(service, projectID string) []byte {
	return []byte(service + "|" + projectID)
}
