package workeragent

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"gitlab.com/vidfleet.net/internal/adapter/crypto"
	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/domain"
)

// Agent is the worker-side daemon: it registers with the coordinator,
// heartbeats host health, polls for jobs and runs them through the
// configured platform adapters.
type Agent struct {
	cfg      *Config
	client   *CoordinatorClient
	adapters map[string]PlatformAdapter
	logger   primary.Logger

	decryptKey *rsa.PrivateKey
	verifyKey  *ecdsa.PublicKey
	thumbprint string

	mu   sync.Mutex
	load int
}

// NewAgent wires the agent from its config. The RSA decryption key opens
// sealed credentials; the broker verify key and own-certificate thumbprint
// let the agent check the assertion is really bound to its TLS identity.
func NewAgent(cfg *Config, client *CoordinatorClient, adapters map[string]PlatformAdapter, logger primary.Logger) (*Agent, error) {
	encPEM, err := os.ReadFile(cfg.EncKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read encryption key: %w", err)
	}
	decryptKey, err := jwt.ParseRSAPrivateKeyFromPEM(encPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse encryption key: %w", err)
	}

	thumbprint, err := certThumbprintFromFile(cfg.CertFile)
	if err != nil {
		return nil, err
	}

	agent := &Agent{
		cfg:        cfg,
		client:     client,
		adapters:   adapters,
		logger:     logger,
		decryptKey: decryptKey,
		thumbprint: thumbprint,
	}

	if cfg.BrokerVerifyKeyFile != "" {
		verifyPEM, err := os.ReadFile(cfg.BrokerVerifyKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read broker verify key: %w", err)
		}
		agent.verifyKey, err = jwt.ParseECPublicKeyFromPEM(verifyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse broker verify key: %w", err)
		}
	}

	return agent, nil
}

func certThumbprintFromFile(certFile string) (string, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return "", fmt.Errorf("failed to read certificate: %w", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("no PEM block in %s", certFile)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}
	return crypto.CertThumbprint(cert), nil
}

// Run registers and drives the heartbeat and poll loops until ctx ends
func (a *Agent) Run(ctx context.Context) error {
	if err := os.MkdirAll(a.cfg.WorkDir, 0o700); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	if err := a.register(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.heartbeatLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.pollLoop(ctx)
	}()
	wg.Wait()
	return nil
}

func (a *Agent) register(ctx context.Context) error {
	capabilities := domain.Capabilities{
		Kind:      domain.CapabilityKind(a.cfg.Kind),
		Platforms: a.cfg.Platforms,
	}
	if err := a.client.Register(ctx, a.cfg.WorkerName, capabilities, a.cfg.MaxConcurrent); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	a.logger.Info("Registered with coordinator", "workerId", a.cfg.WorkerID, "kind", a.cfg.Kind)
	return nil
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(a.cfg.HeartbeatSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendHeartbeat(ctx)
		}
	}
}

func (a *Agent) sendHeartbeat(ctx context.Context) {
	cpuPct := 0.0
	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		cpuPct = percentages[0]
	}
	memPct := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memPct = vm.UsedPercent
	}

	if err := a.client.Heartbeat(ctx, a.currentLoad(), cpuPct, memPct); err != nil {
		if _, lost := err.(*StateError); lost {
			a.logger.Warn("Coordinator lost our registration, re-registering")
			if err := a.register(ctx); err != nil {
				a.logger.Error("Re-registration failed", "error", err)
			}
			return
		}
		a.logger.Error("Heartbeat failed", "error", err)
	}
}

func (a *Agent) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(a.cfg.PollSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.currentLoad() >= a.cfg.MaxConcurrent {
				continue
			}
			job, err := a.client.NextJob(ctx)
			if err != nil {
				if _, lost := err.(*StateError); lost {
					if err := a.register(ctx); err != nil {
						a.logger.Error("Re-registration failed", "error", err)
					}
					continue
				}
				a.logger.Error("Failed to poll for job", "error", err)
				continue
			}
			if job == nil {
				continue
			}

			a.adjustLoad(1)
			go func(job *domain.Job) {
				defer a.adjustLoad(-1)
				a.executeJob(ctx, job)
			}(job)
		}
	}
}

func (a *Agent) executeJob(ctx context.Context, job *domain.Job) {
	a.logger.Info("Executing job", "jobId", job.ID, "kind", job.Kind(), "platform", job.Platform)

	result, err := a.runJob(ctx, job)
	if err != nil {
		a.logger.Error("Job failed", "jobId", job.ID, "error", err)
		message := err.Error()
		if reportErr := a.client.ReportStatus(ctx, job.ID.String(), domain.JobStatusFailed, &message, nil); reportErr != nil {
			a.logger.Error("Failed to report job failure", "jobId", job.ID, "error", reportErr)
		}
		return
	}

	if err := a.client.ReportStatus(ctx, job.ID.String(), domain.JobStatusCompleted, nil, result); err != nil {
		a.logger.Error("Failed to report job completion", "jobId", job.ID, "error", err)
	}
}

func (a *Agent) runJob(ctx context.Context, job *domain.Job) (*domain.JobResultData, error) {
	adapter, ok := a.adapters[job.Platform]
	if !ok {
		return nil, fmt.Errorf("no adapter for platform %s", job.Platform)
	}

	creds, err := a.fetchCredential(ctx, job.Platform, job.ProjectID())
	if err != nil {
		return nil, err
	}

	switch job.Kind() {
	case domain.CapabilityUpload:
		if job.VideoID == nil {
			return nil, fmt.Errorf("upload job carries no video")
		}
		localPath := filepath.Join(a.cfg.WorkDir, *job.VideoID)
		if err := a.client.DownloadVideo(ctx, *job.VideoID, localPath); err != nil {
			return nil, fmt.Errorf("failed to download video: %w", err)
		}
		defer os.Remove(localPath)

		platformVideoID, publishedURL, err := adapter.Publish(ctx, creds, localPath, job)
		if err != nil {
			return nil, err
		}
		return &domain.JobResultData{PlatformVideoID: platformVideoID, PublishedURL: publishedURL}, nil

	case domain.CapabilityAnalytics:
		analytics, err := adapter.FetchAnalytics(ctx, creds, job)
		if err != nil {
			return nil, err
		}
		return &domain.JobResultData{Analytics: analytics}, nil

	case domain.CapabilityComments:
		comments, err := adapter.FetchComments(ctx, creds, job)
		if err != nil {
			return nil, err
		}
		return &domain.JobResultData{Comments: comments}, nil

	default:
		return nil, fmt.Errorf("unknown job kind %s", job.Kind())
	}
}

// fetchCredential pulls a sealed credential, opens it with the agent's
// private key and checks the assertion is bound to our own certificate.
func (a *Agent) fetchCredential(ctx context.Context, platform, projectID string) (*domain.CredentialEnvelope, error) {
	sealed, err := a.client.FetchCredential(ctx, platform, projectID)
	if err != nil {
		return nil, err
	}

	envelope, err := crypto.OpenSealedCredential(sealed, a.decryptKey)
	if err != nil {
		return nil, err
	}

	if a.verifyKey != nil {
		sealer := crypto.NewCredentialSealerFromKeys(nil, a.verifyKey, nil)
		claims, err := sealer.VerifyAssertion(ctx, envelope.Assertion)
		if err != nil {
			return nil, fmt.Errorf("assertion verification failed: %w", err)
		}
		if claims.Thumbprint != a.thumbprint {
			return nil, fmt.Errorf("assertion bound to a different certificate")
		}
	}

	return envelope, nil
}

func (a *Agent) currentLoad() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load
}

func (a *Agent) adjustLoad(delta int) {
	a.mu.Lock()
	a.load += delta
	if a.load < 0 {
		a.load = 0
	}
	a.mu.Unlock()
}
