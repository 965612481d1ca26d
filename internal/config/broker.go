package config

import "time"

// BrokerConfig carries the credential broker key material locations and the
// issued-token validity window (capped at one hour).
type BrokerConfig struct {
	Issuer             string
	SigningKeyFile     string
	WorkerEncPubFile   string
	SecretsMasterKey   string
	CredentialLifetime time.Duration
}

func NewBrokerConfig() *BrokerConfig {
	lifetime := durationEnv("CREDENTIAL_LIFETIME_SEC", time.Hour)
	if lifetime > time.Hour {
		lifetime = time.Hour
	}
	return &BrokerConfig{
		Issuer:             getEnv("BROKER_ISSUER", "vidfleet-coordinator"),
		SigningKeyFile:     getEnv("BROKER_SIGNING_KEY", "certs/broker-signing.key"),
		WorkerEncPubFile:   getEnv("BROKER_WORKER_ENC_PUB", "certs/worker-enc.pub"),
		SecretsMasterKey:   getEnv("SECRETS_MASTER_KEY", ""),
		CredentialLifetime: lifetime,
	}
}
