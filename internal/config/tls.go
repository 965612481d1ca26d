package config

// TLSConfig locates the coordinator's server certificate and the private CA
// that signs worker client certificates. Provisioning of the files is an
// out-of-band concern (see cmd/certgen).
type TLSConfig struct {
	ServerCertFile string
	ServerKeyFile  string
	WorkerCAFile   string
}

func NewTLSConfig() *TLSConfig {
	return &TLSConfig{
		ServerCertFile: getEnv("TLS_SERVER_CERT", "certs/server.crt"),
		ServerKeyFile:  getEnv("TLS_SERVER_KEY", "certs/server.key"),
		WorkerCAFile:   getEnv("TLS_WORKER_CA", "certs/worker-ca.crt"),
	}
}
