// certgen provisions the worker fleet's certificate material: the root CA,
// the coordinator's server certificate and per-worker client certificates
// whose Common Name is the worker ID.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/vidfleet.net/internal/mtls"
)

func main() {
	outDir := flag.String("out", "certs", "output directory for generated material")
	org := flag.String("org", "vidfleet", "organization name for the CA subject")
	serverCN := flag.String("server-cn", "coordinator", "common name for the server certificate")
	serverHosts := flag.String("server-hosts", "localhost,127.0.0.1", "comma-separated hostnames and IPs for the server certificate")
	workers := flag.String("workers", "", "comma-separated worker IDs to issue client certificates for")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	authority, err := mtls.NewAuthority(*org)
	if err != nil {
		log.Fatalf("Failed to create CA: %v", err)
	}
	mustWriteCert(filepath.Join(*outDir, "ca.pem"), authority)
	if err := mtls.WriteKeyPEM(filepath.Join(*outDir, "ca.key"), authority.Key); err != nil {
		log.Fatalf("Failed to write CA key: %v", err)
	}
	log.Printf("Wrote CA to %s", *outDir)

	hosts := strings.Split(*serverHosts, ",")
	serverCert, serverKey, err := authority.IssueServerCert(*serverCN, hosts)
	if err != nil {
		log.Fatalf("Failed to issue server certificate: %v", err)
	}
	if err := mtls.WriteCertPEM(filepath.Join(*outDir, "server.pem"), serverCert); err != nil {
		log.Fatalf("Failed to write server certificate: %v", err)
	}
	if err := mtls.WriteKeyPEM(filepath.Join(*outDir, "server.key"), serverKey); err != nil {
		log.Fatalf("Failed to write server key: %v", err)
	}
	log.Printf("Wrote server certificate for %s", *serverCN)

	if *workers == "" {
		return
	}
	for _, workerID := range strings.Split(*workers, ",") {
		workerID = strings.TrimSpace(workerID)
		if workerID == "" {
			continue
		}
		cert, key, err := authority.IssueWorkerCert(workerID)
		if err != nil {
			log.Fatalf("Failed to issue certificate for %s: %v", workerID, err)
		}
		if err := mtls.WriteCertPEM(filepath.Join(*outDir, workerID+".pem"), cert); err != nil {
			log.Fatalf("Failed to write certificate for %s: %v", workerID, err)
		}
		if err := mtls.WriteKeyPEM(filepath.Join(*outDir, workerID+".key"), key); err != nil {
			log.Fatalf("Failed to write key for %s: %v", workerID, err)
		}
		log.Printf("Wrote client certificate for %s", workerID)
	}
}

func mustWriteCert(path string, authority *mtls.Authority) {
	if err := mtls.WriteCertPEM(path, authority.Cert); err != nil {
		log.Fatalf("Failed to write CA certificate: %v", err)
	}
}
