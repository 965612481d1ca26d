package handlers

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithCert(t *testing.T, cn, target string) *http.Request {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	req.TLS = &tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{
			{Subject: pkix.Name{CommonName: cn}},
		},
	}
	return req
}

func TestIdentityMiddlewareRejectsMissingCert(t *testing.T) {
	handler := New().IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a certificate")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/workers/register", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityMiddlewareExposesIdentity(t *testing.T) {
	var got *Identity
	handler := New().IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithCert(t, "worker-1", "/api/workers/register"))

	require.NotNil(t, got)
	assert.Equal(t, "worker-1", got.WorkerID)
}

func TestRequireOwnWorkerID(t *testing.T) {
	router := mux.NewRouter()
	router.Use(New().IdentityMiddleware)
	called := false
	router.HandleFunc("/api/jobs/next/{workerId}", RequireOwnWorkerID(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	// Matching CN passes through
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestWithCert(t, "worker-1", "/api/jobs/next/worker-1"))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A certificate for another worker is refused
	called = false
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestWithCert(t, "worker-2", "/api/jobs/next/worker-1"))
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
