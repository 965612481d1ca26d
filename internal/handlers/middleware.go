package handlers

import (
	"context"
	"crypto/x509"
	"net/http"

	"github.com/gorilla/mux"
)

type contextKey string

const identityKey contextKey = "workerIdentity"

// MiddlewareProvider attaches the verified client certificate identity to
// the request context. The TLS layer has already rejected unverified
// certificates; the middleware only surfaces who the caller is.
type MiddlewareProvider struct{}

func New() *MiddlewareProvider {
	return &MiddlewareProvider{}
}

// Identity carries the caller's verified certificate
type Identity struct {
	WorkerID string
	Cert     *x509.Certificate
}

// IdentityMiddleware extracts the leaf client certificate into the context
func (m *MiddlewareProvider) IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			ResponseError(w, "Client certificate required", http.StatusUnauthorized)
			return
		}

		cert := r.TLS.PeerCertificates[0]
		identity := &Identity{
			WorkerID: cert.Subject.CommonName,
			Cert:     cert,
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFrom returns the caller identity set by IdentityMiddleware
func IdentityFrom(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey).(*Identity)
	return identity
}

// RequireOwnWorkerID guards routes with a {workerId} path variable: the
// caller's certificate CN must match the ID it is acting on.
func RequireOwnWorkerID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFrom(r.Context())
		if identity == nil {
			ResponseError(w, "Client certificate required", http.StatusUnauthorized)
			return
		}
		if workerID := mux.Vars(r)["workerId"]; workerID != identity.WorkerID {
			ResponseError(w, "Certificate identity does not match worker", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
