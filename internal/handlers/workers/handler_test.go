package workers

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vidfleet.net/internal/core/services/registry"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/handlers"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Warn(msg string, args ...interface{})  {}

type fakeRegistry struct {
	workers      map[string]*domain.WorkerInfo
	unregistered []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{workers: make(map[string]*domain.WorkerInfo)}
}

func (f *fakeRegistry) Register(ctx context.Context, req registry.RegisterRequest) (*domain.WorkerInfo, error) {
	worker := &domain.WorkerInfo{
		ID:                 req.WorkerID,
		Name:               req.Name,
		Hostname:           req.Hostname,
		IPAddress:          req.IPAddress,
		Capabilities:       req.Capabilities,
		MaxConcurrentTasks: req.MaxConcurrentTasks,
		Status:             domain.WorkerStatusOnline,
		Metadata:           req.Metadata,
	}
	f.workers[req.WorkerID] = worker
	return worker, nil
}

func (f *fakeRegistry) Heartbeat(ctx context.Context, workerID string, load int, cpu, mem float64, metadata map[string]string) (*domain.WorkerInfo, error) {
	return f.workers[workerID], nil
}

func (f *fakeRegistry) ListOnline(ctx context.Context) ([]*domain.WorkerInfo, error) { return nil, nil }
func (f *fakeRegistry) ListAll(ctx context.Context) ([]*domain.WorkerInfo, error)   { return nil, nil }

func (f *fakeRegistry) Unregister(ctx context.Context, workerID string) error {
	delete(f.workers, workerID)
	f.unregistered = append(f.unregistered, workerID)
	return nil
}

func (f *fakeRegistry) GetWorker(ctx context.Context, workerID string) (*domain.WorkerInfo, error) {
	return f.workers[workerID], nil
}

func (f *fakeRegistry) IncrementLoad(ctx context.Context, workerID string) (*domain.WorkerInfo, error) {
	return f.workers[workerID], nil
}

func (f *fakeRegistry) DecrementLoad(ctx context.Context, workerID string) (*domain.WorkerInfo, error) {
	return f.workers[workerID], nil
}

func (f *fakeRegistry) OfflineWorkerIDs(ctx context.Context) ([]string, error) { return nil, nil }

func testRouter(reg *fakeRegistry) *mux.Router {
	router := mux.NewRouter()
	router.Use(handlers.New().IdentityMiddleware)
	NewHandler(reg, nopLogger{}).Register(router)
	return router
}

func requestWithCert(method, cn, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.TLS = &tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{
			{Subject: pkix.Name{CommonName: cn}},
		},
	}
	return req
}

func TestUnregisterRepliesOK(t *testing.T) {
	reg := newFakeRegistry()
	_, err := reg.Register(context.Background(), registry.RegisterRequest{WorkerID: "worker-1"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	testRouter(reg).ServeHTTP(rec, requestWithCert("DELETE", "worker-1", "/api/workers/worker-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"worker-1"}, reg.unregistered)
	assert.JSONEq(t, `{"worker_id": "worker-1"}`, rec.Body.String())
}

func TestUnregisterRefusesOtherWorkersCert(t *testing.T) {
	reg := newFakeRegistry()
	_, err := reg.Register(context.Background(), registry.RegisterRequest{WorkerID: "worker-1"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	testRouter(reg).ServeHTTP(rec, requestWithCert("DELETE", "worker-2", "/api/workers/worker-1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, reg.unregistered)
}
