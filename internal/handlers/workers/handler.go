package workers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/core/services/registry"
	"gitlab.com/vidfleet.net/internal/domain"
	"gitlab.com/vidfleet.net/internal/handlers"
	"gitlab.com/vidfleet.net/internal/metrics"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

// ApiHandler handles worker registry API requests
type ApiHandler struct {
	registryService registry.IRegistryService
	logger          primary.Logger
}

func NewHandler(registryService registry.IRegistryService, logger primary.Logger) *ApiHandler {
	return &ApiHandler{
		registryService: registryService,
		logger:          logger,
	}
}

func (api *ApiHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/workers/register", api.RegisterWorker).Methods("POST")
	r.HandleFunc("/api/workers/heartbeat", api.Heartbeat).Methods("POST")
	r.HandleFunc("/api/workers/{workerId}", handlers.RequireOwnWorkerID(api.Unregister)).Methods("DELETE")
	r.HandleFunc("/api/workers", api.GetWorkers).Methods("GET")
}

// RegisterWorkerRequest represents a request to register a worker
type RegisterWorkerRequest struct {
	Name               string              `json:"name"`
	Hostname           string              `json:"hostname"`
	Capabilities       domain.Capabilities `json:"capabilities"`
	MaxConcurrentTasks int                 `json:"max_concurrent_tasks"`
	Metadata           map[string]string   `json:"metadata,omitempty"`
}

// RegisterWorker handles worker registration. The worker's ID is its
// certificate CN, never a field of the request body.
func (api *ApiHandler) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	identity := handlers.IdentityFrom(r.Context())
	if identity == nil {
		handlers.ResponseError(w, "Client certificate required", http.StatusUnauthorized)
		return
	}

	var req RegisterWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.logger.Error("Failed to decode register request", "error", err)
		handlers.ResponseError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.MaxConcurrentTasks <= 0 {
		handlers.ResponseError(w, "max_concurrent_tasks must be positive", http.StatusBadRequest)
		return
	}

	worker, err := api.registryService.Register(r.Context(), registry.RegisterRequest{
		WorkerID:           identity.WorkerID,
		Name:               req.Name,
		Hostname:           req.Hostname,
		IPAddress:          remoteIP(r),
		Capabilities:       req.Capabilities,
		MaxConcurrentTasks: req.MaxConcurrentTasks,
		Metadata:           req.Metadata,
	})
	if err != nil {
		api.logger.Error("Failed to register worker", "workerId", identity.WorkerID, "error", err)
		handlers.ResponseError(w, "Failed to register worker", http.StatusInternalServerError)
		return
	}

	handlers.ResponseWithJson(w, http.StatusCreated, worker)
}

// HeartbeatRequest represents a worker heartbeat
type HeartbeatRequest struct {
	CurrentLoad int               `json:"current_load"`
	CPUUsage    float64           `json:"cpu_usage"`
	MemoryUsage float64           `json:"memory_usage"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Heartbeat handles worker heartbeat requests. Identity comes from the
// certificate so a worker can only report on itself.
func (api *ApiHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	identity := handlers.IdentityFrom(r.Context())
	if identity == nil {
		handlers.ResponseError(w, "Client certificate required", http.StatusUnauthorized)
		return
	}

	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.logger.Error("Failed to decode heartbeat", "error", err)
		handlers.ResponseError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	worker, err := api.registryService.Heartbeat(r.Context(), identity.WorkerID, req.CurrentLoad, req.CPUUsage, req.MemoryUsage, req.Metadata)
	if err != nil {
		if errors.Is(err, errs.WorkerNotFound) {
			handlers.ResponseError(w, "Worker not registered", http.StatusNotFound)
			return
		}
		api.logger.Error("Failed to process heartbeat", "workerId", identity.WorkerID, "error", err)
		handlers.ResponseError(w, "Failed to process heartbeat", http.StatusInternalServerError)
		return
	}

	metrics.Heartbeats.Inc()
	handlers.ResponseWithJson(w, http.StatusOK, worker)
}

// Unregister removes a worker from the registry
func (api *ApiHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	workerID := mux.Vars(r)["workerId"]

	if err := api.registryService.Unregister(r.Context(), workerID); err != nil {
		api.logger.Error("Failed to unregister worker", "workerId", workerID, "error", err)
		handlers.ResponseError(w, "Failed to unregister worker", http.StatusInternalServerError)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, map[string]string{"worker_id": workerID})
}

// GetWorkers lists registered workers, optionally only online ones
func (api *ApiHandler) GetWorkers(w http.ResponseWriter, r *http.Request) {
	var workers []*domain.WorkerInfo
	var err error

	if r.URL.Query().Get("status") == string(domain.WorkerStatusOnline) {
		workers, err = api.registryService.ListOnline(r.Context())
	} else {
		workers, err = api.registryService.ListAll(r.Context())
	}
	if err != nil {
		api.logger.Error("Failed to get workers", "error", err)
		handlers.ResponseError(w, "Failed to get workers", http.StatusInternalServerError)
		return
	}

	online := 0
	for _, worker := range workers {
		if worker.Status == domain.WorkerStatusOnline {
			online++
		}
	}
	metrics.WorkersOnline.Set(float64(online))

	handlers.ResponseWithJson(w, http.StatusOK, map[string][]*domain.WorkerInfo{"workers": workers})
}

func remoteIP(r *http.Request) string {
	host := r.RemoteAddr
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
