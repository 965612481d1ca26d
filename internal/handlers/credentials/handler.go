package credentials

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/core/services/broker"
	"gitlab.com/vidfleet.net/internal/handlers"
	"gitlab.com/vidfleet.net/internal/static/errs"
)

// ApiHandler serves sealed platform credentials to authenticated workers
type ApiHandler struct {
	brokerService broker.IBrokerService
	logger        primary.Logger
}

func NewHandler(brokerService broker.IBrokerService, logger primary.Logger) *ApiHandler {
	return &ApiHandler{
		brokerService: brokerService,
		logger:        logger,
	}
}

func (api *ApiHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/platform-token/{platform}/{projectId}", api.IssueCredential).Methods("POST")
}

// IssueCredential returns the sealed envelope as an opaque octet stream.
// The body is ciphertext only; plaintext never crosses this handler.
func (api *ApiHandler) IssueCredential(w http.ResponseWriter, r *http.Request) {
	identity := handlers.IdentityFrom(r.Context())
	if identity == nil {
		handlers.ResponseError(w, "Client certificate required", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	platform := vars["platform"]
	projectID := vars["projectId"]

	sealed, err := api.brokerService.IssueCredential(r.Context(), identity.Cert, platform, projectID)
	if err != nil {
		if errors.Is(err, errs.PlatformNotConnected) {
			handlers.ResponseError(w, "Platform not connected for project", http.StatusUnauthorized)
			return
		}
		api.logger.Error("Failed to issue credential",
			"workerId", identity.WorkerID, "platform", platform, "projectId", projectID, "error", err)
		handlers.ResponseError(w, "Failed to issue credential", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sealed)
}
