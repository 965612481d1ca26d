package http

// this is the entry point of the http request handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/vidfleet.net/internal/config"
	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/core/ports/secondary"
	"gitlab.com/vidfleet.net/internal/core/services/broker"
	"gitlab.com/vidfleet.net/internal/core/services/jobstore"
	"gitlab.com/vidfleet.net/internal/core/services/registry"
	"gitlab.com/vidfleet.net/internal/handlers"
	"gitlab.com/vidfleet.net/internal/handlers/credentials"
	"gitlab.com/vidfleet.net/internal/handlers/jobs"
	"gitlab.com/vidfleet.net/internal/handlers/videos"
	"gitlab.com/vidfleet.net/internal/handlers/workers"
	"gitlab.com/vidfleet.net/internal/mtls"
)

type ServiceProvider struct {
	registryService registry.IRegistryService
	jobStoreService jobstore.IJobStoreService
	brokerService   broker.IBrokerService
	videoRepo       secondary.VideoRepository
}

func NewServiceProvider(
	registryService registry.IRegistryService,
	jobStoreService jobstore.IJobStoreService,
	brokerService broker.IBrokerService,
	videoRepo secondary.VideoRepository,
) *ServiceProvider {
	return &ServiceProvider{
		registryService: registryService,
		jobStoreService: jobStoreService,
		brokerService:   brokerService,
		videoRepo:       videoRepo,
	}
}

// Server is the coordinator's mutually-authenticated API surface. Every
// route except /metrics sits behind client certificate verification.
type Server struct {
	router          *mux.Router
	Port            int
	ServiceName     string
	ServiceProvider *ServiceProvider
	tlsCfg          *config.TLSConfig
	mediaRoot       string
	logger          primary.Logger

	srv *http.Server
}

func NewServer(port int, serviceName string, serviceProvider *ServiceProvider, tlsCfg *config.TLSConfig, mediaRoot string, logger primary.Logger) *Server {
	return &Server{
		Port:            port,
		ServiceName:     serviceName,
		ServiceProvider: serviceProvider,
		tlsCfg:          tlsCfg,
		mediaRoot:       mediaRoot,
		logger:          logger,
	}
}

func (s *Server) Init() error {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())

	api := r.PathPrefix("/").Subrouter()
	api.Use(handlers.New().IdentityMiddleware)

	workers.NewHandler(s.ServiceProvider.registryService, s.logger).Register(api)
	jobs.NewJobHandler(s.ServiceProvider.jobStoreService, s.logger).RegisterRoutes(api)
	credentials.NewHandler(s.ServiceProvider.brokerService, s.logger).Register(api)
	videos.NewHandler(s.ServiceProvider.videoRepo, s.mediaRoot, s.logger).Register(api)

	s.router = r
	return nil
}

func (s *Server) Start(ctx context.Context) error {
	tlsConfig, err := mtls.ServerTLSConfig(s.tlsCfg)
	if err != nil {
		return fmt.Errorf("failed to build server TLS config: %w", err)
	}

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Port),
		Handler:      s.router,
		TLSConfig:    tlsConfig,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		s.logger.Info("Server listening", "addr", s.srv.Addr, "service", s.ServiceName)
		// Cert and key are already inside TLSConfig
		if err := s.srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("Shutting down http server...")
	if s.srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shut down http server", "error", err)
	}
}
