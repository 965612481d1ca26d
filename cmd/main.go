package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"gitlab.com/vidfleet.net/internal/adapter/crypto"
	"gitlab.com/vidfleet.net/internal/adapter/postgres/jobrepository"
	"gitlab.com/vidfleet.net/internal/adapter/postgres/projectrepository"
	"gitlab.com/vidfleet.net/internal/adapter/postgres/secretstore"
	"gitlab.com/vidfleet.net/internal/adapter/postgres/videorepository"
	"gitlab.com/vidfleet.net/internal/adapter/redis/workerport"
	"gitlab.com/vidfleet.net/internal/config"
	"gitlab.com/vidfleet.net/internal/core/services/broker"
	"gitlab.com/vidfleet.net/internal/core/services/jobstore"
	"gitlab.com/vidfleet.net/internal/core/services/registry"
	"gitlab.com/vidfleet.net/internal/core/services/selector"
	logger2 "gitlab.com/vidfleet.net/internal/global/logger"
	http2 "gitlab.com/vidfleet.net/internal/http"
	"gitlab.com/vidfleet.net/internal/schedulerengine"
)

func main() {
	InitReader()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	logger2.Info("Starting coordinator service")

	logger := logger2.Logger

	sysCfg := config.NewSystemConfig()

	db, err := setupDatabase(sysCfg.PostgresConfig)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     sysCfg.RedisConfig.Url,
		Password: sysCfg.RedisConfig.Password,
		DB:       sysCfg.RedisConfig.DB,
	})
	defer redisClient.Close()

	// SECONDARY PORTS
	workerPort := workerport.NewWorkerRepository(redisClient, logger)
	jobRepo := jobrepository.NewJobRepository(db, logger)
	videoRepo := videorepository.NewVideoRepository(db, logger)
	projectRepo := projectrepository.NewProjectRepository(db, logger)
	secretRepo, err := secretstore.NewSecretRepository(db, sysCfg.BrokerConfig.SecretsMasterKey, logger)
	if err != nil {
		panic(err)
	}

	// PRIMARY PORTS
	sealer, err := crypto.NewCredentialSealer(sysCfg.BrokerConfig)
	if err != nil {
		panic(err)
	}

	// services
	registrySvc := registry.NewRegistryService(workerPort, sysCfg.SchedulerCfg.HeartbeatWindow, logger)
	selectorSvc := selector.NewSelectorService(registrySvc, projectRepo, sysCfg.SchedulerCfg, logger)
	jobStoreSvc := jobstore.NewJobStoreService(jobRepo, registrySvc, videoRepo, videoRepo, logger)
	brokerSvc := broker.NewBrokerService(secretRepo, sealer, sysCfg.BrokerConfig, logger)

	serviceProvider := http2.NewServiceProvider(registrySvc, jobStoreSvc, brokerSvc, videoRepo)

	// server
	port := getIntEnv("SERVER_PORT", 8443)
	mediaRoot := getEnv("MEDIA_ROOT", "/var/lib/vidfleet/media")
	httpServer := http2.NewServer(port, "coordinator", serviceProvider, sysCfg.TLSConfig, mediaRoot, logger)
	if err := httpServer.Init(); err != nil {
		panic(err)
	}

	ctxBg, cancelBg := context.WithCancel(context.Background())
	if err := httpServer.Start(ctxBg); err != nil {
		panic(err)
	}

	engine := schedulerengine.NewSchedulerEngine(
		sysCfg.SchedulerCfg, jobRepo, videoRepo, jobStoreSvc, selectorSvc, registrySvc, logger)
	engine.Start(ctxBg)

	<-quit
	logger.Info("Shutting down server...")

	cancelBg()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Stop(ctx)

	logger.Info("successfully shutdown server")
}

// setupDatabase sets up the PostgreSQL connection
func setupDatabase(cfg *config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.Url)
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

// getEnv gets an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getIntEnv gets an environment variable as an integer with a fallback
func getIntEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func InitReader() {
	environment := ""
	if len(os.Args) < 2 {
		log.Fatalf("Env not supplied in argument")
	} else {
		environment = os.Args[1]
	}

	err := godotenv.Load(environment + ".env")
	if err != nil {
		log.Fatalf("Error loading %s.env file", environment)
	}
}
