package config

import (
	"os"
	"strconv"
	"time"
)

// SchedulerCfg carries the sweep intervals, the staleness window and the
// selector scoring weights. The weights and the 2-minute window come from
// the operational defaults of the original deployment; they are exposed
// here rather than hard-coded so they can be tuned per environment.
type SchedulerCfg struct {
	JobSweepInterval     time.Duration
	PublishSweepInterval time.Duration
	PublishWindow        time.Duration
	HeartbeatWindow      time.Duration

	LoadWeight   float64
	CPUWeight    float64
	MemoryWeight float64

	// ReleaseStaleProcessing returns processing jobs of offline workers to
	// the pending pool. Off by default: the historical behavior is to leave
	// them for operator intervention.
	ReleaseStaleProcessing bool
}

func NewSchedulerCfg() *SchedulerCfg {
	return &SchedulerCfg{
		JobSweepInterval:       durationEnv("JOB_SWEEP_INTERVAL_SEC", 30*time.Second),
		PublishSweepInterval:   durationEnv("PUBLISH_SWEEP_INTERVAL_SEC", 30*time.Second),
		PublishWindow:          durationEnv("PUBLISH_WINDOW_SEC", 10*time.Minute),
		HeartbeatWindow:        durationEnv("HEARTBEAT_WINDOW_SEC", 2*time.Minute),
		LoadWeight:             floatEnv("SELECTOR_LOAD_WEIGHT", 0.4),
		CPUWeight:              floatEnv("SELECTOR_CPU_WEIGHT", 0.3),
		MemoryWeight:           floatEnv("SELECTOR_MEMORY_WEIGHT", 0.3),
		ReleaseStaleProcessing: os.Getenv("RELEASE_STALE_PROCESSING") == "true",
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	sec, err := strconv.Atoi(raw)
	if err != nil || sec <= 0 {
		return fallback
	}
	return time.Duration(sec) * time.Second
}

func floatEnv(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return f
}
