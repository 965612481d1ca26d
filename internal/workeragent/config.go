package workeragent

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the settings for the worker agent.
type Config struct {
	CoordinatorURL string   `mapstructure:"coordinator_url"`
	WorkerID       string   `mapstructure:"worker_id"`
	WorkerName     string   `mapstructure:"worker_name"`
	Kind           string   `mapstructure:"kind"`
	Platforms      []string `mapstructure:"platforms"`
	MaxConcurrent  int      `mapstructure:"max_concurrent_tasks"`
	HeartbeatSec   int      `mapstructure:"heartbeat_seconds"`
	PollSec        int      `mapstructure:"poll_seconds"`
	WorkDir        string   `mapstructure:"work_dir"`

	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	CAFile     string `mapstructure:"ca_file"`
	EncKeyFile string `mapstructure:"enc_key_file"`

	BrokerVerifyKeyFile string `mapstructure:"broker_verify_key_file"`
}

// LoadConfig initializes Viper and merges all config sources.
func LoadConfig(path string) (*Config, error) {
	viper.SetDefault("kind", "upload")
	viper.SetDefault("max_concurrent_tasks", 2)
	viper.SetDefault("heartbeat_seconds", 30)
	viper.SetDefault("poll_seconds", 10)
	viper.SetDefault("work_dir", "/tmp/vidfleet-worker")

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		// Missing file is fine; env vars can carry the full config.
	}

	viper.SetEnvPrefix("VIDFLEET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	err := viper.Unmarshal(&cfg)
	return &cfg, err
}
