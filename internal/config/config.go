package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LIGHTHOUSE_REDIS_ADDR.
const EnvPrefix = "LIGHTHOUSE"

// Config holds every recognised option. Keys match the yaml file and,
// upper-cased with EnvPrefix, the environment.
type Config struct {
	Listen    string `mapstructure:"listen"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	WorkspaceDir string `mapstructure:"workspace_dir"`
	GitSSHKey    string `mapstructure:"git_ssh_key"`
	GitSSHUser   string `mapstructure:"git_ssh_user"`

	DockerURL        string `mapstructure:"docker_url"`
	DockerTLS        bool   `mapstructure:"docker_tls"`
	DockerCACert     string `mapstructure:"docker_ca_cert"`
	DockerClientCert string `mapstructure:"docker_client_cert"`
	DockerClientKey  string `mapstructure:"docker_client_key"`

	DockerPublish          bool   `mapstructure:"docker_publish"`
	DockerRegistry         string `mapstructure:"docker_registry"`
	DockerSSLRegistry      bool   `mapstructure:"docker_ssl_registry"`
	DockerRegistryUser     string `mapstructure:"docker_registry_user"`
	DockerRegistryPassword string `mapstructure:"docker_registry_password"`

	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	QueuePrefix   string        `mapstructure:"queue_prefix"`
	LogTTL        time.Duration `mapstructure:"log_ttl"`

	KafkaBrokers string `mapstructure:"kafka_brokers"`
	KafkaTopic   string `mapstructure:"kafka_topic"`

	Workers      int           `mapstructure:"workers"`
	BuildTimeout time.Duration `mapstructure:"build_timeout"`
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Listen:       ":3000",
		LogLevel:     "info",
		LogFormat:    "text",
		RedisAddr:    "localhost:6379",
		QueuePrefix:  "lighthouse",
		LogTTL:       24 * time.Hour,
		KafkaTopic:   "build-completions",
		Workers:      1,
		BuildTimeout: 10 * time.Minute,
		Heartbeat:    10 * time.Second,
	}
}

// Load reads path (if not empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Default(), fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Default(), fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// setDefaults registers every key, which also makes AutomaticEnv see it.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("listen", d.Listen)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)

	v.SetDefault("workspace_dir", d.WorkspaceDir)
	v.SetDefault("git_ssh_key", d.GitSSHKey)
	v.SetDefault("git_ssh_user", d.GitSSHUser)

	v.SetDefault("docker_url", d.DockerURL)
	v.SetDefault("docker_tls", d.DockerTLS)
	v.SetDefault("docker_ca_cert", d.DockerCACert)
	v.SetDefault("docker_client_cert", d.DockerClientCert)
	v.SetDefault("docker_client_key", d.DockerClientKey)

	v.SetDefault("docker_publish", d.DockerPublish)
	v.SetDefault("docker_registry", d.DockerRegistry)
	v.SetDefault("docker_ssl_registry", d.DockerSSLRegistry)
	v.SetDefault("docker_registry_user", d.DockerRegistryUser)
	v.SetDefault("docker_registry_password", d.DockerRegistryPassword)

	v.SetDefault("redis_addr", d.RedisAddr)
	v.SetDefault("redis_password", d.RedisPassword)
	v.SetDefault("redis_db", d.RedisDB)
	v.SetDefault("queue_prefix", d.QueuePrefix)
	v.SetDefault("log_ttl", d.LogTTL)

	v.SetDefault("kafka_brokers", d.KafkaBrokers)
	v.SetDefault("kafka_topic", d.KafkaTopic)

	v.SetDefault("workers", d.Workers)
	v.SetDefault("build_timeout", d.BuildTimeout)
	v.SetDefault("heartbeat", d.Heartbeat)
}

func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.BuildTimeout <= 0 {
		return fmt.Errorf("build_timeout must be positive")
	}
	if c.DockerTLS && (c.DockerClientCert == "" || c.DockerClientKey == "") {
		return fmt.Errorf("docker_tls needs docker_client_cert and docker_client_key")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

// RegistryScheme is the scheme registry queries use.
func (c Config) RegistryScheme() string {
	if c.DockerSSLRegistry {
		return "https"
	}
	return "http"
}
