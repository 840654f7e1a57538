// Package config loads the failoverd configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/controlplane"
	"github.com/FairForge/globalfailover/internal/database"
	"github.com/FairForge/globalfailover/internal/events"
	"github.com/FairForge/globalfailover/internal/failover"
	"github.com/FairForge/globalfailover/internal/logging"
	"github.com/FairForge/globalfailover/internal/tracing"
)

// Control plane backends
const (
	ControlPlaneRDS    = "rds"
	ControlPlaneMemory = "memory"
)

// History backends
const (
	HistoryMemory   = "memory"
	HistoryPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Logging   logging.LoggerConfig `yaml:"logging"`
	AWS       AWSConfig            `yaml:"aws"`
	Failover  FailoverConfig       `yaml:"failover"`
	Database  DatabaseConfig       `yaml:"database"`
	Events    EventConfig          `yaml:"events"`
	Tracing   tracing.TracerConfig `yaml:"tracing"`
	RateLimit RateLimitConfig      `yaml:"ratelimit"`
}

type ServerConfig struct {
	Port        int           `yaml:"port"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout of zero leaves the connection open until every cluster
	// in the request has converged.
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AWSConfig struct {
	ControlPlane    string `yaml:"control_plane"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Mode            string `yaml:"mode"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	// SimulatedClusters seed the memory control plane
	SimulatedClusters []SimulatedCluster `yaml:"simulated_clusters"`
}

// SimulatedCluster is one global cluster of the memory control plane. The
// first member ARN is the writer.
type SimulatedCluster struct {
	Identifier string   `yaml:"identifier"`
	Members    []string `yaml:"members"`
}

// Descriptor converts the entry to a cluster descriptor
func (s SimulatedCluster) Descriptor() cluster.Descriptor {
	d := cluster.Descriptor{Identifier: cluster.Identifier(s.Identifier), Engine: "aurora-postgresql"}
	for i, arn := range s.Members {
		d.Members = append(d.Members, cluster.NewMember(arn, i == 0))
	}
	return d
}

// RDS returns the control plane client settings
func (a AWSConfig) RDS() controlplane.RDSConfig {
	return controlplane.RDSConfig{
		Region:          a.Region,
		Endpoint:        a.Endpoint,
		AccessKeyID:     a.AccessKeyID,
		SecretAccessKey: a.SecretAccessKey,
		Mode:            controlplane.FailoverMode(a.Mode),
	}
}

type FailoverConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval"`
	MaxPollDeadline     time.Duration `yaml:"max_poll_deadline"`
	TransientRetryLimit int           `yaml:"transient_retry_limit"`
	Parallelism         int           `yaml:"parallelism"`
	Backoff             string        `yaml:"backoff"`
	MaxPollInterval     time.Duration `yaml:"max_poll_interval"`
}

// Policy converts the section to an orchestration policy
func (f FailoverConfig) Policy() failover.Policy {
	return failover.Policy{
		PollInterval:        f.PollInterval,
		MaxPollDeadline:     f.MaxPollDeadline,
		TransientRetryLimit: f.TransientRetryLimit,
		Parallelism:         f.Parallelism,
		Backoff:             failover.BackoffKind(f.Backoff),
		MaxPollInterval:     f.MaxPollInterval,
	}.WithDefaults()
}

type DatabaseConfig struct {
	Backend         string `yaml:"backend"`
	CreateSchema    bool   `yaml:"create_schema"`
	database.Config `yaml:",inline"`
}

type EventConfig struct {
	BufferSize int         `yaml:"buffer_size"`
	Kafka      KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled            bool `yaml:"enabled"`
	events.KafkaConfig `yaml:",inline"`
}

// RateLimitConfig bounds calls to the control plane. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	d := failover.DefaultPolicy()
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: logging.LoggerConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatJSON,
		},
		AWS: AWSConfig{
			ControlPlane: ControlPlaneRDS,
			Region:       "us-east-1",
			Mode:         string(controlplane.ModeFailover),
		},
		Failover: FailoverConfig{
			PollInterval:        d.PollInterval,
			MaxPollDeadline:     d.MaxPollDeadline,
			TransientRetryLimit: d.TransientRetryLimit,
			Parallelism:         d.Parallelism,
			Backoff:             string(d.Backoff),
			MaxPollInterval:     d.MaxPollInterval,
		},
		Database: DatabaseConfig{
			Backend: HistoryMemory,
		},
		Events: EventConfig{
			BufferSize: 1000,
			Kafka: KafkaConfig{
				KafkaConfig: events.KafkaConfig{
					Topic:        "failover-events",
					WriteTimeout: 10 * time.Second,
				},
			},
		},
		Tracing: tracing.TracerConfig{
			ServiceName: "failoverd",
			SampleRate:  1.0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             5,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the whole configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.AWS.ControlPlane {
	case ControlPlaneRDS:
		if c.AWS.Region == "" {
			errs = append(errs, errors.New("aws.region is required for the rds control plane"))
		}
	case ControlPlaneMemory:
		for _, sc := range c.AWS.SimulatedClusters {
			if sc.Identifier == "" {
				errs = append(errs, errors.New("aws.simulated_clusters entries need an identifier"))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("aws.control_plane %q must be rds or memory", c.AWS.ControlPlane))
	}
	switch controlplane.FailoverMode(c.AWS.Mode) {
	case "", controlplane.ModeFailover, controlplane.ModeSwitchover:
	default:
		errs = append(errs, fmt.Errorf("aws.mode %q must be failover or switchover", c.AWS.Mode))
	}

	if err := c.Failover.Policy().Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Database.Backend {
	case HistoryMemory:
	case HistoryPostgres:
		if c.Database.DSN == "" && c.Database.Host == "" {
			errs = append(errs, errors.New("database.dsn or database.host is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.backend %q must be memory or postgres", c.Database.Backend))
	}

	if c.Events.BufferSize < 0 {
		errs = append(errs, errors.New("events.buffer_size must not be negative"))
	}
	if c.Events.Kafka.Enabled && (len(c.Events.Kafka.Brokers) == 0 || c.Events.Kafka.Topic == "") {
		errs = append(errs, errors.New("events.kafka needs brokers and a topic when enabled"))
	}

	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("ratelimit values must not be negative"))
	}

	return errors.Join(errs...)
}
