package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FAILOVERD"

// LoadFromEnv applies FAILOVERD_* environment variables to cfg. Keys follow
// the YAML layout with dots replaced by underscores, e.g.
// FAILOVERD_SERVER_PORT or FAILOVERD_EVENTS_KAFKA_BROKERS (comma separated).
func LoadFromEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	set := func(key string) bool {
		return v.GetString(key) != ""
	}

	if set("server.port") {
		port, err := parseInt(v, "server.port")
		if err != nil {
			return err
		}
		cfg.Server.Port = port
	}
	if set("log.level") {
		cfg.Logging.Level = v.GetString("log.level")
	}
	if set("log.format") {
		cfg.Logging.Format = v.GetString("log.format")
	}

	if set("aws.control_plane") {
		cfg.AWS.ControlPlane = v.GetString("aws.control_plane")
	}
	if set("aws.region") {
		cfg.AWS.Region = v.GetString("aws.region")
	}
	if set("aws.endpoint") {
		cfg.AWS.Endpoint = v.GetString("aws.endpoint")
	}
	if set("aws.mode") {
		cfg.AWS.Mode = v.GetString("aws.mode")
	}
	if set("aws.access_key_id") {
		cfg.AWS.AccessKeyID = v.GetString("aws.access_key_id")
	}
	if set("aws.secret_access_key") {
		cfg.AWS.SecretAccessKey = v.GetString("aws.secret_access_key")
	}

	if set("failover.poll_interval") {
		cfg.Failover.PollInterval = v.GetDuration("failover.poll_interval")
	}
	if set("failover.max_poll_deadline") {
		cfg.Failover.MaxPollDeadline = v.GetDuration("failover.max_poll_deadline")
	}
	if set("failover.parallelism") {
		n, err := parseInt(v, "failover.parallelism")
		if err != nil {
			return err
		}
		cfg.Failover.Parallelism = n
	}
	if set("failover.transient_retry_limit") {
		n, err := parseInt(v, "failover.transient_retry_limit")
		if err != nil {
			return err
		}
		cfg.Failover.TransientRetryLimit = n
	}
	if set("failover.backoff") {
		cfg.Failover.Backoff = v.GetString("failover.backoff")
	}
	if set("failover.max_poll_interval") {
		cfg.Failover.MaxPollInterval = v.GetDuration("failover.max_poll_interval")
	}

	if set("database.backend") {
		cfg.Database.Backend = v.GetString("database.backend")
	}
	if set("database.dsn") {
		cfg.Database.DSN = v.GetString("database.dsn")
		if !set("database.backend") {
			cfg.Database.Backend = HistoryPostgres
		}
	}

	if set("events.kafka.brokers") {
		cfg.Events.Kafka.Brokers = splitList(v.GetString("events.kafka.brokers"))
		cfg.Events.Kafka.Enabled = true
	}
	if set("events.kafka.topic") {
		cfg.Events.Kafka.Topic = v.GetString("events.kafka.topic")
	}

	if set("tracing.enabled") {
		cfg.Tracing.Enabled = v.GetBool("tracing.enabled")
	}
	if set("tracing.endpoint") {
		cfg.Tracing.Endpoint = v.GetString("tracing.endpoint")
	}

	return nil
}

func parseInt(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("%s_%s: not an integer: %q", EnvPrefix, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), v.GetString(key))
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
