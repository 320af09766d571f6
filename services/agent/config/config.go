package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the agent service.
type Config struct {
	LogLevel     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers string
	LoggingTopic string
	RMSURL       string
	InstanceID   string

	TransTypes []string
	Schedule   string

	SubmitTasks   bool
	MonitorTasks  bool
	CheckReserved bool
	Disabled      bool

	SubmitBatch     int
	MonitorBatch    int
	StatusBatchSize int
	Workers         int

	RemoteTimeout   time.Duration
	StoreTimeout    time.Duration
	ReservedTimeout time.Duration
	LeaseTTL        time.Duration

	RateLimit  int
	RateWindow time.Duration

	ReconcileAttempts int
	LogSource         string

	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:          v.GetString("log_level"),
		PostgresDSN:       v.GetString("postgres_dsn"),
		RedisAddr:         v.GetString("redis_addr"),
		KafkaBrokers:      v.GetString("kafka_brokers"),
		LoggingTopic:      v.GetString("logging_topic"),
		RMSURL:            v.GetString("rms_url"),
		InstanceID:        v.GetString("instance_id"),
		TransTypes:        v.GetStringSlice("trans_types"),
		Schedule:          v.GetString("schedule"),
		SubmitTasks:       v.GetBool("submit_tasks"),
		MonitorTasks:      v.GetBool("monitor_tasks"),
		CheckReserved:     v.GetBool("check_reserved"),
		Disabled:          v.GetBool("disabled"),
		SubmitBatch:       v.GetInt("submit_batch"),
		MonitorBatch:      v.GetInt("monitor_batch"),
		StatusBatchSize:   v.GetInt("status_batch_size"),
		Workers:           v.GetInt("workers"),
		RemoteTimeout:     v.GetDuration("remote_timeout"),
		StoreTimeout:      v.GetDuration("store_timeout"),
		ReservedTimeout:   v.GetDuration("reserved_timeout"),
		LeaseTTL:          v.GetDuration("lease_ttl"),
		RateLimit:         v.GetInt("rate_limit"),
		RateWindow:        v.GetDuration("rate_window"),
		ReconcileAttempts: v.GetInt("reconcile_attempts"),
		LogSource:         v.GetString("log_source"),
		MetricsAddr:       v.GetString("metrics_addr"),
		OTelEndpoint:      v.GetString("otel_endpoint"),
	}
}
