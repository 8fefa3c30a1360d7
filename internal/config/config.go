// Package config loads the environment variables listed in spec.md §6,
// the way the teacher's internal/utils.GetEnv helpers do: read, log when a
// default is substituted, return a plain struct.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/devenwen/callme-gate/internal/logger"
)

// Store holds the shared-store connection parameters (STORE_* env vars).
type Store struct {
	Host     string
	Port     string
	DB       int
	Password string
	UseTLS   bool
}

func (s Store) Addr() string { return s.Host + ":" + s.Port }

func LoadStore(log *logger.Logger) Store {
	return Store{
		Host:     getEnv("STORE_HOST", "127.0.0.1", log),
		Port:     getEnv("STORE_PORT", "6379", log),
		DB:       getEnvAsInt("STORE_DB", 0, log),
		Password: getEnv("STORE_PASSWORD", "", nil), // never logged
		UseTLS:   getEnvAsBool("STORE_USE_TLS", false, log),
	}
}

// Gate holds the Gate process's own tunables.
type Gate struct {
	Port            string
	DispatchTimeout time.Duration
	JobTTL          time.Duration
	StuckThreshold  time.Duration
}

func LoadGate(log *logger.Logger) Gate {
	return Gate{
		Port:            getEnv("GATE_PORT", "9000", log),
		DispatchTimeout: time.Duration(getEnvAsInt("DISPATCH_TIMEOUT_MS", 30000, log)) * time.Millisecond,
		JobTTL:          time.Duration(getEnvAsInt("JOB_TTL_SECONDS", 300, log)) * time.Second,
		StuckThreshold:  time.Duration(getEnvAsInt("WORKER_STALE_THRESHOLD_MS", 5000, log)) * time.Millisecond,
	}
}

// Worker holds the App Worker's own tunables.
type Worker struct {
	Version         string
	PoolSize        int
	PopTimeout      time.Duration
	HeartbeatPeriod time.Duration
}

func LoadWorker(log *logger.Logger, versionFlag string) Worker {
	version := strings.TrimSpace(versionFlag)
	if version == "" {
		version = getEnv("WORKER_VERSION", "", log)
	}
	if version == "" {
		if host, err := os.Hostname(); err == nil {
			version = host
		} else {
			version = "worker"
		}
	}
	return Worker{
		Version:         version,
		PoolSize:        getEnvAsInt("WORKER_POOL_SIZE", 1, log),
		PopTimeout:      1 * time.Second,
		HeartbeatPeriod: 10 * time.Second,
	}
}

func getEnv(key, def string, log *logger.Logger) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		if log != nil {
			log.Debug("env var not set, using default", "env_var", key, "default", def)
		}
		return def
	}
	return v
}

func getEnvAsInt(key string, def int, log *logger.Logger) int {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		if log != nil {
			log.Debug("env var not set, using default", "env_var", key, "default", def)
		}
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		if log != nil {
			log.Warn("env var not an int, using default", "env_var", key, "value", v, "default", def)
		}
		return def
	}
	return i
}

func getEnvAsBool(key string, def bool, log *logger.Logger) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		if log != nil {
			log.Debug("env var not set, using default", "env_var", key, "default", def)
		}
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		if log != nil {
			log.Warn("env var not a bool, using default", "env_var", key, "value", v, "default", def)
		}
		return def
	}
	return b
}
