// Package config centralizes the enumerated options from spec.md §6.4:
// dispatcher endpoints, grid bounds, and valid taxi speeds. Every value has
// an environment-variable override, following the envOrDefault convention
// the server and agent binaries use.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// ValidSpeeds enumerates the only speeds a taxi may register with.
var ValidSpeeds = [3]int{1, 2, 4}

// IsValidSpeed reports whether speed is one of ValidSpeeds.
func IsValidSpeed(speed int) bool {
	for _, s := range ValidSpeeds {
		if s == speed {
			return true
		}
	}
	return false
}

// Ports mirrors the channel/port table in spec.md §6.2 for one dispatcher
// instance (primary or backup — the two are built from different env
// prefixes, see Primary/Backup below).
type Ports struct {
	Rep               int // taxi registration (connect_request / connect_ack)
	Pull              int // position updates
	Heartbeat         int // taxi heartbeats
	Pub               int // assignment broadcast
	UserReq           int // user ride requests
	HeartbeatSrv      int // primary liveness probe (primary only)
	BackupActivation  int // monitor -> backup activation signal (backup only)
}

// Endpoint holds everything a client needs to dial one dispatcher instance.
type Endpoint struct {
	Host  string
	Ports Ports
}

// Primary returns the endpoint for the primary dispatcher, built from
// DISPATCHER_IP and the *_PORT environment variables (or their documented
// defaults, one above the well-known ZeroMQ ephemeral range used by the
// original source).
func Primary() Endpoint {
	return Endpoint{
		Host: envOrDefault("DISPATCHER_IP", "localhost"),
		Ports: Ports{
			Rep:              envOrDefaultInt("REP_PORT", 5557),
			Pull:             envOrDefaultInt("PULL_PORT", 5558),
			Heartbeat:        envOrDefaultInt("HEARTBEAT_PORT", 5560),
			Pub:              envOrDefaultInt("PUB_PORT", 5555),
			UserReq:          envOrDefaultInt("USER_REQ_PORT", 5561),
			HeartbeatSrv:     envOrDefaultInt("HEARTBEAT_SRV_PORT", 5569),
			BackupActivation: 0,
		},
	}
}

// Backup returns the endpoint for the backup dispatcher, built from
// BACKUP_DISPATCHER_IP and the B_*_PORT environment variables.
func Backup() Endpoint {
	return Endpoint{
		Host: envOrDefault("BACKUP_DISPATCHER_IP", "localhost"),
		Ports: Ports{
			Rep:              envOrDefaultInt("B_REP_PORT", 6557),
			Pull:             envOrDefaultInt("B_PULL_PORT", 6558),
			Heartbeat:        envOrDefaultInt("B_HEARTBEAT_PORT", 6560),
			Pub:              envOrDefaultInt("B_PUB_PORT", 6555),
			UserReq:          envOrDefaultInt("B_USER_REQ_PORT", 6561),
			HeartbeatSrv:     0,
			BackupActivation: envOrDefaultInt("BACKUP_ACTIVATION_PORT", 6570),
		},
	}
}

// Grid holds the configured bounds, read from MAX_N / MAX_M (spec.md §6.4).
type Grid struct {
	MaxN int
	MaxM int
}

// GridBounds returns the configured maximum grid dimensions.
func GridBounds() Grid {
	return Grid{
		MaxN: envOrDefaultInt("MAX_N", 1000),
		MaxM: envOrDefaultInt("MAX_M", 1000),
	}
}

// DB holds relational store connection parameters (spec.md §6.4).
type DB struct {
	Driver string // "sqlite" or "postgres"
	DSN    string
}

// StoreConfig returns the Store connection parameters from the environment.
func StoreConfig() DB {
	return DB{
		Driver: envOrDefault("DB_DRIVER", "sqlite"),
		DSN:    envOrDefault("DB_DSN", "./taxi_dispatch.db"),
	}
}

// Timeouts holds the default durations from spec.md §5.
type Timeouts struct {
	ConnectReply    int // seconds, taxi connect reply
	UserReply       int // seconds, user request reply
	ProbeReply      int // seconds, heartbeat probe reply
	HeartbeatPeriod int // seconds, sweep period P; also the taxi heartbeat and monitor probe interval
	HeartbeatTimeout int // seconds, liveness threshold T
	PositionTick    int // seconds, taxi position tick
	ServiceDuration int // seconds, simulated ride duration
}

// DefaultTimeouts returns the timeout table from spec.md §5, each
// individually overridable via environment variable.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ConnectReply:     envOrDefaultInt("CONNECT_REPLY_TIMEOUT_S", 1),
		UserReply:        envOrDefaultInt("USER_REPLY_TIMEOUT_S", 30),
		ProbeReply:       envOrDefaultInt("PROBE_REPLY_TIMEOUT_S", 1),
		HeartbeatPeriod:  envOrDefaultInt("HEARTBEAT_PERIOD_S", 5),
		HeartbeatTimeout: envOrDefaultInt("HEARTBEAT_TIMEOUT_S", 15),
		PositionTick:     envOrDefaultInt("POSITION_TICK_S", 30),
		ServiceDuration:  envOrDefaultInt("SERVICE_DURATION_S", 5),
	}
}

// Validate enforces the P < T/2 constraint spec.md §4.1.2 requires between
// the sweep period and the liveness threshold.
func (t Timeouts) Validate() error {
	if t.HeartbeatPeriod*2 >= t.HeartbeatTimeout {
		return fmt.Errorf("config: heartbeat period %ds must be less than half the timeout %ds", t.HeartbeatPeriod, t.HeartbeatTimeout)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
