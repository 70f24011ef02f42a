package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// GIDMaxBytes is the largest GID the assembler will accept, one byte short
// of the 200-byte on-disk field so a trailing NUL always fits.
const GIDMaxBytes = 199

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// AdminHTTPConfiguration controls the read-only prepared-transactions view
type AdminHTTPConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
}

// Configuration is the main configuration structure for the 2PC subsystem
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	// MaxPreparedTransactions is the fixed capacity of the GXact slab,
	// equivalent to Postgres's max_prepared_transactions GUC.
	MaxPreparedTransactions int `toml:"max_prepared_transactions"`

	// GIDMaxBytes is checked by Validate against the 199-byte limit. It is
	// not consulted when a GID is reserved or assembled: the GXact table and
	// the prepare-record assembler always enforce the fixed 199-byte limit.
	GIDMaxBytes int `toml:"gid_max_bytes"`

	// WALSegmentCeilingBytes bounds the assembled prepare payload.
	WALSegmentCeilingBytes int `toml:"wal_segment_ceiling_bytes"`

	// CoordinatorMode is loaded from the config file but not read by any
	// component; txnapi takes cross-database FINISH PREPARED permission
	// from each finish request's coordinator_mode field instead.
	CoordinatorMode bool `toml:"coordinator_mode"`

	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	AdminHTTP  AdminHTTPConfiguration  `toml:"admin_http"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
)

// Config holds the process-wide configuration, populated by Load.
var Config = &Configuration{
	NodeID:  0, // Auto-generate
	DataDir: "./twopc-data",

	MaxPreparedTransactions: 64,
	GIDMaxBytes:             GIDMaxBytes,
	WALSegmentCeilingBytes:  1 << 20, // 1MiB ceiling on an assembled prepare record
	CoordinatorMode:         false,

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Address: "0.0.0.0",
		Port:    9090,
	},

	AdminHTTP: AdminHTTPConfiguration{
		Enabled:     true,
		BindAddress: "127.0.0.1",
		Port:        8088,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}

	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("twopc")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.MaxPreparedTransactions < 1 {
		return fmt.Errorf("max_prepared_transactions must be >= 1")
	}

	if Config.GIDMaxBytes < 1 || Config.GIDMaxBytes > GIDMaxBytes {
		return fmt.Errorf("gid_max_bytes must be between 1 and %d", GIDMaxBytes)
	}

	if Config.WALSegmentCeilingBytes < 1 {
		return fmt.Errorf("wal_segment_ceiling_bytes must be >= 1")
	}

	if Config.AdminHTTP.Enabled && (Config.AdminHTTP.Port < 1 || Config.AdminHTTP.Port > 65535) {
		return fmt.Errorf("invalid admin_http port: %d", Config.AdminHTTP.Port)
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}

	return nil
}
