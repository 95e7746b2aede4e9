package lib

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/alecthomas/units"
	"github.com/canopy-network/vsmt/lib/crypto"
)

/* This file implements logic for 'user controlled' configurations of the tree, its store and the outer surfaces */

const (
	// FILE NAMES in the 'data directory'
	ConfigFilePath = "config.json" // the file path for the configuration

	// STORE BACKENDS
	BackendMemory  = "memory"  // maps, nothing survives the process
	BackendBadger  = "badger"  // badger in managed (timestamped) mode
	BackendPebble  = "pebble"  // pebble with a [key][^version] layout
	BackendLevelDB = "leveldb" // goleveldb with a [key][^version] layout
)

// Config is the structure of the user configuration options
type Config struct {
	MainConfig    // main options spanning over all modules
	StoreConfig   // persistence options
	TreeConfig    // sparse merkle tree options
	RPCConfig     // rpc API options
	MetricsConfig // telemetry options
}

// DefaultConfig() returns a Config with developer set options
func DefaultConfig() Config {
	return Config{
		MainConfig:    DefaultMainConfig(),
		StoreConfig:   DefaultStoreConfig(),
		TreeConfig:    DefaultTreeConfig(),
		RPCConfig:     DefaultRPCConfig(),
		MetricsConfig: DefaultMetricsConfig(),
	}
}

// MAIN CONFIG BELOW

type MainConfig struct {
	LogLevel string `json:"logLevel"` // any level includes the levels above it: debug < info < warning < error
}

// DefaultMainConfig() sets log level to 'info'
func DefaultMainConfig() MainConfig {
	return MainConfig{
		LogLevel: "info", // everything but debug is the default
	}
}

// GetLogLevel() parses the log string in the config file into a LogLevel Enum
func (m *MainConfig) GetLogLevel() int32 {
	switch l := strings.ToLower(m.LogLevel); {
	case strings.Contains(l, "deb"):
		return DebugLevel
	case strings.Contains(l, "war"):
		return WarnLevel
	case strings.Contains(l, "err"):
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// STORE CONFIG BELOW

// StoreConfig is user configuration for the versioned node store
type StoreConfig struct {
	DataDirPath    string `json:"dataDirPath"`    // path of the designated folder where the application stores its data
	DBName         string `json:"dbName"`         // name of the database
	Backend        string `json:"backend"`        // memory, badger, pebble or leveldb
	InMemory       bool   `json:"inMemory"`       // non-disk database, only for testing
	MemTableSize   int64  `json:"memTableSize"`   // badger and pebble memtable size in bytes
	BlockCacheSize int64  `json:"blockCacheSize"` // pebble and leveldb block cache size in bytes
	CommitRetryMS  uint64 `json:"commitRetryMS"`  // how long a failing commit flush is retried before giving up
}

// DefaultDataDirPath() is $USERHOME/.vsmt
func DefaultDataDirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(home, ".vsmt")
}

// DefaultStoreConfig() returns the developer recommended store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DataDirPath:    DefaultDataDirPath(),   // use the default data dir path
		DBName:         "vsmt",                 // 'vsmt' database name
		Backend:        BackendPebble,          // pebble is the default engine
		InMemory:       false,                  // persist to disk, not memory
		MemTableSize:   int64(64 * units.MiB),  // 64 MiB memtable
		BlockCacheSize: int64(256 * units.MiB), // 256 MiB block cache
		CommitRetryMS:  5000,                   // retry a failing flush for up to 5 seconds
	}
}

// DBPath() returns the on-disk location of the database
func (s *StoreConfig) DBPath() string { return filepath.Join(s.DataDirPath, s.DBName) }

// TREE CONFIG BELOW

// TreeConfig is user configuration for the sparse merkle tree
type TreeConfig struct {
	Hasher            string `json:"hasher"`            // the name of the hash function: blake3, sha256, blake2b, sha3 or keccak256
	VerifyParallelism int    `json:"verifyParallelism"` // maximum concurrent proof verifications in a batch
}

// DefaultTreeConfig() uses blake3 and one verification worker per cpu
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		Hasher:            crypto.DefaultHasherName,
		VerifyParallelism: runtime.NumCPU(),
	}
}

// RPC CONFIG BELOW

type RPCConfig struct {
	RPCPort      string `json:"rpcPort"`      // the port where the rpc server is hosted
	TimeoutS     int    `json:"timeoutS"`     // the rpc request timeout in seconds
	MaxBodyBytes int64  `json:"maxBodyBytes"` // the largest accepted request body
}

// DefaultRPCConfig() serves the query rpc on localhost:50002
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		RPCPort:      "50002",              // the rpc is served on localhost:50002
		TimeoutS:     3,                    // the rpc timeout is 3 seconds
		MaxBodyBytes: int64(4 * units.MiB), // 4 MiB is plenty for a few thousand keys
	}
}

// METRICS CONFIG BELOW

// MetricsConfig represents the configuration for the metrics server
type MetricsConfig struct {
	MetricsEnabled    bool   `json:"metricsEnabled"`    // if the metrics are enabled
	PrometheusAddress string `json:"prometheusAddress"` // the address of the server
}

// DefaultMetricsConfig() returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MetricsEnabled:    false,          // disabled by default
		PrometheusAddress: "0.0.0.0:9090", // the default prometheus address
	}
}

// WriteToFile() saves the Config object to a JSON file
func (c Config) WriteToFile(filepath string) ErrorI {
	jsonBytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return ErrJSONMarshal(err)
	}
	if err = os.WriteFile(filepath, jsonBytes, os.ModePerm); err != nil {
		return ErrWriteFile(err)
	}
	return nil
}

// NewConfigFromFile() populates a Config object from a JSON file, missing fields keep their defaults
func NewConfigFromFile(filepath string) (Config, ErrorI) {
	fileBytes, err := os.ReadFile(filepath)
	if err != nil {
		return Config{}, ErrReadFile(err)
	}
	c := DefaultConfig()
	if err = json.Unmarshal(fileBytes, &c); err != nil {
		return Config{}, ErrJSONUnmarshal(err)
	}
	return c, nil
}
