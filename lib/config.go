package lib

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/units"
	"github.com/canopy-network/smt/lib/crypto"
)

/* This file implements logic for 'user controlled' configurations of each module of the tree software */

const (
	// FILE NAMES in the 'data directory'
	ConfigFilePath = "config.json" // the file path for the configuration
)

const (
	// store backends
	MemoryBackend  = "memory"
	BadgerBackend  = "badger"
	LevelDBBackend = "leveldb"
	PebbleBackend  = "pebble"
)

// Config is the structure of the user configuration options
type Config struct {
	MainConfig    // main options spanning over all modules
	StoreConfig   // persistence options
	TreeConfig    // hashing options
	MetricsConfig // telemetry options
}

// DefaultConfig() returns a Config with developer set options
func DefaultConfig() Config {
	return Config{
		MainConfig:    DefaultMainConfig(),
		StoreConfig:   DefaultStoreConfig(),
		TreeConfig:    DefaultTreeConfig(),
		MetricsConfig: DefaultMetricsConfig(),
	}
}

// MAIN CONFIG BELOW

type MainConfig struct {
	LogLevel string `json:"logLevel"` // any level includes the levels above it: debug < info < warning < error
	NoColor  bool   `json:"noColor"`  // disable colored log output
}

// DefaultMainConfig() sets log level to 'info'
func DefaultMainConfig() MainConfig {
	return MainConfig{LogLevel: "info"}
}

// GetLogLevel() parses the log string in the config file into a LogLevel Enum
func (m *MainConfig) GetLogLevel() int32 {
	switch l := strings.ToLower(m.LogLevel); {
	case strings.Contains(l, "deb"):
		return DebugLevel
	case strings.Contains(l, "inf"):
		return InfoLevel
	case strings.Contains(l, "war"):
		return WarnLevel
	case strings.Contains(l, "err"):
		return ErrorLevel
	default:
		return DebugLevel
	}
}

// STORE CONFIG BELOW

// StoreConfig is user configurations for the node store
type StoreConfig struct {
	DataDirPath  string `json:"dataDirPath"`  // path of the designated folder where the application stores its data
	DBName       string `json:"dbName"`       // name of the database
	Backend      string `json:"backend"`      // memory, badger, leveldb or pebble
	CacheEnabled bool   `json:"cacheEnabled"` // wrap the backend with a read cache of decoded nodes
	CacheSize    uint64 `json:"cacheSize"`    // maximum bytes held by the node cache
}

// DefaultDataDirPath() is $USERHOME/.smt
func DefaultDataDirPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(home, ".smt")
}

// DefaultStoreConfig() returns the developer recommended store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DataDirPath:  DefaultDataDirPath(),        // use the default data dir path
		DBName:       "smt",                       // 'smt' database name
		Backend:      BadgerBackend,               // persist to disk with badger
		CacheEnabled: true,                        // cache hot nodes
		CacheSize:    uint64(64 * units.Mebibyte), // 64 MB node cache
	}
}

// DBPath() is the on-disk location of the database
func (s StoreConfig) DBPath() string { return filepath.Join(s.DataDirPath, s.DBName) }

// TREE CONFIG BELOW

// TreeConfig selects the hashing strategy of the tree
type TreeConfig struct {
	Hasher string `json:"hasher"` // blake2b, sha256 or blake3
}

// DefaultTreeConfig() uses personalized blake2b
func DefaultTreeConfig() TreeConfig { return TreeConfig{Hasher: crypto.Blake2bName} }

// HasherFactory() resolves the configured hasher
func (t TreeConfig) HasherFactory() (crypto.HasherFactory, ErrorI) {
	f, err := crypto.HasherByName(t.Hasher)
	if err != nil {
		return nil, ErrUnknownHasher(err)
	}
	return f, nil
}

// METRICS CONFIG BELOW

// MetricsConfig represents the configuration for the metrics server
type MetricsConfig struct {
	MetricsEnabled    bool   `json:"metricsEnabled"`    // if the metrics server is started
	PrometheusAddress string `json:"prometheusAddress"` // the address of the server
}

// DefaultMetricsConfig() returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MetricsEnabled:    false,          // opt in
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

// NewConfigFromFile() populates a Config object from a JSON file
func NewConfigFromFile(filepath string) (Config, ErrorI) {
	fileBytes, err := os.ReadFile(filepath)
	if err != nil {
		return Config{}, ErrReadFile(err)
	}
	// define the default config to fill in any blanks in the file
	c := DefaultConfig()
	if err = json.Unmarshal(fileBytes, &c); err != nil {
		return Config{}, ErrJSONUnmarshal(err)
	}
	return c, nil
}
