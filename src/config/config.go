package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/mosaicnetworks/swirl/src/hashgraph"
	"github.com/mosaicnetworks/swirl/src/node"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the validator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// databases
	DefaultBadgerFile = "badger_db"

	// DefaultConfigFile is the base name of the configuration file read by
	// viper, with a toml, json or yaml extension.
	DefaultConfigFile = "swirl"
)

// Default configuration values.
const (
	DefaultLogLevel              = "debug"
	DefaultServiceAddr           = "127.0.0.1:8000"
	DefaultHeartbeatTimeout      = 10 * time.Millisecond
	DefaultSlowHeartbeatTimeout  = 1000 * time.Millisecond
	DefaultCacheSize             = hashgraph.DefaultCacheSize
	DefaultStore                 = false
	DefaultMaintenanceMode       = false
	DefaultAncientMode           = "generation"
	DefaultRoundsNonAncient      = hashgraph.DefaultRoundsNonAncient
	DefaultCoinRoundFreq         = hashgraph.DefaultCoinRoundFreq
	DefaultMinTimestampIncrement = hashgraph.DefaultMinTimestampIncrement
	DefaultMaxOtherParents       = 2
	DefaultWeightedAdvisor       = false
	DefaultIntakeQueue           = 1024
	DefaultNodes                 = 4
	DefaultWeight                = 25
	DefaultDuration              = 10 * time.Second
	DefaultVerifySignatures      = true
)

// Config contains all the configuration properties of a swirl run.
type Config struct {
	// DataDir is the top-level directory containing swirl configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile activates file logging. Logs are written to info.log, warn.log
	// and error.log in the data directory.
	LogFile bool `mapstructure:"log-file"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// HeartbeatTimeout is the frequency of event creation when the node has
	// pending transactions or undetermined events.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// SlowHeartbeatTimeout is the frequency of event creation when the node
	// has nothing to do.
	SlowHeartbeatTimeout time.Duration `mapstructure:"slow-heartbeat"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of items in in-memory caches.
	CacheSize int `mapstructure:"cache-size"`

	// Bootstrap determines whether or not to load the hashgraph from an
	// existing database. Forces Store.
	Bootstrap bool `mapstructure:"bootstrap"`

	// MaintenanceMode keeps the badger database read-only: data only goes to
	// the caches.
	MaintenanceMode bool `mapstructure:"maintenance-mode"`

	// AncientMode is generation or birth-round. It selects the field by which
	// events are ordered and expired.
	AncientMode string `mapstructure:"ancient-mode"`

	// RoundsNonAncient is the number of finalized rounds whose events are
	// still non-ancient.
	RoundsNonAncient int `mapstructure:"rounds-non-ancient"`

	// CoinRoundFreq makes every n-th voting round a coin round.
	CoinRoundFreq int `mapstructure:"coin-round-freq"`

	// MinTimestampIncrement separates consecutive consensus timestamps.
	MinTimestampIncrement time.Duration `mapstructure:"min-timestamp-increment"`

	// MaxOtherParents is the maximum number of other-parents of a self-event.
	MaxOtherParents int `mapstructure:"max-other-parents"`

	// WeightedAdvisor weighs tipset advancements by node weight when choosing
	// other-parents.
	WeightedAdvisor bool `mapstructure:"weighted-advisor"`

	// IntakeQueue is the capacity of the queue of events waiting to be
	// inserted in the hashgraph.
	IntakeQueue int `mapstructure:"intake-queue"`

	// Nodes is the number of nodes of a simulated network.
	Nodes int `mapstructure:"nodes"`

	// Weight is the voting weight of every simulated node.
	Weight uint64 `mapstructure:"weight"`

	// Duration is how long a simulation runs. Zero runs until interrupted.
	Duration time.Duration `mapstructure:"duration"`

	// VerifySignatures checks event signatures on delivery.
	VerifySignatures bool `mapstructure:"verify-signatures"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:               DefaultDataDir(),
		LogLevel:              DefaultLogLevel,
		ServiceAddr:           DefaultServiceAddr,
		HeartbeatTimeout:      DefaultHeartbeatTimeout,
		SlowHeartbeatTimeout:  DefaultSlowHeartbeatTimeout,
		Store:                 DefaultStore,
		DatabaseDir:           DefaultDatabaseDir(),
		CacheSize:             DefaultCacheSize,
		MaintenanceMode:       DefaultMaintenanceMode,
		AncientMode:           DefaultAncientMode,
		RoundsNonAncient:      DefaultRoundsNonAncient,
		CoinRoundFreq:         DefaultCoinRoundFreq,
		MinTimestampIncrement: DefaultMinTimestampIncrement,
		MaxOtherParents:       DefaultMaxOtherParents,
		WeightedAdvisor:       DefaultWeightedAdvisor,
		IntakeQueue:           DefaultIntakeQueue,
		Nodes:                 DefaultNodes,
		Weight:                DefaultWeight,
		Duration:              DefaultDuration,
		VerifySignatures:      DefaultVerifySignatures,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level swirl directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// NodeKeyfile returns the path of the private key of the i-th simulated node.
// Node 0 uses Keyfile.
func (c *Config) NodeKeyfile(i int) string {
	if i == 0 {
		return c.Keyfile()
	}
	return filepath.Join(c.DataDir, fmt.Sprintf("node%d_key", i))
}

// HashgraphConfig returns the protocol parameters of the consensus core.
func (c *Config) HashgraphConfig() (hashgraph.Config, error) {
	mode, err := event.ParseAncientMode(c.AncientMode)
	if err != nil {
		return hashgraph.Config{}, err
	}

	return hashgraph.Config{
		AncientMode:           mode,
		RoundsNonAncient:      c.RoundsNonAncient,
		CoinRoundFreq:         c.CoinRoundFreq,
		MinTimestampIncrement: c.MinTimestampIncrement,
		CacheSize:             c.CacheSize,
	}, nil
}

// NodeConfig returns the configuration of a node. Bootstrap forces Store.
func (c *Config) NodeConfig() (*node.Config, error) {
	hgConf, err := c.HashgraphConfig()
	if err != nil {
		return nil, err
	}

	if c.Bootstrap {
		c.Store = true
	}

	conf := node.NewConfig(c.HeartbeatTimeout,
		c.SlowHeartbeatTimeout,
		c.IntakeQueue,
		c.MaxOtherParents,
		hgConf,
		c.Logger().Logger)
	conf.WeightedAdvisor = c.WeightedAdvisor
	conf.Bootstrap = c.Bootstrap

	return conf, nil
}

// Logger returns a formatted logrus Entry, with prefix set to "swirl".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "swirl")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level swirl config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Swirl")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Swirl")
		} else {
			return filepath.Join(home, ".swirl")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
