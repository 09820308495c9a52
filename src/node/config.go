package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/hashgraph"
	"github.com/sirupsen/logrus"
)

// Config holds the parameters of a Node.
type Config struct {
	HeartbeatTimeout     time.Duration `mapstructure:"heartbeat"`
	SlowHeartbeatTimeout time.Duration `mapstructure:"slow-heartbeat"`
	IntakeQueue          int           `mapstructure:"intake-queue"`
	MaxOtherParents      int           `mapstructure:"max-other-parents"`
	WeightedAdvisor      bool          `mapstructure:"weighted-advisor"`
	Bootstrap            bool          `mapstructure:"bootstrap"`
	Hashgraph            hashgraph.Config
	Logger               *logrus.Logger
}

// NewConfig creates a Config.
func NewConfig(heartbeat time.Duration,
	slowHeartbeat time.Duration,
	intakeQueue int,
	maxOtherParents int,
	hgConf hashgraph.Config,
	logger *logrus.Logger) *Config {

	return &Config{
		HeartbeatTimeout:     heartbeat,
		SlowHeartbeatTimeout: slowHeartbeat,
		IntakeQueue:          intakeQueue,
		MaxOtherParents:      maxOtherParents,
		Hashgraph:            hgConf,
		Logger:               logger,
	}
}

// DefaultConfig returns the default node parameters.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		HeartbeatTimeout:     10 * time.Millisecond,
		SlowHeartbeatTimeout: 1000 * time.Millisecond,
		IntakeQueue:          1024,
		MaxOtherParents:      2,
		Hashgraph:            hashgraph.DefaultConfig(),
		Logger:               logger,
	}
}

// TestConfig returns fast heartbeats and a logger writing through t.Log.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.HeartbeatTimeout = 5 * time.Millisecond
	config.SlowHeartbeatTimeout = 5 * time.Millisecond
	config.Logger = common.NewTestLogger(t)
	return config
}
