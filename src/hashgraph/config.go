package hashgraph

import (
	"time"

	"github.com/mosaicnetworks/swirl/src/event"
)

const (
	// DefaultRoundsNonAncient is how many finalized rounds stay non-ancient.
	DefaultRoundsNonAncient = 26
	// DefaultCoinRoundFreq makes every 4th voting round a coin round.
	DefaultCoinRoundFreq = 4
	// DefaultMinTimestampIncrement separates consecutive consensus
	// timestamps.
	DefaultMinTimestampIncrement = 1000 * time.Nanosecond
	// DefaultCacheSize bounds the ancestry memoisation caches.
	DefaultCacheSize = 10000
)

// Config holds the protocol parameters of the consensus core. Every node of a
// network must use the same values.
type Config struct {
	AncientMode           event.AncientMode
	RoundsNonAncient      int
	CoinRoundFreq         int
	MinTimestampIncrement time.Duration
	CacheSize             int
}

// DefaultConfig returns the default protocol parameters.
func DefaultConfig() Config {
	return Config{
		AncientMode:           event.GenerationThreshold,
		RoundsNonAncient:      DefaultRoundsNonAncient,
		CoinRoundFreq:         DefaultCoinRoundFreq,
		MinTimestampIncrement: DefaultMinTimestampIncrement,
		CacheSize:             DefaultCacheSize,
	}
}

func (c Config) withDefaults() Config {
	if c.RoundsNonAncient <= 0 {
		c.RoundsNonAncient = DefaultRoundsNonAncient
	}
	if c.CoinRoundFreq <= 1 {
		c.CoinRoundFreq = DefaultCoinRoundFreq
	}
	if c.MinTimestampIncrement <= 0 {
		c.MinTimestampIncrement = DefaultMinTimestampIncrement
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	return c
}
