package observer

import (
	"time"

	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/sirupsen/logrus"
)

// AncientLogPeriod is the minimum interval between two ancient event
// messages.
const AncientLogPeriod = time.Minute

// Log is an Observer writing to a logrus entry. Ancient event messages are
// rate limited.
type Log struct {
	logger  *logrus.Entry
	ancient *common.RateLimitedLogger
}

// NewLog creates a Log observer.
func NewLog(logger *logrus.Entry) *Log {
	return NewLogWithPeriod(logger, AncientLogPeriod)
}

// NewLogWithPeriod creates a Log observer with a custom rate limit for
// ancient event messages.
func NewLogWithPeriod(logger *logrus.Entry, period time.Duration) *Log {
	return &Log{
		logger:  logger,
		ancient: common.NewRateLimitedLogger(logger, period),
	}
}

// AncientEventReceived implements Observer.
func (l *Log) AncientEventReceived(d event.Descriptor, w event.Window) {
	l.ancient.Error(logrus.Fields{
		"event":  d.String(),
		"window": w.String(),
	}, "Ancient event reached the tipset tracker")
}

// WitnessFameDecided implements Observer.
func (l *Log) WitnessFameDecided(round int, witness event.Descriptor, famous bool, votingRounds int) {
	l.logger.WithFields(logrus.Fields{
		"round":         round,
		"witness":       witness.String(),
		"famous":        famous,
		"voting_rounds": votingRounds,
	}).Debug("Fame decided")
}

// RoundFinalized implements Observer.
func (l *Log) RoundFinalized(round int, received int, w event.Window) {
	l.logger.WithFields(logrus.Fields{
		"round":    round,
		"received": received,
		"window":   w.String(),
	}).Debug("Round finalized")
}
