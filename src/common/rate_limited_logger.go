package common

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitedLogger lets through at most one message per period and counts
// what it drops. The next message that gets through carries the number of
// suppressed messages in a "suppressed" field.
type RateLimitedLogger struct {
	sync.Mutex
	logger     *logrus.Entry
	limiter    *rate.Limiter
	suppressed int
}

// NewRateLimitedLogger creates a RateLimitedLogger emitting at most once per
// period.
func NewRateLimitedLogger(logger *logrus.Entry, period time.Duration) *RateLimitedLogger {
	return &RateLimitedLogger{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(period), 1),
	}
}

// Entry returns a log entry if the limiter allows one now, or nil after
// counting the message as suppressed.
func (l *RateLimitedLogger) Entry(fields logrus.Fields) *logrus.Entry {
	l.Lock()
	defer l.Unlock()

	if !l.limiter.Allow() {
		l.suppressed++
		return nil
	}

	entry := l.logger.WithFields(fields)
	if l.suppressed > 0 {
		entry = entry.WithField("suppressed", l.suppressed)
		l.suppressed = 0
	}
	return entry
}

// Warn logs msg at Warn level unless rate limited.
func (l *RateLimitedLogger) Warn(fields logrus.Fields, msg string) {
	if e := l.Entry(fields); e != nil {
		e.Warn(msg)
	}
}

// Error logs msg at Error level unless rate limited.
func (l *RateLimitedLogger) Error(fields logrus.Fields, msg string) {
	if e := l.Entry(fields); e != nil {
		e.Error(msg)
	}
}

// Suppressed returns how many messages were dropped since the last one that
// was emitted.
func (l *RateLimitedLogger) Suppressed() int {
	l.Lock()
	defer l.Unlock()
	return l.suppressed
}
