package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// testLoggerAdapter is a logger destination that forwards every line to
// testing.T.Log, so log output only shows for failed or verbose tests.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	n := len(d)
	if n > 0 && d[n-1] == '\n' {
		d = d[:n-1]
	}
	if a.prefix != "" {
		a.t.Log(a.prefix + ": " + string(d))
	} else {
		a.t.Log(string(d))
	}
	return n, nil
}

// NewTestLogger returns a Debug level logger writing through t.Log.
func NewTestLogger(t testing.TB) *logrus.Logger {
	return NewPrefixedTestLogger(t, "")
}

// NewPrefixedTestLogger is NewTestLogger with every line prefixed, which helps
// telling nodes apart in multi-node tests.
func NewPrefixedTestLogger(t testing.TB, prefix string) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t, prefix: prefix}
	logger.Level = logrus.DebugLevel
	return logger
}
