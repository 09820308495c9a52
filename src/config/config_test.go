package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/sirupsen/logrus"
)

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/swirl")

	if conf.DatabaseDir != filepath.Join("/tmp/swirl", DefaultBadgerFile) {
		t.Fatalf("database dir should follow the data dir, got %s", conf.DatabaseDir)
	}
	if conf.Keyfile() != filepath.Join("/tmp/swirl", DefaultKeyfile) {
		t.Fatalf("unexpected keyfile %s", conf.Keyfile())
	}

	if conf.NodeKeyfile(0) != conf.Keyfile() {
		t.Fatalf("node 0 should use the keyfile, not %s", conf.NodeKeyfile(0))
	}
	if conf.NodeKeyfile(2) != filepath.Join("/tmp/swirl", "node2_key") {
		t.Fatalf("unexpected node keyfile %s", conf.NodeKeyfile(2))
	}

	conf.DatabaseDir = "/var/db"
	conf.SetDataDir("/tmp/other")
	if conf.DatabaseDir != "/var/db" {
		t.Fatal("an explicit database dir should not be overwritten")
	}
}

func TestNodeConfig(t *testing.T) {
	conf := NewTestConfig(t)
	conf.AncientMode = "birth-round"
	conf.RoundsNonAncient = 5
	conf.HeartbeatTimeout = 3 * time.Millisecond
	conf.MaxOtherParents = 3
	conf.WeightedAdvisor = true
	conf.Bootstrap = true

	nodeConf, err := conf.NodeConfig()
	if err != nil {
		t.Fatal(err)
	}

	if !conf.Store {
		t.Fatal("bootstrap should force the store")
	}
	if nodeConf.Hashgraph.AncientMode != event.BirthRoundThreshold {
		t.Fatalf("ancient mode should be birth-round, not %s", nodeConf.Hashgraph.AncientMode)
	}
	if nodeConf.Hashgraph.RoundsNonAncient != 5 {
		t.Fatalf("rounds non ancient should be 5, not %d", nodeConf.Hashgraph.RoundsNonAncient)
	}
	if nodeConf.HeartbeatTimeout != 3*time.Millisecond {
		t.Fatalf("unexpected heartbeat %v", nodeConf.HeartbeatTimeout)
	}
	if nodeConf.MaxOtherParents != 3 || !nodeConf.WeightedAdvisor || !nodeConf.Bootstrap {
		t.Fatal("advisor and bootstrap settings should be carried over")
	}
	if nodeConf.Logger == nil {
		t.Fatal("node config should have a logger")
	}
}

func TestNodeConfigBadAncientMode(t *testing.T) {
	conf := NewTestConfig(t)
	conf.AncientMode = "sometimes"

	if _, err := conf.NodeConfig(); err == nil {
		t.Fatal("an unknown ancient mode should be rejected")
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"info":    logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"unknown": logrus.DebugLevel,
	}
	for s, l := range cases {
		if got := LogLevel(s); got != l {
			t.Fatalf("LogLevel(%q) should be %v, not %v", s, l, got)
		}
	}

	entry := NewDefaultConfig().Logger()
	if entry.Data["prefix"] != "swirl" {
		t.Fatalf("logger prefix should be swirl, not %v", entry.Data["prefix"])
	}
}
