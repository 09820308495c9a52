package commands

import (
	"context"
	"crypto/ecdsa"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mosaicnetworks/swirl/src/addressbook"
	"github.com/mosaicnetworks/swirl/src/config"
	"github.com/mosaicnetworks/swirl/src/crypto/keys"
	"github.com/mosaicnetworks/swirl/src/observer"
	"github.com/mosaicnetworks/swirl/src/service"
	"github.com/mosaicnetworks/swirl/src/simulation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a simulated network
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a simulated network",
		PreRunE: loadConfig,
		RunE:    runSwirl,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runSwirl(cmd *cobra.Command, args []string) error {
	conf := &_config.Swirl
	logger := conf.Logger()

	nodeConf, err := conf.NodeConfig()
	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		return err
	}

	registry := prometheus.NewRegistry()
	metrics, err := observer.NewPrometheus("swirl", registry)
	if err != nil {
		return err
	}
	obs := observer.Multi{metrics, observer.NewLog(logger)}

	nodeKeys, err := loadKeys(conf, logger)
	if err != nil {
		logger.WithError(err).Error("Cannot load keys")
		return err
	}

	network, err := simulation.NewNetwork(simulation.Config{
		Nodes:            conf.Nodes,
		Weight:           conf.Weight,
		VerifySignatures: conf.VerifySignatures,
		Moniker:          conf.Moniker,
		Store:            conf.Store,
		MaintenanceMode:  conf.MaintenanceMode,
		DatabaseDir:      conf.DatabaseDir,
		Keys:             nodeKeys,
		Node:             nodeConf,
		Observer:         obs,
	})
	if err != nil {
		logger.WithError(err).Error("Cannot create network")
		return err
	}

	book := addressbook.NewJSONAddressBook(conf.DataDir)
	if err := book.Write(network.AddressBook().Addresses()); err != nil {
		logger.WithError(err).Warn("Cannot write address book")
	}

	network.Start()
	defer network.Stop()

	if !conf.NoService {
		srv := service.NewService(conf.ServiceAddr, network.Nodes()[0], registry, logger)
		go srv.Serve()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if conf.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, conf.Duration)
		defer cancel()
	}

	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigintCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for running := true; running; {
		select {
		case <-ticker.C:
			stats := network.Nodes()[0].Stats()
			logger.WithFields(logrus.Fields{
				"last_consensus_round": stats["last_consensus_round"],
				"consensus_events":     stats["consensus_events"],
				"undetermined_events":  stats["undetermined_events"],
				"events/s":             stats["events_per_second"],
			}).Info("Stats")
		case <-sigintCh:
			logger.Info("Interrupted")
			running = false
		case <-ctx.Done():
			running = false
		}
	}

	network.Stop()

	if err := network.CheckConsistency(); err != nil {
		logger.WithError(err).Error("Nodes disagree on the consensus order")
		return err
	}

	logger.WithField("consensus_events", network.MinConsensusEvents()).Info("All nodes agree")

	return nil
}

// loadKeys reads the key of every node from its keyfile. With a persistent store,
// missing keys are generated and written so that a bootstrapped network keeps
// the same address book.
func loadKeys(conf *config.Config, logger *logrus.Entry) ([]*ecdsa.PrivateKey, error) {
	res := []*ecdsa.PrivateKey{}

	for i := 0; i < conf.Nodes; i++ {
		keyfile := keys.NewSimpleKeyfile(conf.NodeKeyfile(i))

		key, err := keyfile.ReadKey()
		if err == nil {
			logger.WithFields(logrus.Fields{
				"node":    i,
				"pub_key": keys.PublicKeyHex(&key.PublicKey),
			}).Debug("Loaded key")
			res = append(res, key)
			continue
		}
		if !os.IsNotExist(err) {
			return nil, err
		}

		if key, err = keys.GenerateECDSAKey(); err != nil {
			return nil, err
		}
		if conf.Store {
			if err := keyfile.WriteKey(key); err != nil {
				return nil, err
			}
		}
		res = append(res, key)
	}

	return res, nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Swirl.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Swirl.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Bool("log-file", _config.Swirl.LogFile, "Also write logs to files in the data directory")
	cmd.Flags().String("moniker", _config.Swirl.Moniker, "Optional name")

	// Service
	cmd.Flags().Bool("no-service", _config.Swirl.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Swirl.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Swirl.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Swirl.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Bool("bootstrap", _config.Swirl.Bootstrap, "Load from database")
	cmd.Flags().Bool("maintenance-mode", _config.Swirl.MaintenanceMode, "Do not write to the database")
	cmd.Flags().Int("cache-size", _config.Swirl.CacheSize, "Number of items in LRU caches")

	// Consensus
	cmd.Flags().String("ancient-mode", _config.Swirl.AncientMode, "generation or birth-round")
	cmd.Flags().Int("rounds-non-ancient", _config.Swirl.RoundsNonAncient, "Number of finalized rounds that stay non-ancient")
	cmd.Flags().Int("coin-round-freq", _config.Swirl.CoinRoundFreq, "Every n-th voting round is a coin round")
	cmd.Flags().Duration("min-timestamp-increment", _config.Swirl.MinTimestampIncrement, "Minimum gap between consensus timestamps")

	// Node configuration
	cmd.Flags().Duration("heartbeat", _config.Swirl.HeartbeatTimeout, "Time between self-events when busy")
	cmd.Flags().Duration("slow-heartbeat", _config.Swirl.SlowHeartbeatTimeout, "Time between self-events when idle")
	cmd.Flags().Int("max-other-parents", _config.Swirl.MaxOtherParents, "Maximum number of other-parents per event")
	cmd.Flags().Bool("weighted-advisor", _config.Swirl.WeightedAdvisor, "Weigh tipset advancements by node weight")
	cmd.Flags().Int("intake-queue", _config.Swirl.IntakeQueue, "Capacity of the event intake queue")

	// Simulation
	cmd.Flags().Int("nodes", _config.Swirl.Nodes, "Number of nodes")
	cmd.Flags().Uint64("weight", _config.Swirl.Weight, "Voting weight of every node")
	cmd.Flags().Duration("duration", _config.Swirl.Duration, "Run time, 0 runs until interrupted")
	cmd.Flags().Bool("verify-signatures", _config.Swirl.VerifySignatures, "Verify event signatures on delivery")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Swirl.SetDataDir(_config.Swirl.DataDir)

	if _config.Swirl.LogFile {
		if err := addFileHook(_config.Swirl.Logger().Logger, _config.Swirl.DataDir); err != nil {
			return err
		}
	}

	logFields := logrus.Fields{
		"swirl.DataDir":              _config.Swirl.DataDir,
		"swirl.ServiceAddr":          _config.Swirl.ServiceAddr,
		"swirl.NoService":            _config.Swirl.NoService,
		"swirl.Store":                _config.Swirl.Store,
		"swirl.LogLevel":             _config.Swirl.LogLevel,
		"swirl.Moniker":              _config.Swirl.Moniker,
		"swirl.HeartbeatTimeout":     _config.Swirl.HeartbeatTimeout,
		"swirl.SlowHeartbeatTimeout": _config.Swirl.SlowHeartbeatTimeout,
		"swirl.CacheSize":            _config.Swirl.CacheSize,
		"swirl.AncientMode":          _config.Swirl.AncientMode,
		"swirl.RoundsNonAncient":     _config.Swirl.RoundsNonAncient,
		"swirl.CoinRoundFreq":        _config.Swirl.CoinRoundFreq,
		"swirl.MaxOtherParents":      _config.Swirl.MaxOtherParents,
		"swirl.Nodes":                _config.Swirl.Nodes,
		"swirl.Weight":               _config.Swirl.Weight,
		"swirl.Duration":             _config.Swirl.Duration,
	}

	if _config.Swirl.Store {
		logFields["swirl.DatabaseDir"] = _config.Swirl.DatabaseDir
		logFields["swirl.Bootstrap"] = _config.Swirl.Bootstrap
	}

	_config.Swirl.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/swirl.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigFile) // name of config file (without extension)
	viper.AddConfigPath(_config.Swirl.DataDir)    // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Swirl.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Swirl.Logger().Debugf("No config file found in: %s", _config.Swirl.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
