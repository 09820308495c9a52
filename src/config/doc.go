// Package config defines the configuration of a swirl run.
//
// Regardless of how swirl is started, directly from Go code or as a standalone
// process from the command line, it uses the Config object defined in this
// package to store and forward configuration options. On top of these options,
// swirl relies on a data directory, defined by Config.DataDir, where it looks
// for a few additional files:
//
//  swirl.toml // (optional) configuration file, also swirl.json or swirl.yaml.
//  priv_key // a plain text file containing the raw private key (cf. swirl keygen).
//  addressbook.json // (optional) a JSON file listing the nodes and their weights.
//  badger_db/ // the databases, when the store is activated.
package config
