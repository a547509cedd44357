// Package config defines the configuration for a ledger node.
//
// Regardless of how a node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, the node relies on a data directory, defined by Config.DataDir,
// where it expects to find a few additional files:
//
//  priv_key // a plain text file containing the raw private key (cf. irohabg keygen).
//  peers.json // a JSON file containing the list of peers.
//  genesis.json // the genesis block (cf. irohabg genesis).
//  irohabg.toml // (optional) configuration options, also .json or .yaml.
package config
