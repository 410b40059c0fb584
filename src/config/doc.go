// Package config defines the configuration for a chorus node.
//
// Regardless of how chorus is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, chorus relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key // a plain text file containing the hex private key (cf. chorus keygen).
//  peers.json // a JSON file containing the fixed list of peers.
//  chorus.toml // (optional) configuration values, overridden by command line flags.
package config
