// Package config defines the configuration for a SamCore hub.
//
// Regardless of how the hub is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object
// defined in this package to store and forward configuration options. On top
// of these options, the hub relies on a working directory, defined by
// Config.DataDir, where it expects to find:
//
//	SamCoreSettings.json // package metadata and per-node settings (created on first run).
//	<package>/           // one subdirectory per persistent node, holding its entry point.
package config
