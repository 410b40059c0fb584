package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/chorus/src/chorus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a Chorus node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runChorus,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runChorus(cmd *cobra.Command, args []string) error {
	engine := chorus.NewChorus(&_config.Chorus)

	if err := engine.Init(); err != nil {
		_config.Chorus.Logger().WithError(err).Error("Cannot initialize engine")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Chorus.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Chorus.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Chorus.LogFile, "File receiving a JSON copy of the logs")
	cmd.Flags().String("moniker", _config.Chorus.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Chorus.BindAddr, "Listen IP:Port for chorus node")
	cmd.Flags().StringP("advertise", "a", _config.Chorus.AdvertiseAddr, "Advertise IP:Port for chorus node")
	cmd.Flags().DurationP("timeout", "t", _config.Chorus.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.Chorus.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.Chorus.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Chorus.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Chorus.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Chorus.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Bool("bootstrap", _config.Chorus.Bootstrap, "Load from database")
	cmd.Flags().Int("cache-size", _config.Chorus.CacheSize, "Number of items in LRU caches")

	// Node configuration
	cmd.Flags().Duration("heartbeat", _config.Chorus.HeartbeatTimeout, "Time between gossips")
	cmd.Flags().Duration("slow-heartbeat", _config.Chorus.SlowHeartbeatTimeout, "Time between gossips while idle")
	cmd.Flags().Int("sync-retries", _config.Chorus.SyncRetries, "Retries of a failed pull")
	cmd.Flags().Int("sync-limit", _config.Chorus.SyncLimit, "Max number of events for sync")
	cmd.Flags().Int("max-fetch-depth", _config.Chorus.MaxFetchDepth, "Max number of requests to fetch missing parents")
	cmd.Flags().Int("stats-interval", _config.Chorus.StatsInterval, "Gossip ticks between stats log lines")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Chorus.SetDataDir(_config.Chorus.DataDir)

	logFields := logrus.Fields{
		"chorus.DataDir":              _config.Chorus.DataDir,
		"chorus.BindAddr":             _config.Chorus.BindAddr,
		"chorus.AdvertiseAddr":        _config.Chorus.AdvertiseAddr,
		"chorus.ServiceAddr":          _config.Chorus.ServiceAddr,
		"chorus.NoService":            _config.Chorus.NoService,
		"chorus.MaxPool":              _config.Chorus.MaxPool,
		"chorus.Store":                _config.Chorus.Store,
		"chorus.LogLevel":             _config.Chorus.LogLevel,
		"chorus.Moniker":              _config.Chorus.Moniker,
		"chorus.HeartbeatTimeout":     _config.Chorus.HeartbeatTimeout,
		"chorus.SlowHeartbeatTimeout": _config.Chorus.SlowHeartbeatTimeout,
		"chorus.TCPTimeout":           _config.Chorus.TCPTimeout,
		"chorus.SyncRetries":          _config.Chorus.SyncRetries,
		"chorus.CacheSize":            _config.Chorus.CacheSize,
		"chorus.SyncLimit":            _config.Chorus.SyncLimit,
		"chorus.MaxFetchDepth":        _config.Chorus.MaxFetchDepth,
	}

	if _config.Chorus.Store {
		logFields["chorus.DatabaseDir"] = _config.Chorus.DatabaseDir
		logFields["chorus.Bootstrap"] = _config.Chorus.Bootstrap
	}

	_config.Chorus.Logger().WithFields(logFields).Debug("RUN")

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

	// look for config file in [datadir]/chorus.toml (.json, .yaml also work)
	viper.SetConfigName("chorus")               // name of config file (without extension)
	viper.AddConfigPath(_config.Chorus.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Chorus.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Chorus.Logger().Debugf("No config file found in: %s", _config.Chorus.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
