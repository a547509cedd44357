package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ashwinbangalore/irohaBG/src/daemon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNode(cmd *cobra.Command, args []string) error {
	d := daemon.NewDaemon(_config)

	if err := d.Init(); err != nil {
		_config.Logger().WithError(err).Error("Cannot initialize node")
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		_config.Logger().Info("Shutting down")
		d.Shutdown()
	}()

	d.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-dir", _config.LogDir, "Directory for per-level log files")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for the node")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for the node")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.CacheSize, "Number of blocks in the store cache")

	// Pipeline
	cmd.Flags().Duration("proposal-delay", _config.ProposalDelay, "Longest wait before a proposal is cut")
	cmd.Flags().Duration("vote-delay", _config.VoteDelay, "Time a round collects votes before it is rejected")
	cmd.Flags().Duration("load-delay", _config.LoadDelay, "Timeout of a block download from one peer")
	cmd.Flags().Int("max-proposal-size", _config.MaxProposalSize, "Number of transactions that cuts a proposal")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":         _config.DataDir,
		"BindAddr":        _config.BindAddr,
		"AdvertiseAddr":   _config.AdvertiseAddr,
		"ServiceAddr":     _config.ServiceAddr,
		"NoService":       _config.NoService,
		"MaxPool":         _config.MaxPool,
		"Store":           _config.Store,
		"LogLevel":        _config.LogLevel,
		"LogDir":          _config.LogDir,
		"Moniker":         _config.Moniker,
		"TCPTimeout":      _config.TCPTimeout,
		"ProposalDelay":   _config.ProposalDelay,
		"VoteDelay":       _config.VoteDelay,
		"LoadDelay":       _config.LoadDelay,
		"MaxProposalSize": _config.MaxProposalSize,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
		logFields["CacheSize"] = _config.CacheSize
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

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

	// look for config file in [datadir]/irohabg.toml (.json, .yaml also work)
	viper.SetConfigName("irohabg")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in. The logger is only created once
	// the log options are final.
	found := true
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		found = false
	}

	// second unmarshal to read from config file
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	if found {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	}

	return nil
}
