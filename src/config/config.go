package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/node"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the validator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel        = "debug"
	DefaultBindAddr        = "127.0.0.1:1337"
	DefaultServiceAddr     = "127.0.0.1:8000"
	DefaultTCPTimeout      = 1000 * time.Millisecond
	DefaultCacheSize       = 10000
	DefaultMaxPool         = 2
	DefaultStore           = false
	DefaultProposalDelay   = 5000 * time.Millisecond
	DefaultVoteDelay       = 5000 * time.Millisecond
	DefaultLoadDelay       = 5000 * time.Millisecond
	DefaultMaxProposalSize = 10
)

// Config contains all the configuration properties of a ledger node.
type Config struct {
	// DataDir is the top-level directory containing the key, the peers, the
	// genesis block and, unless DatabaseDir says otherwise, the database.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogDir, when set, receives one log file per level on top of the console
	// output.
	LogDir string `mapstructure:"log-dir"`

	// BindAddr is the local address:port where this node talks to other
	// nodes. Use AdvertiseAddr to advertise a different address when the bind
	// address is not routable.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of RPC connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of blocks in the store's cache.
	CacheSize int `mapstructure:"cache-size"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// ProposalDelay is the longest a queued transaction waits before the
	// ordering peer cuts a Proposal.
	ProposalDelay time.Duration `mapstructure:"proposal-delay"`

	// VoteDelay is how long a round collects votes before it is rejected.
	VoteDelay time.Duration `mapstructure:"vote-delay"`

	// LoadDelay bounds a single block download from one peer.
	LoadDelay time.Duration `mapstructure:"load-delay"`

	// MaxProposalSize is the number of transactions that triggers a Proposal
	// without waiting for ProposalDelay.
	MaxProposalSize int `mapstructure:"max-proposal-size"`

	// Key is the private key of the validator.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:         DefaultDataDir(),
		LogLevel:        DefaultLogLevel,
		BindAddr:        DefaultBindAddr,
		ServiceAddr:     DefaultServiceAddr,
		TCPTimeout:      DefaultTCPTimeout,
		CacheSize:       DefaultCacheSize,
		MaxPool:         DefaultMaxPool,
		Store:           DefaultStore,
		DatabaseDir:     DefaultDatabaseDir(),
		ProposalDelay:   DefaultProposalDelay,
		VoteDelay:       DefaultVoteDelay,
		LoadDelay:       DefaultLoadDelay,
		MaxProposalSize: DefaultMaxProposalSize,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// NodeConfig extracts the pipeline parameters.
func (c *Config) NodeConfig() *node.Config {
	return node.NewConfig(
		c.ProposalDelay,
		c.VoteDelay,
		c.LoadDelay,
		c.MaxProposalSize,
		c.baseLogger(),
	)
}

// Logger returns a formatted logrus Entry, with prefix set to "irohabg".
func (c *Config) Logger() *logrus.Entry {
	return c.baseLogger().WithField("prefix", "irohabg")
}

func (c *Config) baseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogDir != "" {
			c.logger.Hooks.Add(lfshook.NewHook(c.logFiles(), &logrus.JSONFormatter{}))
		}
	}
	return c.logger
}

// logFiles maps each level to a file in LogDir.
func (c *Config) logFiles() lfshook.PathMap {
	pathMap := lfshook.PathMap{}
	if err := os.MkdirAll(c.LogDir, 0700); err != nil {
		return pathMap
	}
	for _, l := range logrus.AllLevels {
		if l > LogLevel(c.LogLevel) {
			continue
		}
		pathMap[l] = filepath.Join(c.LogDir, l.String()+".log")
	}
	return pathMap
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".IrohaBG")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "IrohaBG")
		} else {
			return filepath.Join(home, ".irohabg")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
