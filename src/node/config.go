package node

import (
	"testing"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/ordering"
	"github.com/sirupsen/logrus"
)

// Config holds the pipeline parameters of a node.
type Config struct {
	ProposalDelay   time.Duration `mapstructure:"proposal-delay"`
	VoteDelay       time.Duration `mapstructure:"vote-delay"`
	LoadDelay       time.Duration `mapstructure:"load-delay"`
	MaxProposalSize int           `mapstructure:"max-proposal-size"`
	// PendingExpiry bounds how long the ordering gate remembers a forwarded
	// transaction that was never proposed.
	PendingExpiry time.Duration `mapstructure:"pending-expiry"`
	Logger        *logrus.Logger
}

// NewConfig ...
func NewConfig(proposalDelay time.Duration,
	voteDelay time.Duration,
	loadDelay time.Duration,
	maxProposalSize int,
	logger *logrus.Logger) *Config {

	return &Config{
		ProposalDelay:   proposalDelay,
		VoteDelay:       voteDelay,
		LoadDelay:       loadDelay,
		MaxProposalSize: maxProposalSize,
		PendingExpiry:   time.Minute,
		Logger:          logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		ProposalDelay:   5000 * time.Millisecond,
		VoteDelay:       5000 * time.Millisecond,
		LoadDelay:       5000 * time.Millisecond,
		MaxProposalSize: 10,
		PendingExpiry:   time.Minute,
		Logger:          logger,
	}
}

// TestConfig returns short delays and a logger writing to t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.ProposalDelay = 100 * time.Millisecond
	config.VoteDelay = time.Second
	config.LoadDelay = time.Second
	config.Logger = common.NewTestLogger(t)
	return config
}

func (c *Config) ordering() ordering.Config {
	return ordering.Config{
		MaxProposalSize: c.MaxProposalSize,
		ProposalDelay:   c.ProposalDelay,
		PendingExpiry:   c.PendingExpiry,
	}
}
