package ordering

import "time"

// Config holds the batching parameters.
type Config struct {
	// MaxProposalSize is the maximum number of transactions in a Proposal.
	MaxProposalSize int
	// ProposalDelay is the maximum time a transaction waits in the queue
	// before an under-full Proposal is cut.
	ProposalDelay time.Duration
	// PendingExpiry is how long a Gate remembers a forwarded transaction that
	// never shows up in a Proposal.
	PendingExpiry time.Duration
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		MaxProposalSize: 10,
		ProposalDelay:   5 * time.Second,
		PendingExpiry:   time.Minute,
	}
}
