package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashwinbangalore/irohaBG/src/crypto"
)

const genesisFile = "genesis.json"

// NewGenesisBlock builds the block at GenesisHeight. Its transactions are
// applied without signature or permission checks.
func NewGenesisBlock(txs []*Transaction, createdTime int64) (*Block, error) {
	return NewBlock(GenesisHeight, crypto.ZeroHash(), txs, createdTime)
}

// GenesisAsset describes an asset created at genesis.
type GenesisAsset struct {
	Name      string
	Precision uint8
}

// NewGenesisTransaction creates the domain, an administrator account holding
// every permission, and the given assets in that domain.
func NewGenesisTransaction(domainID, adminName string, adminPubKey []byte, assets []GenesisAsset, createdTime int64) *Transaction {
	adminID := adminName + "@" + domainID

	cmds := []Command{
		CreateDomain(domainID),
		CreateAccount(adminName, domainID, adminPubKey),
	}
	for _, p := range AllPermissions {
		// CreateAccount already grants the default permissions
		if isDefaultPermission(p) {
			continue
		}
		cmds = append(cmds, GrantPermission(adminID, p))
	}
	for _, a := range assets {
		cmds = append(cmds, CreateAsset(a.Name, domainID, a.Precision))
	}

	return NewTransaction(adminID, createdTime, cmds...)
}

func isDefaultPermission(p string) bool {
	for _, d := range DefaultPermissions {
		if d == p {
			return true
		}
	}
	return false
}

// ReadGenesis reads genesis.json from a directory.
func ReadGenesis(dir string) (*Block, error) {
	data, err := os.ReadFile(filepath.Join(dir, genesisFile))
	if err != nil {
		return nil, err
	}

	block := new(Block)
	if err := block.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", genesisFile, err)
	}

	if block.Height() != GenesisHeight {
		return nil, fmt.Errorf("genesis block has height %d", block.Height())
	}

	if err := block.VerifyHash(); err != nil {
		return nil, err
	}

	return block, nil
}

// WriteGenesis writes genesis.json into a directory.
func WriteGenesis(dir string, block *Block) error {
	data, err := block.Marshal()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, genesisFile), data, 0644)
}
