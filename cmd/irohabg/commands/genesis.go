package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/ledger"
	"github.com/spf13/cobra"
)

var genesisOpts struct {
	datadir   string
	domain    string
	admin     string
	adminKey  string
	assets    []string
	timestamp int64
}

// NewGenesisCmd produces a command that writes genesis.json. Every peer of a
// network must start from the same file.
func NewGenesisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Create the genesis block",
		RunE:  genesis,
	}

	AddGenesisFlags(cmd)

	return cmd
}

//AddGenesisFlags adds flags to the genesis command
func AddGenesisFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&genesisOpts.datadir, "datadir", _config.DataDir, "Directory where genesis.json is written")
	cmd.Flags().StringVar(&genesisOpts.domain, "domain", "test", "Domain created at genesis")
	cmd.Flags().StringVar(&genesisOpts.admin, "admin", "admin", "Name of the administrator account")
	cmd.Flags().StringVar(&genesisOpts.adminKey, "admin-key", "", "Public key of the administrator (defaults to [datadir]/key.pub)")
	cmd.Flags().StringSliceVar(&genesisOpts.assets, "asset", []string{"coin:2"}, "Asset to create, as name:precision")
	cmd.Flags().Int64Var(&genesisOpts.timestamp, "timestamp", 0, "Creation time in unix ms (defaults to now)")
}

func genesis(cmd *cobra.Command, args []string) error {
	adminKey := genesisOpts.adminKey
	if adminKey == "" {
		data, err := os.ReadFile(filepath.Join(genesisOpts.datadir, "key.pub"))
		if err != nil {
			return fmt.Errorf("reading admin key: %w", err)
		}
		adminKey = strings.TrimSpace(string(data))
	}

	pub, err := common.DecodeFromString(adminKey)
	if err != nil {
		return fmt.Errorf("decoding admin key: %w", err)
	}

	assets, err := parseAssets(genesisOpts.assets)
	if err != nil {
		return err
	}

	ts := genesisOpts.timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	tx := ledger.NewGenesisTransaction(genesisOpts.domain, genesisOpts.admin, pub, assets, ts)

	block, err := ledger.NewGenesisBlock([]*ledger.Transaction{tx}, ts)
	if err != nil {
		return err
	}

	if err := ledger.WriteGenesis(genesisOpts.datadir, block); err != nil {
		return err
	}

	fmt.Printf("Genesis block %s saved to: %s\n", block.Hex(), filepath.Join(genesisOpts.datadir, "genesis.json"))

	return nil
}

func parseAssets(specs []string) ([]ledger.GenesisAsset, error) {
	assets := make([]ledger.GenesisAsset, 0, len(specs))
	for _, s := range specs {
		name, precision, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("asset %q should be name:precision", s)
		}
		p, err := strconv.ParseUint(precision, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", s, err)
		}
		assets = append(assets, ledger.GenesisAsset{Name: name, Precision: uint8(p)})
	}
	return assets, nil
}
