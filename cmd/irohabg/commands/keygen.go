package commands

import (
	"fmt"
	"path/filepath"

	"github.com/ashwinbangalore/irohaBG/src/config"
	"github.com/ashwinbangalore/irohaBG/src/crypto/keys"
	"github.com/ashwinbangalore/irohaBG/src/daemon"
	"github.com/spf13/cobra"
)

var privKeyFile string

// NewKeygenCmd produces a KeygenCmd which create a key pair
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&privKeyFile, "priv", filepath.Join(_config.DataDir, config.DefaultKeyfile), "File where the private key will be written")
}

func keygen(cmd *cobra.Command, args []string) error {
	key, err := daemon.Keygen(privKeyFile)
	if err != nil {
		return fmt.Errorf("writing key: %w", err)
	}

	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)
	fmt.Printf("Your public key has been saved to: %s\n", filepath.Join(filepath.Dir(privKeyFile), "key.pub"))
	fmt.Println(keys.PublicKeyHex(&key.PublicKey))

	return nil
}
