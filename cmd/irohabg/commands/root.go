package commands

import (
	"github.com/ashwinbangalore/irohaBG/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for irohabg
var RootCmd = &cobra.Command{
	Use:              "irohabg",
	Short:            "permissioned ledger node",
	TraverseChildren: true,
}
