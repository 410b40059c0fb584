package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for Chorus
var RootCmd = &cobra.Command{
	Use:              "chorus",
	Short:            "chorus hashgraph consensus",
	TraverseChildren: true,
}
