package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for swirl
var RootCmd = &cobra.Command{
	Use:              "swirl",
	Short:            "hashgraph consensus simulator",
	TraverseChildren: true,
}
