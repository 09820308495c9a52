package commands

import (
	"fmt"

	"github.com/mosaicnetworks/swirl/src/version"
	"github.com/spf13/cobra"
)

// VersionCmd displays the version of swirl and of its consensus protocol
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s (protocol %d)\n", version.Version, version.Protocol)
	},
}
