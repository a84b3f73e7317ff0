package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sceneforge/internal/version"
)

var versionDetailed bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		if versionDetailed {
			fmt.Println(version.GetDetailedVersion())
			return
		}
		fmt.Printf("sceneforge %s\n", version.GetShortVersion())
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "print full build information")
	rootCmd.AddCommand(versionCmd)
}
