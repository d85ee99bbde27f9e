package cmd

import (
	"fmt"

	"github.com/bugout-dev/discord-bots/leaderboard"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the application",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf(
			"version=%s commit=%s\n",
			leaderboard.Version,
			leaderboard.CommitSHA,
		)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
