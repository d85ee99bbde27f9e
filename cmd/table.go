package cmd

import (
	"fmt"
	"log"
	"log/slog"

	"github.com/bugout-dev/discord-bots/leaderboard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var testTableLeaderboardID string

// testTableCmd renders a leaderboard score table to stdout, mostly
// useful for checking how a leaderboard's points data fits the column
// width budget.
var testTableCmd = &cobra.Command{
	Use:   "test-table [flags]",
	Short: "Fetch a leaderboard and print its score table",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		leaderboardID, err := uuid.Parse(testTableLeaderboardID)
		if err != nil {
			log.Fatalf("invalid leaderboard ID: %s", err.Error())
		}

		client := leaderboard.NewEngineClient(cfg.Engine, cfg.HTTPClient, slog.Default())

		info, err := client.LeaderboardInfo(ctx, leaderboardID)
		if err != nil {
			log.Printf("error fetching leaderboard info: %s", err.Error())
		} else {
			fmt.Println(info.Description)
		}

		scores, err := client.Scores(ctx, leaderboardID)
		if err != nil {
			log.Fatalf("error fetching leaderboard scores: %s", err.Error())
		}

		table := leaderboard.NewTabularData()
		table.SetColumns([]string{"rank", "address", "score"})
		table.AddScores(scores)
		fmt.Println(table.RenderRST())
	},
}

func init() {
	testTableCmd.Flags().StringVarP(
		&testTableLeaderboardID,
		"id",
		"i",
		"",
		"Leaderboard ID",
	)
	_ = testTableCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(testTableCmd)
}
