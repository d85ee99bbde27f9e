package cmd

import (
	"log"

	"github.com/bugout-dev/discord-bots/leaderboard"
	"github.com/bugout-dev/discord-bots/librarian"
	"github.com/spf13/cobra"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Operate the leaderboard Discord bot",
}

var leaderboardRunCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Starts the leaderboard bot and (optionally) the HTTP API",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		bot, err := leaderboard.New(cfg)
		if err != nil {
			log.Fatalf("error creating leaderboard bot: %s", err.Error())
		}

		if err = bot.Run(ctx); err != nil {
			log.Fatalf("error running leaderboard bot: %s", err.Error())
		}
	},
}

var leaderboardAPICmd = &cobra.Command{
	Use:   "api [flags]",
	Short: "Serves only the leaderboard HTTP API, without the gateway bot",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		cfg.API.Enabled = true
		bot, err := leaderboard.New(cfg)
		if err != nil {
			log.Fatalf("error creating leaderboard bot: %s", err.Error())
		}

		if err = bot.RunAPI(ctx); err != nil {
			log.Fatalf("error running leaderboard api: %s", err.Error())
		}
	},
}

var librarianCmd = &cobra.Command{
	Use:   "librarian",
	Short: "Operate the librarian Discord bot",
}

var librarianRunCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Starts the librarian Q&A bot",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		bot, err := librarian.New(librarianCfg)
		if err != nil {
			log.Fatalf("error creating librarian bot: %s", err.Error())
		}

		if err = bot.Run(ctx); err != nil {
			log.Fatalf("error running librarian bot: %s", err.Error())
		}
	},
}

func init() {
	leaderboardCmd.AddCommand(leaderboardRunCmd)
	leaderboardCmd.AddCommand(leaderboardAPICmd)
	librarianCmd.AddCommand(librarianRunCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(librarianCmd)
}
