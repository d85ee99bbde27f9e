package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/url"

	"github.com/bugout-dev/discord-bots/leaderboard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configsDiscordServerID string
	configsCommands        string
	configsThumbnailURL    string
)

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "Work with Discord server configurations stored in Brood",
}

var configsListCmd = &cobra.Command{
	Use:   "list [flags]",
	Short: "List Discord server configuration resources",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		client := leaderboard.NewBroodClient(cfg.Brood, cfg.HTTPClient, slog.Default())

		params := url.Values{}
		if configsDiscordServerID != "" {
			params.Set("discord_server_id", configsDiscordServerID)
		}
		resources, err := client.ListResources(
			ctx,
			leaderboard.ResourceTypeGuildConfig,
			params,
		)
		if err != nil {
			log.Fatalf("error listing resources: %s", err.Error())
		}
		printJSON(resources)
	},
}

var configsSetCommandsCmd = &cobra.Command{
	Use:   "set-commands [flags]",
	Short: "Set or drop the command rename table of a Discord server",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		client := leaderboard.NewBroodClient(cfg.Brood, cfg.HTTPClient, slog.Default())

		resourceID, err := guildResourceID(cmd, client, configsDiscordServerID)
		if err != nil {
			log.Fatalf("error finding resource: %s", err.Error())
		}

		update := map[string]any{}
		var dropKeys []string
		if configsCommands != "" {
			var commands []leaderboard.ConfigCommand
			if err := json.Unmarshal([]byte(configsCommands), &commands); err != nil {
				log.Fatalf("unable to parse commands JSON: %s", err.Error())
			}
			update["commands"] = commands
		} else {
			dropKeys = []string{"commands"}
		}

		resource, err := client.UpdateResource(ctx, resourceID, update, dropKeys)
		if err != nil {
			log.Fatalf("error updating resource: %s", err.Error())
		}
		printJSON(resource)
	},
}

var configsSetThumbnailURLCmd = &cobra.Command{
	Use:   "set-thumbnail-url [flags]",
	Short: "Set or drop the embed thumbnail URL of a Discord server",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		client := leaderboard.NewBroodClient(cfg.Brood, cfg.HTTPClient, slog.Default())

		resourceID, err := guildResourceID(cmd, client, configsDiscordServerID)
		if err != nil {
			log.Fatalf("error finding resource: %s", err.Error())
		}

		update := map[string]any{}
		var dropKeys []string
		if configsThumbnailURL != "" {
			update["thumbnail_url"] = configsThumbnailURL
		} else {
			dropKeys = []string{"thumbnail_url"}
		}

		resource, err := client.UpdateResource(ctx, resourceID, update, dropKeys)
		if err != nil {
			log.Fatalf("error updating resource: %s", err.Error())
		}
		printJSON(resource)
	},
}

// guildResourceID finds the single config resource for the given guild.
func guildResourceID(
	cmd *cobra.Command,
	client *leaderboard.BroodClient,
	discordServerID string,
) (uuid.UUID, error) {
	params := url.Values{}
	params.Set("discord_server_id", discordServerID)
	resources, err := client.ListResources(
		cmd.Context(),
		leaderboard.ResourceTypeGuildConfig,
		params,
	)
	if err != nil {
		return uuid.Nil, err
	}
	if len(resources.Resources) != 1 {
		return uuid.Nil, fmt.Errorf(
			"found %d resources for specified discord-server-id %s",
			len(resources.Resources),
			discordServerID,
		)
	}
	return resources.Resources[0].ID, nil
}

func printJSON(v any) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("error encoding output: %s", err.Error())
	}
	fmt.Println(string(output))
}

func init() {
	configsListCmd.Flags().StringVar(
		&configsDiscordServerID,
		"discord-server-id",
		"",
		"Discord server ID to find",
	)

	configsSetCommandsCmd.Flags().StringVar(
		&configsDiscordServerID,
		"discord-server-id",
		"",
		"Discord server ID",
	)
	configsSetCommandsCmd.Flags().StringVar(
		&configsCommands,
		"commands",
		"",
		`Command rename table as JSON, like [{"origin":"rank","renamed":"standing"}]`,
	)
	_ = configsSetCommandsCmd.MarkFlagRequired("discord-server-id")

	configsSetThumbnailURLCmd.Flags().StringVar(
		&configsDiscordServerID,
		"discord-server-id",
		"",
		"Discord server ID",
	)
	configsSetThumbnailURLCmd.Flags().StringVar(
		&configsThumbnailURL,
		"thumbnail-url",
		"",
		"Discord server thumbnail url",
	)
	_ = configsSetThumbnailURLCmd.MarkFlagRequired("discord-server-id")

	configsCmd.AddCommand(configsListCmd)
	configsCmd.AddCommand(configsSetCommandsCmd)
	configsCmd.AddCommand(configsSetThumbnailURLCmd)
	rootCmd.AddCommand(configsCmd)
}
