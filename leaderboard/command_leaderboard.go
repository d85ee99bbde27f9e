package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

// handleLeaderboard replies immediately that the leaderboard is being
// processed, then fetches its metadata and top scores and posts the
// rendered table to the channel. Lookup failures collapse into a single
// user-facing "not found" message.
func (b *Bot) handleLeaderboard(ctx context.Context, i *discordgo.InteractionCreate) {
	rawID := commandOption(i, leaderboardIDOption)
	b.respondMessage(
		i,
		fmt.Sprintf("Processing leaderboard with ID %s", rawID),
		false,
	)

	leaderboardID, err := uuid.Parse(rawID)
	if err != nil {
		b.sendChannelEmbed(
			i,
			&discordgo.MessageEmbed{Description: MessageLeaderboardNotFound},
		)
		return
	}

	info, infoErr := b.engine.LeaderboardInfo(ctx, leaderboardID)
	scores, scoresErr := b.engine.Scores(ctx, leaderboardID)
	if infoErr != nil && scoresErr != nil {
		b.sendChannelEmbed(
			i,
			&discordgo.MessageEmbed{Description: MessageLeaderboardNotFound},
		)
		return
	}

	if user := getDiscordUser(i); user != nil {
		if _, err = b.discord.session.ChannelMessageSend(
			i.ChannelID, user.Mention(),
		); err != nil {
			b.reportChannelSendFailure(i, err)
			return
		}
	}
	b.sendChannelEmbed(i, b.leaderboardEmbed(info, scores))
}

// leaderboardEmbed renders a leaderboard's description and score table.
// Either part may be missing when the corresponding fetch failed.
func (b *Bot) leaderboardEmbed(
	info *LeaderboardInfo,
	scores []Score,
) *discordgo.MessageEmbed {
	var table string
	if scores != nil {
		tabular := NewTabularData()
		tabular.SetColumns([]string{"rank", "address", "score"})
		tabular.AddScores(scores)
		table = tabular.RenderRST()
	}

	var title string
	var infoDescription string
	embed := &discordgo.MessageEmbed{}
	if info != nil {
		title = info.Title
		infoDescription = strings.ReplaceAll(info.Description, "\\n", "\n")
		embed.URL = fmt.Sprintf(
			"%s/leaderboards/?leaderboard_id=%s",
			b.config.MoonstreamURL,
			info.ID,
		)
	}

	embed.Title = title
	embed.Description = fmt.Sprintf("\n%s\n\n`%s`\n", infoDescription, table)
	return embed
}

// sendChannelEmbed posts an embed to the interaction's channel,
// falling back to a DM when the bot lacks channel send permissions.
func (b *Bot) sendChannelEmbed(
	i *discordgo.InteractionCreate,
	embed *discordgo.MessageEmbed,
) {
	_, err := b.discord.session.ChannelMessageSendEmbed(i.ChannelID, embed)
	if err != nil {
		b.reportChannelSendFailure(i, err)
	}
}

// reportChannelSendFailure tells the user via DM that the bot can't
// post in the channel. Other send errors are only logged.
func (b *Bot) reportChannelSendFailure(i *discordgo.InteractionCreate, err error) {
	var restErr *discordgo.RESTError
	forbidden := errors.As(err, &restErr) &&
		restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusForbidden

	if !forbidden {
		b.logger.Error(
			"unable to send message to channel",
			"channel_id", i.ChannelID,
			tint.Err(err),
		)
		return
	}

	b.logger.Warn(
		"not enough permissions to send messages in channel",
		"channel_id", i.ChannelID,
		"guild_id", i.GuildID,
	)
	user := getDiscordUser(i)
	if user == nil {
		return
	}
	dm, dmErr := b.discord.session.UserChannelCreate(user.ID)
	if dmErr != nil {
		b.logger.Error("unable to open DM channel", tint.Err(dmErr))
		return
	}
	_, dmErr = b.discord.session.ChannelMessageSendEmbed(
		dm.ID, &discordgo.MessageEmbed{
			Description: fmt.Sprintf(
				"Not enough permissions for **%s** bot to send messages in channel <#%s>. "+
					"Please communicate with bot in other channel or ask Discord server "+
					"administrator to manage bot permissions.",
				DefaultBotName,
				i.ChannelID,
			),
		},
	)
	if dmErr != nil {
		b.logger.Error("unable to send DM notification", tint.Err(dmErr))
	}
}

// autocompleteLeaderboard suggests the guild's linked leaderboards by
// short name; choice values carry the leaderboard ID.
func (b *Bot) autocompleteLeaderboard(i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		b.respondAutocomplete(i, nil)
		return
	}

	current := commandOption(i, leaderboardIDOption)
	matched := filterLeaderboards(b.store.Leaderboards(i.GuildID), current)

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(matched))
	for _, l := range matched {
		choices = append(
			choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  l.ShortName,
				Value: l.LeaderboardID.String(),
			},
		)
	}
	b.respondAutocomplete(i, choices)
}

// autocompleteIdentity suggests the user's registered identities;
// choice values carry the identifier.
func (b *Bot) autocompleteIdentity(i *discordgo.InteractionCreate) {
	user := getDiscordUser(i)
	if user == nil {
		b.respondAutocomplete(i, nil)
		return
	}

	current := commandOption(i, identityOption)
	matched := filterIdentities(b.store.UserIdentities(user.ID), current)

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(matched))
	for _, ident := range matched {
		name := fmt.Sprintf("%s - %s", ident.Identifier, ident.Name)
		if len(name) > autocompleteChoiceNameMaxLength {
			name = name[:autocompleteChoiceNameMaxLength]
		}
		choices = append(
			choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  name,
				Value: ident.Identifier,
			},
		)
	}
	b.respondAutocomplete(i, choices)
}
