package leaderboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

const (
	customIDRankSelectPrefix     = "rank_select:"
	customIDPositionSelectPrefix = "position_select:"
)

// handleRank resolves the channel to a leaderboard and shows the
// identity's rank with full score formatting. Channels bound to several
// leaderboards prompt the user with a select menu first.
func (b *Bot) handleRank(ctx context.Context, i *discordgo.InteractionCreate) {
	identity := commandOption(i, identityOption)
	leaderboard, ok := b.resolveChannelLeaderboard(i, identity, customIDRankSelectPrefix)
	if !ok {
		return
	}
	b.sendRankResult(ctx, i, leaderboard.LeaderboardID, identity)
}

// resolveChannelLeaderboard performs the shared routing for rank and
// position lookups: validate the input, route the channel, and either
// return the single bound leaderboard or prompt with a select menu
// whose custom ID carries the identity. A false return means the
// interaction has already been responded to.
func (b *Bot) resolveChannelLeaderboard(
	i *discordgo.InteractionCreate,
	identity string,
	selectPrefix string,
) (*ConfigLeaderboard, bool) {
	if i.GuildID == "" {
		b.respondMessage(i, MessageGuildNotFound, false)
		return nil, false
	}
	if _, ok := b.store.GuildConfig(i.GuildID); !ok {
		b.respondMessage(i, MessageLeaderboardNotFound, false)
		return nil, false
	}
	if i.ChannelID == "" {
		b.respondMessage(i, MessageChannelNotFound, false)
		return nil, false
	}
	if !validateQueryInput(identity) {
		b.respondMessage(i, MessagePositionNotFound, true)
		return nil, false
	}

	leaderboards := b.store.Leaderboards(i.GuildID)
	route := routeChannel(leaderboards, i.ChannelID)
	switch {
	case route.none():
		b.respondMessage(i, MessageLeaderboardNotFound, false)
		return nil, false
	case route.ambiguous():
		if len(route.Candidates) >= maxSelectCandidates {
			b.respondMessage(
				i,
				"Too many leaderboards linked to channel, please connect to Discord server administrator",
				false,
			)
			return nil, false
		}
		b.promptLeaderboardSelect(i, identity, selectPrefix, route.Candidates)
		return nil, false
	}

	for idx := range leaderboards {
		if leaderboards[idx].LeaderboardID == route.LeaderboardID {
			selected := leaderboards[idx]
			b.respondMessage(
				i,
				fmt.Sprintf(
					"Looking for **%s** in **%s**",
					identity,
					selected.ShortName,
				),
				true,
			)
			return &selected, true
		}
	}
	b.respondMessage(i, MessageLeaderboardNotFound, false)
	return nil, false
}

// promptLeaderboardSelect asks the user to pick one of several
// leaderboards bound to the channel.
func (b *Bot) promptLeaderboardSelect(
	i *discordgo.InteractionCreate,
	identity string,
	selectPrefix string,
	candidates []ConfigLeaderboard,
) {
	options := make([]discordgo.SelectMenuOption, 0, len(candidates))
	for _, l := range candidates {
		options = append(
			options, discordgo.SelectMenuOption{
				Label: l.ShortName,
				Value: l.LeaderboardID.String(),
			},
		)
	}

	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{
					{Description: "There are multiple leaderboards, please select one"},
				},
				Flags: discordgo.MessageFlagsEphemeral,
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.SelectMenu{
								CustomID:    selectPrefix + identity,
								Placeholder: "Choose a leaderboard",
								Options:     options,
							},
						},
					},
				},
			},
		},
	)
	if err != nil {
		b.logger.Error("error sending leaderboard select", tint.Err(err))
	}
}

// handleLeaderboardSelect finishes a rank or position lookup after the
// user picked a leaderboard from the select menu. The identity rides in
// the component's custom ID.
func (b *Bot) handleLeaderboardSelect(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	command string,
) {
	componentData := i.MessageComponentData()
	identity := componentData.CustomID
	switch command {
	case SlashCommandRank:
		identity = strings.TrimPrefix(identity, customIDRankSelectPrefix)
	case SlashCommandPosition:
		identity = strings.TrimPrefix(identity, customIDPositionSelectPrefix)
	}

	if len(componentData.Values) != 1 {
		b.logger.Error("wrong selection", "values", componentData.Values)
		return
	}
	leaderboardID, err := uuid.Parse(componentData.Values[0])
	if err != nil {
		b.logger.Error("invalid leaderboard selection", tint.Err(err))
		return
	}

	err = b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		},
	)
	if err != nil {
		b.logger.Error("error acknowledging selection", tint.Err(err))
		return
	}

	switch command {
	case SlashCommandRank:
		b.sendRankResult(ctx, i, leaderboardID, identity)
	case SlashCommandPosition:
		b.sendPositionResult(ctx, i, leaderboardID, identity)
	}
}

// sendRankResult fetches the identity's entry and sends the formatted
// rank embed as a followup.
func (b *Bot) sendRankResult(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	leaderboardID uuid.UUID,
	identity string,
) {
	info, infoErr := b.engine.LeaderboardInfo(ctx, leaderboardID)
	if infoErr != nil {
		b.logger.Warn(
			"unable to fetch leaderboard info",
			"leaderboard_id", leaderboardID,
			tint.Err(infoErr),
		)
	}
	score, err := b.engine.Position(ctx, leaderboardID, identity)
	if err != nil {
		b.followupMessage(i, MessageRankNotFound, true)
		return
	}

	embed := b.rankEmbed(i.GuildID, info, *score)
	b.followupEmbed(i, embed, false)
}

// rankEmbed renders a rank lookup with the full score display rules
// (prefix/postfix, unit conversion, progress lines) applied.
func (b *Bot) rankEmbed(
	guildID string,
	info *LeaderboardInfo,
	score Score,
) *discordgo.MessageEmbed {
	rendered := renderPosition(score)

	title := "Rank"
	if info != nil {
		title = fmt.Sprintf("Rank at %s", info.Title)
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: rendered.Description,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Rank", Value: fmt.Sprintf("%d", score.Rank), Inline: true},
			{Name: rendered.AddressLabel, Value: score.Address, Inline: true},
			{Name: "Score", Value: rendered.Score, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Powered by Moonstream"},
	}
	embed.Thumbnail = &discordgo.MessageEmbedThumbnail{
		URL: b.store.ThumbnailURL(guildID, b.config.Discord.ThumbnailURL),
	}
	return embed
}
