package leaderboard

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

// handlePosition resolves the channel to a leaderboard and shows the
// identity's raw position without the score formatting rules.
func (b *Bot) handlePosition(ctx context.Context, i *discordgo.InteractionCreate) {
	identity := commandOption(i, identityOption)
	leaderboard, ok := b.resolveChannelLeaderboard(
		i,
		identity,
		customIDPositionSelectPrefix,
	)
	if !ok {
		return
	}
	b.sendPositionResult(ctx, i, leaderboard.LeaderboardID, identity)
}

// sendPositionResult fetches the identity's entry and sends the
// position embed as a followup.
func (b *Bot) sendPositionResult(
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
		b.followupMessage(i, MessagePositionNotFound, false)
		return
	}

	title := "Position leaderboard"
	if info != nil {
		title = fmt.Sprintf("Position at %s leaderboard", info.Title)
	}
	embed := &discordgo.MessageEmbed{
		Title: title,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Address", Value: score.Address, Inline: true},
			{Name: "Rank", Value: fmt.Sprintf("%d", score.Rank), Inline: true},
			{Name: "Score", Value: fmt.Sprintf("%d", score.Score), Inline: true},
			{
				Name: "Links",
				Value: fmt.Sprintf(
					"[Address at Starkscan](https://starkscan.co/contract/%s)",
					score.Address,
				),
				Inline: true,
			},
		},
	}
	b.followupEmbed(i, embed, false)
}
