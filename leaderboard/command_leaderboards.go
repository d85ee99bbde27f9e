package leaderboard

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// handleLeaderboards lists all leaderboards linked to the guild.
func (b *Bot) handleLeaderboards(i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		b.respondMessage(i, MessageGuildNotFound, false)
		return
	}

	if _, ok := b.store.GuildConfig(i.GuildID); !ok {
		b.respondMessage(i, "Guild not configured", false)
		return
	}

	leaderboards := b.store.Leaderboards(i.GuildID)
	if len(leaderboards) == 0 {
		b.respondMessage(i, "Guild has no linked leaderboards", false)
		return
	}

	var fields []embedField
	for _, l := range leaderboards {
		title := l.ShortName
		description := "-"
		if l.LeaderboardInfo != nil {
			title = l.LeaderboardInfo.Title
			description = l.LeaderboardInfo.Description
		}
		fields = append(
			fields,
			embedField{Name: "Short name", Value: l.ShortName},
			embedField{
				Name: "Title",
				Value: fmt.Sprintf(
					"[%s](%s/leaderboards/?leaderboard_id=%s)",
					title,
					b.config.MoonstreamURL,
					l.LeaderboardID,
				),
			},
			embedField{Name: "Description", Value: description},
		)
	}
	b.respondEmbed(i, dynamicEmbed("", "", fields), false)
}
