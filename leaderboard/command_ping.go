package leaderboard

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// handlePing responds with bot metadata and the gateway round-trip
// latency.
func (b *Bot) handlePing(i *discordgo.InteractionCreate) {
	description := fmt.Sprintf(
		"**Pong**\n- Bot name: %s\n- Version: %s\n- Latency: %dms\n\n**Support Discord**: %s\n",
		DefaultBotName,
		Version,
		b.discord.session.HeartbeatLatency().Milliseconds(),
		b.config.Discord.SupportLink,
	)

	embed := &discordgo.MessageEmbed{
		Description: description,
		Thumbnail: &discordgo.MessageEmbedThumbnail{
			URL: b.store.ThumbnailURL(i.GuildID, b.config.Discord.ThumbnailURL),
		},
	}
	b.respondEmbed(i, embed, false)
}
