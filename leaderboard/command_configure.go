package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

const (
	customIDConfigureLinkButton   = "configure_link_button"
	customIDConfigureUnlinkButton = "configure_unlink_button"
	customIDConfigureRolesButton  = "configure_roles_button"
	customIDConfigureRolesSelect  = "configure_roles_select"
	customIDConfigureLinkModal    = "configure_link_modal"
	customIDConfigureUnlinkModal  = "configure_unlink_modal"

	customIDConfigureLeaderboardIDInput = "configure_leaderboard_id_input"
	customIDConfigureShortNameInput     = "configure_short_name_input"
	customIDConfigureChannelIDsInput    = "configure_channel_ids_input"

	maxAuthorizedRoleSelections = 5
)

// handleConfigure shows the guild's configuration to an authorized
// caller: linked leaderboards (paginated), authorized roles, and
// buttons for linking, unlinking and role management.
func (b *Bot) handleConfigure(i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		b.respondMessage(i, MessageGuildNotFound, false)
		return
	}
	if !b.callerIsAuthorized(i) {
		b.respondMessage(i, MessageAccessDenied, false)
		return
	}

	leaderboards := b.store.Leaderboards(i.GuildID)
	roles := b.store.AuthRoles(i.GuildID)

	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, role.Name)
	}
	allowedRoles := "**-**"
	if len(roleNames) > 0 {
		allowedRoles = strings.Join(roleNames, ", ")
	}

	groups := make([][]embedField, 0, len(leaderboards))
	for _, l := range leaderboards {
		groups = append(
			groups, []embedField{
				{
					Name: "Leaderboard ID",
					Value: fmt.Sprintf(
						"[%s](%s/leaderboards/?leaderboard_id=%s)",
						l.LeaderboardID,
						b.config.MoonstreamURL,
						l.LeaderboardID,
					),
				},
				{Name: "Short name", Value: l.ShortName},
				{Name: "Channel IDs", Value: strings.Join(l.ChannelIDs, ", ")},
			},
		)
	}

	pager := newPaginator(
		"Leaderboard bot configuration of Discord server",
		fmt.Sprintf(
			"Allowed roles to manage Discord server configuration: %s",
			allowedRoles,
		),
		groups,
	)

	buttonsRow := discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Authorize role",
				Style:    discordgo.SecondaryButton,
				CustomID: customIDConfigureRolesButton,
			},
			discordgo.Button{
				Label:    "Link leaderboard",
				Style:    discordgo.SecondaryButton,
				CustomID: customIDConfigureLinkButton,
			},
			discordgo.Button{
				Label:    "Unlink leaderboard",
				Style:    discordgo.SecondaryButton,
				CustomID: customIDConfigureUnlinkButton,
				Disabled: len(leaderboards) == 0,
			},
		},
	}
	components := append(
		[]discordgo.MessageComponent{buttonsRow},
		pager.Components()...,
	)

	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds:     []*discordgo.MessageEmbed{pager.Embed()},
				Flags:      discordgo.MessageFlagsEphemeral,
				Components: components,
			},
		},
	)
	if err != nil {
		b.logger.Error("error sending configure response", tint.Err(err))
		return
	}

	msg, err := b.discord.session.InteractionResponse(i.Interaction)
	if err != nil {
		return
	}
	b.discord.paginators.Store(
		msg.ID,
		&paginatedMessage{pager: pager, extraRows: []discordgo.MessageComponent{buttonsRow}},
	)
}

// paginatedMessage tracks a live paginated response: the paginator and
// the non-navigation component rows to preserve across page edits.
type paginatedMessage struct {
	pager     *paginator
	extraRows []discordgo.MessageComponent
}

// handlePageNavigation edits a paginated message in place when the
// previous/next buttons are clicked.
func (b *Bot) handlePageNavigation(i *discordgo.InteractionCreate, customID string) {
	if i.Message == nil {
		return
	}
	value, ok := b.discord.paginators.Load(i.Message.ID)
	if !ok {
		b.logger.Warn("no paginator for message", "message_id", i.Message.ID)
		return
	}
	paged := value.(*paginatedMessage)

	switch customID {
	case customIDPagePrevious:
		paged.pager.Previous()
	case customIDPageNext:
		paged.pager.Next()
	}

	components := append(
		append([]discordgo.MessageComponent{}, paged.extraRows...),
		paged.pager.Components()...,
	)
	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Embeds:     []*discordgo.MessageEmbed{paged.pager.Embed()},
				Components: components,
			},
		},
	)
	if err != nil {
		b.logger.Error("error updating paginated message", tint.Err(err))
	}
}

// callerIsAuthorized applies the administrative access policy for the
// interaction's guild.
func (b *Bot) callerIsAuthorized(i *discordgo.InteractionCreate) bool {
	user := getDiscordUser(i)
	if user == nil {
		return false
	}

	var ownerID string
	guild, err := b.discord.session.Guild(i.GuildID)
	if err != nil {
		b.logger.Warn(
			"unable to fetch guild",
			"guild_id", i.GuildID,
			tint.Err(err),
		)
	} else {
		ownerID = guild.OwnerID
	}

	return isAuthorized(
		user.ID,
		memberRoleIDs(i),
		b.store.AuthRoles(i.GuildID),
		ownerID,
	)
}

func (b *Bot) handleConfigureLinkButton(i *discordgo.InteractionCreate) {
	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: customIDConfigureLinkModal,
				Title:    "Link leaderboard to server",
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.TextInput{
								CustomID:    customIDConfigureLeaderboardIDInput,
								Label:       "Leaderboard ID",
								Style:       discordgo.TextInputShort,
								Placeholder: "Leaderboard identification number in UUID format",
								Required:    true,
							},
						},
					},
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.TextInput{
								CustomID:    customIDConfigureShortNameInput,
								Label:       "Leaderboard name",
								Style:       discordgo.TextInputShort,
								Placeholder: "Leaderboard short name for autocomplete",
								Required:    true,
							},
						},
					},
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.TextInput{
								CustomID:    customIDConfigureChannelIDsInput,
								Label:       "Comma-separated list of Discord channel IDs",
								Style:       discordgo.TextInputShort,
								Placeholder: "Discord channel ID, could be nullable",
								Value:       i.ChannelID,
								Required:    false,
							},
						},
					},
				},
			},
		},
	)
	if err != nil {
		b.logger.Error("error sending link modal", tint.Err(err))
	}
}

func (b *Bot) handleConfigureUnlinkButton(i *discordgo.InteractionCreate) {
	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: customIDConfigureUnlinkModal,
				Title:    "Unlink leaderboard",
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.TextInput{
								CustomID:    customIDConfigureLeaderboardIDInput,
								Label:       "Leaderboard ID",
								Style:       discordgo.TextInputShort,
								Placeholder: "Leaderboard identification number in UUID format",
								Required:    true,
							},
						},
					},
				},
			},
		},
	)
	if err != nil {
		b.logger.Error("error sending unlink modal", tint.Err(err))
	}
}

// handleConfigureRolesButton prompts with a role select for authorizing
// additional roles.
func (b *Bot) handleConfigureRolesButton(i *discordgo.InteractionCreate) {
	maxValues := maxAuthorizedRoleSelections
	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.SelectMenu{
								MenuType:    discordgo.RoleSelectMenu,
								CustomID:    customIDConfigureRolesSelect,
								Placeholder: "Choose a role",
								MaxValues:   maxValues,
							},
						},
					},
				},
			},
		},
	)
	if err != nil {
		b.logger.Error("error sending role select", tint.Err(err))
	}
}

// handleConfigureRolesSelect merges the selected roles into the guild's
// authorized role list.
func (b *Bot) handleConfigureRolesSelect(ctx context.Context, i *discordgo.InteractionCreate) {
	if !b.callerIsAuthorized(i) {
		b.respondMessage(i, MessageAccessDenied, true)
		return
	}
	componentData := i.MessageComponentData()

	roles := make([]ConfigRole, 0, len(componentData.Values))
	for _, roleID := range componentData.Values {
		role := ConfigRole{ID: roleID, Name: roleID}
		if componentData.Resolved.Roles != nil {
			if resolved, ok := componentData.Resolved.Roles[roleID]; ok {
				role.Name = resolved.Name
			}
		}
		roles = append(roles, role)
	}

	b.ackEphemeral(i)

	merged, err := b.store.UpdateAuthorizedRoles(ctx, i.GuildID, roles)
	if err != nil {
		b.logger.Error(
			"unable to update authorized roles",
			"guild_id", i.GuildID,
			tint.Err(err),
		)
		b.followupMessage(i, MessageInternalServerError, true)
		return
	}

	names := make([]string, 0, len(merged))
	for _, role := range merged {
		names = append(names, role.Name)
	}
	b.followupMessage(
		i,
		fmt.Sprintf("Authorized roles: %s", strings.Join(names, ", ")),
		true,
	)
}

// handleConfigureLinkSubmit links a new leaderboard to the guild.
// The engine API must know the leaderboard, and it must not already be
// linked; the Brood write happens before the mirror is updated.
func (b *Bot) handleConfigureLinkSubmit(ctx context.Context, i *discordgo.InteractionCreate) {
	if !b.callerIsAuthorized(i) {
		b.respondMessage(i, MessageAccessDenied, true)
		return
	}

	data := i.ModalSubmitData()
	rawID := modalInputValue(data, customIDConfigureLeaderboardIDInput)
	shortName := modalInputValue(data, customIDConfigureShortNameInput)
	rawChannelIDs := modalInputValue(data, customIDConfigureChannelIDsInput)

	b.ackEphemeral(i)

	leaderboardID, err := uuid.Parse(rawID)
	if err != nil {
		b.followupMessage(
			i,
			fmt.Sprintf("Incorrect leaderboard UUID format %s", rawID),
			false,
		)
		return
	}

	linked, err := b.store.LinkLeaderboard(
		ctx, i.GuildID, ConfigLeaderboard{
			LeaderboardID: leaderboardID,
			ShortName:     shortName,
			ChannelIDs:    parseChannelIDs(rawChannelIDs),
		},
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrLeaderboardAlreadyLinked):
			b.followupMessage(
				i,
				fmt.Sprintf(
					"Leaderboard with ID: **%s** already linked to this Discord server",
					leaderboardID,
				),
				false,
			)
		case errors.Is(err, ErrLeaderboardNotFound):
			b.followupMessage(
				i,
				fmt.Sprintf("Leaderboard with ID %s not found", leaderboardID),
				false,
			)
		default:
			b.logger.Error(
				"unable to link leaderboard",
				"guild_id", i.GuildID,
				"leaderboard_id", leaderboardID,
				tint.Err(err),
			)
			b.followupMessage(i, MessageInternalServerError, false)
		}
		return
	}

	b.followupEmbed(
		i, dynamicEmbed(
			"New leaderboard linked to Discord server",
			"",
			[]embedField{
				{Name: "Leaderboard ID", Value: linked.LeaderboardID.String()},
				{Name: "Name", Value: linked.ShortName},
				{Name: "Channel IDs", Value: strings.Join(linked.ChannelIDs, ", ")},
			},
		), false,
	)
}

// handleConfigureUnlinkSubmit removes a linked leaderboard from the
// guild.
func (b *Bot) handleConfigureUnlinkSubmit(ctx context.Context, i *discordgo.InteractionCreate) {
	if !b.callerIsAuthorized(i) {
		b.respondMessage(i, MessageAccessDenied, true)
		return
	}

	rawID := modalInputValue(
		i.ModalSubmitData(),
		customIDConfigureLeaderboardIDInput,
	)

	b.ackEphemeral(i)

	leaderboardID, err := uuid.Parse(rawID)
	if err != nil {
		b.followupMessage(
			i,
			fmt.Sprintf("Incorrect leaderboard UUID format %s", rawID),
			false,
		)
		return
	}

	if err = b.store.UnlinkLeaderboard(ctx, i.GuildID, leaderboardID); err != nil {
		if errors.Is(err, ErrLeaderboardNotLinked) {
			b.followupMessage(
				i,
				fmt.Sprintf(
					"Leaderboard with ID: **%s** not found in linked to this Discord server",
					leaderboardID,
				),
				false,
			)
			return
		}
		b.logger.Error(
			"unable to unlink leaderboard",
			"guild_id", i.GuildID,
			"leaderboard_id", leaderboardID,
			tint.Err(err),
		)
		b.followupMessage(i, MessageInternalServerError, false)
		return
	}

	b.followupEmbed(
		i, dynamicEmbed(
			"Unlinked leaderboard from Discord server",
			"",
			[]embedField{
				{Name: "Leaderboard ID", Value: leaderboardID.String()},
			},
		), false,
	)
}

// parseChannelIDs splits a comma-separated channel ID list, dropping
// whitespace, duplicates and anything that isn't a numeric snowflake.
func parseChannelIDs(raw string) []string {
	seen := map[string]bool{}
	var channelIDs []string
	for _, part := range strings.Split(strings.ReplaceAll(raw, " ", ""), ",") {
		if part == "" || seen[part] {
			continue
		}
		if !isSnowflake(part) {
			continue
		}
		seen[part] = true
		channelIDs = append(channelIDs, part)
	}
	return channelIDs
}

func isSnowflake(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
