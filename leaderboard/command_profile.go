package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	customIDProfileLinkButton   = "profile_link_button"
	customIDProfileUnlinkButton = "profile_unlink_button"
	customIDProfileLinkModal    = "profile_link_modal"
	customIDProfileUnlinkModal  = "profile_unlink_modal"

	customIDProfileIdentifierInput = "profile_identifier_input"
	customIDProfileNameInput       = "profile_name_input"
)

// handleProfile shows the user's registered identities with buttons to
// link a new one or unlink an existing one. Everything is ephemeral.
func (b *Bot) handleProfile(i *discordgo.InteractionCreate) {
	user := getDiscordUser(i)
	if user == nil {
		b.respondMessage(i, MessageInternalServerError, true)
		return
	}

	identities := b.store.UserIdentities(user.ID)

	var fields []embedField
	for _, ident := range identities {
		fields = append(
			fields,
			embedField{Name: "Identity", Value: ident.Identifier},
			embedField{Name: "Name", Value: ident.Name},
			embedField{Name: "​", Value: "​"},
		)
	}
	description := ""
	if len(identities) == 0 {
		description = "There are no linked identities"
	}

	linkButton := discordgo.Button{
		Label:    "Link new identification",
		Style:    discordgo.SecondaryButton,
		CustomID: customIDProfileLinkButton,
	}
	unlinkButton := discordgo.Button{
		Label:    "Unpin the identification",
		Style:    discordgo.SecondaryButton,
		CustomID: customIDProfileUnlinkButton,
		Disabled: len(identities) == 0,
	}

	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{
					dynamicEmbed(
						"Identities linked to Discord user",
						description,
						fields,
					),
				},
				Flags: discordgo.MessageFlagsEphemeral,
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							linkButton,
							unlinkButton,
						},
					},
				},
			},
		},
	)
	if err != nil {
		b.logger.Error("error sending profile response", tint.Err(err))
	}
}

func (b *Bot) handleProfileLinkButton(i *discordgo.InteractionCreate) {
	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: customIDProfileLinkModal,
				Title:    "Add new identity for user",
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.TextInput{
								CustomID:    customIDProfileIdentifierInput,
								Label:       "Field identifier (address, NFT, class, etc)",
								Style:       discordgo.TextInputShort,
								Placeholder: "0x...",
								Required:    true,
							},
						},
					},
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.TextInput{
								CustomID:    customIDProfileNameInput,
								Label:       "Name",
								Style:       discordgo.TextInputShort,
								Placeholder: "My main address",
								Required:    true,
							},
						},
					},
				},
			},
		},
	)
	if err != nil {
		b.logger.Error("error sending identity modal", tint.Err(err))
	}
}

func (b *Bot) handleProfileUnlinkButton(i *discordgo.InteractionCreate) {
	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: customIDProfileUnlinkModal,
				Title:    "Remove identity",
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.TextInput{
								CustomID:    customIDProfileIdentifierInput,
								Label:       "Field identifier",
								Style:       discordgo.TextInputShort,
								Placeholder: "0x...",
								Required:    true,
							},
						},
					},
				},
			},
		},
	)
	if err != nil {
		b.logger.Error("error sending identity removal modal", tint.Err(err))
	}
}

// handleProfileLinkSubmit persists a new identity resource and reports
// the result. The mirror is only updated once Brood confirms the write.
func (b *Bot) handleProfileLinkSubmit(ctx context.Context, i *discordgo.InteractionCreate) {
	user := getDiscordUser(i)
	if user == nil {
		return
	}
	data := i.ModalSubmitData()
	identifier := modalInputValue(data, customIDProfileIdentifierInput)
	name := modalInputValue(data, customIDProfileNameInput)

	b.ackEphemeral(i)

	identity, err := b.store.AddUserIdentity(ctx, user.ID, identifier, name)
	if err != nil {
		if errors.Is(err, ErrIdentityExists) {
			b.followupMessage(i, "Identity already attached to your profile", true)
			return
		}
		b.logger.Error(
			"unable to save user identity",
			"user_id", user.ID,
			tint.Err(err),
		)
		b.followupMessage(i, MessageInternalServerError, true)
		return
	}

	b.followupEmbed(
		i, dynamicEmbed(
			"New identity linked to Discord account",
			"",
			[]embedField{
				{Name: "Identity", Value: identity.Identifier},
				{Name: "Name", Value: identity.Name},
			},
		), true,
	)
}

// handleProfileUnlinkSubmit removes an identity and its backing Brood
// resource.
func (b *Bot) handleProfileUnlinkSubmit(ctx context.Context, i *discordgo.InteractionCreate) {
	user := getDiscordUser(i)
	if user == nil {
		return
	}
	identifier := modalInputValue(i.ModalSubmitData(), customIDProfileIdentifierInput)

	b.ackEphemeral(i)

	if len(b.store.UserIdentities(user.ID)) == 0 {
		b.followupMessage(
			i,
			"User does not have any identity linked to Discord account",
			true,
		)
		return
	}

	removed, err := b.store.RemoveUserIdentity(ctx, user.ID, identifier)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			b.followupMessage(
				i,
				fmt.Sprintf("Identity: **%s** not found in user list", identifier),
				true,
			)
			return
		}
		b.logger.Error(
			"unable to remove user identity",
			"user_id", user.ID,
			tint.Err(err),
		)
		b.followupMessage(i, MessageInternalServerError, true)
		return
	}

	b.followupEmbed(
		i, dynamicEmbed(
			"Unlinked identity from Discord account",
			"",
			[]embedField{{Name: "Identity", Value: removed.Name}},
		), true,
	)
}

// ackEphemeral defers the interaction response so slower Brood writes
// can finish before the followup.
func (b *Bot) ackEphemeral(i *discordgo.InteractionCreate) {
	err := b.discord.session.InteractionRespond(
		i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
			},
		},
	)
	if err != nil {
		b.logger.Error("error deferring interaction response", tint.Err(err))
	}
}
