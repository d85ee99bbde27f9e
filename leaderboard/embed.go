package leaderboard

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	// Fields shown per page when paginating an embed
	paginationPageSize = 5

	customIDPagePrevious = "page_previous"
	customIDPageNext     = "page_next"
)

// embedField is a single name/value pair rendered in a dynamic embed.
type embedField struct {
	Name  string
	Value string
}

// dynamicEmbed builds an embed from the given title, description and
// field pairs. Fields render inline, two or three to a row depending
// on the client.
func dynamicEmbed(title string, description string, fields []embedField) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
	}
	for _, f := range fields {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:   f.Name,
				Value:  f.Value,
				Inline: true,
			},
		)
	}
	return embed
}

// paginator splits groups of embed fields into fixed-size pages
// navigated with previous/next buttons. Each group stays on a single
// page, so related fields are never split across a page boundary.
type paginator struct {
	title       string
	description string
	groups      [][]embedField

	currentPage int
	totalPages  int
}

func newPaginator(
	title string,
	description string,
	groups [][]embedField,
) *paginator {
	totalPages := len(groups) / paginationPageSize
	switch {
	case len(groups) == 0:
		totalPages = 1
	case len(groups)%paginationPageSize != 0:
		totalPages++
	}
	return &paginator{
		title:       title,
		description: description,
		groups:      groups,
		currentPage: 1,
		totalPages:  totalPages,
	}
}

// Previous moves back one page, stopping at the first page.
func (p *paginator) Previous() {
	if p.currentPage > 1 {
		p.currentPage--
	}
}

// Next moves forward one page, stopping at the last page.
func (p *paginator) Next() {
	if p.currentPage < p.totalPages {
		p.currentPage++
	}
}

// Embed renders the current page.
func (p *paginator) Embed() *discordgo.MessageEmbed {
	until := p.currentPage * paginationPageSize
	from := until - paginationPageSize
	if until > len(p.groups) {
		until = len(p.groups)
	}

	var fields []embedField
	for _, group := range p.groups[from:until] {
		fields = append(fields, group...)
	}
	description := p.description
	if description != "" {
		description += "\n\n"
	}
	description += fmt.Sprintf("Page: %d/%d", p.currentPage, p.totalPages)
	return dynamicEmbed(p.title, description, fields)
}

// Components renders the navigation row for the current page. Buttons
// at either boundary are grayed out and disabled.
func (p *paginator) Components() []discordgo.MessageComponent {
	previous := discordgo.Button{
		Label:    "<",
		Style:    discordgo.PrimaryButton,
		CustomID: customIDPagePrevious,
	}
	next := discordgo.Button{
		Label:    ">",
		Style:    discordgo.PrimaryButton,
		CustomID: customIDPageNext,
	}
	if p.currentPage == 1 {
		previous.Disabled = true
		previous.Style = discordgo.SecondaryButton
	}
	if p.currentPage == p.totalPages {
		next.Disabled = true
		next.Style = discordgo.SecondaryButton
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{previous, next},
		},
	}
}
