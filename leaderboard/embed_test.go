package leaderboard

import (
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldGroups(count int) [][]embedField {
	groups := make([][]embedField, 0, count)
	for i := 0; i < count; i++ {
		groups = append(
			groups, []embedField{
				{Name: fmt.Sprintf("name-%d", i), Value: fmt.Sprintf("value-%d", i)},
			},
		)
	}
	return groups
}

func TestNewPaginatorPageCounts(t *testing.T) {
	tests := []struct {
		groups   int
		expected int
	}{
		{groups: 0, expected: 1},
		{groups: 1, expected: 1},
		{groups: 5, expected: 1},
		{groups: 6, expected: 2},
		{groups: 10, expected: 2},
		{groups: 12, expected: 3},
	}
	for _, tt := range tests {
		t.Run(
			fmt.Sprintf("%d groups", tt.groups), func(t *testing.T) {
				p := newPaginator("title", "", fieldGroups(tt.groups))
				assert.Equal(t, tt.expected, p.totalPages)
				assert.Equal(t, 1, p.currentPage)
			},
		)
	}
}

func TestPaginatorNavigationClamps(t *testing.T) {
	p := newPaginator("title", "", fieldGroups(12))

	p.Previous()
	assert.Equal(t, 1, p.currentPage)

	p.Next()
	p.Next()
	assert.Equal(t, 3, p.currentPage)
	p.Next()
	assert.Equal(t, 3, p.currentPage)

	p.Previous()
	assert.Equal(t, 2, p.currentPage)
}

func TestPaginatorEmbedPages(t *testing.T) {
	p := newPaginator("Configuration", "Server overview", fieldGroups(7))

	embed := p.Embed()
	assert.Equal(t, "Configuration", embed.Title)
	assert.Contains(t, embed.Description, "Server overview")
	assert.Contains(t, embed.Description, "Page: 1/2")
	require.Len(t, embed.Fields, paginationPageSize)
	assert.Equal(t, "name-0", embed.Fields[0].Name)

	p.Next()
	embed = p.Embed()
	assert.Contains(t, embed.Description, "Page: 2/2")
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "name-5", embed.Fields[0].Name)
}

func TestPaginatorComponents(t *testing.T) {
	p := newPaginator("title", "", fieldGroups(6))

	buttonsAt := func() (discordgo.Button, discordgo.Button) {
		components := p.Components()
		require.Len(t, components, 1)
		row, ok := components[0].(discordgo.ActionsRow)
		require.True(t, ok)
		require.Len(t, row.Components, 2)
		previous, ok := row.Components[0].(discordgo.Button)
		require.True(t, ok)
		next, ok := row.Components[1].(discordgo.Button)
		require.True(t, ok)
		return previous, next
	}

	previous, next := buttonsAt()
	assert.True(t, previous.Disabled)
	assert.False(t, next.Disabled)
	assert.Equal(t, customIDPagePrevious, previous.CustomID)
	assert.Equal(t, customIDPageNext, next.CustomID)

	p.Next()
	previous, next = buttonsAt()
	assert.False(t, previous.Disabled)
	assert.True(t, next.Disabled)
}

func TestDynamicEmbedFieldsAreInline(t *testing.T) {
	embed := dynamicEmbed(
		"title",
		"description",
		[]embedField{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}},
	)
	require.Len(t, embed.Fields, 2)
	for _, field := range embed.Fields {
		assert.True(t, field.Inline)
	}
}
