package librarian

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessageSession struct {
	sent    []string
	sendErr error
}

func (s *stubMessageSession) ChannelMessageSend(
	_ string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	s.sent = append(s.sent, content)
	return &discordgo.Message{Content: content}, s.sendErr
}

func newTestBot(t *testing.T, client *fakeOpenAI) *Bot {
	t.Helper()
	config := DefaultConfig()
	config.Discord.Token = "discord-token"
	config.Discord.ApplicationID = "42"
	config.Discord.Username = "librarian"

	kb := newKnowledgeBase(nil, client, config.OpenAI, testLogger())
	kb.chunks = []chunk{
		{
			Text:      "Moonstream is a web3 analytics platform.",
			Embedding: []float32{1, 0, 0},
		},
	}
	kb.prompt = Prompt{Prefix: "Answer:", Postfix: " Be brief."}

	return &Bot{
		config:    config,
		logger:    testLogger(),
		knowledge: kb,
	}
}

func botMessage(content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: "100", Username: "someone"},
		Mentions: []*discordgo.User{
			{ID: "42", Username: "librarian"},
		},
	}
}

func TestHandleMessageAnswersQuestion(t *testing.T) {
	client := &fakeOpenAI{embedFunc: flatEmbedder}
	bot := newTestBot(t, client)
	session := &stubMessageSession{}

	bot.handleMessage(
		context.Background(),
		session,
		botMessage("<@42> what is moonstream"),
	)

	require.Len(t, session.sent, 1)
	assert.Equal(t, "I don't know.", session.sent[0])

	require.Len(t, client.chatRequests, 1)
	assert.Equal(
		t,
		"Answer: Source text: what is moonstream. Be brief.",
		client.chatRequests[0].Messages[1].Content,
	)
}

func TestHandleMessageSendsDefaultResponseOnFailure(t *testing.T) {
	client := &fakeOpenAI{
		embedFunc: flatEmbedder,
		chatFunc: func(_ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, errors.New("model unavailable")
		},
	}
	bot := newTestBot(t, client)
	session := &stubMessageSession{}

	bot.handleMessage(
		context.Background(),
		session,
		botMessage("<@42> what is moonstream"),
	)

	require.Len(t, session.sent, 1)
	assert.Equal(t, DefaultResponse, session.sent[0])
}

func TestHandleMessageIgnores(t *testing.T) {
	tests := []struct {
		name    string
		message *discordgo.Message
		guildID string
	}{
		{
			name: "own message",
			message: &discordgo.Message{
				ChannelID: "c1",
				GuildID:   "g1",
				Content:   "<@42> hello",
				Author:    &discordgo.User{ID: "42", Username: "librarian"},
				Mentions: []*discordgo.User{
					{ID: "42", Username: "librarian"},
				},
			},
		},
		{
			name: "direct message",
			message: &discordgo.Message{
				ChannelID: "c1",
				Content:   "<@42> hello",
				Author:    &discordgo.User{ID: "100", Username: "someone"},
				Mentions: []*discordgo.User{
					{ID: "42", Username: "librarian"},
				},
			},
		},
		{
			name:    "foreign guild",
			message: botMessage("<@42> hello"),
			guildID: "g2",
		},
		{
			name: "mention of another user",
			message: &discordgo.Message{
				ChannelID: "c1",
				GuildID:   "g1",
				Content:   "<@77> hello",
				Author:    &discordgo.User{ID: "100", Username: "someone"},
				Mentions: []*discordgo.User{
					{ID: "77", Username: "someone-else"},
				},
			},
		},
		{
			name:    "no question after mention",
			message: botMessage("<@42>"),
		},
		{
			name: "plain message without mention",
			message: &discordgo.Message{
				ChannelID: "c1",
				GuildID:   "g1",
				Content:   "just chatting",
				Author:    &discordgo.User{ID: "100", Username: "someone"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				client := &fakeOpenAI{embedFunc: flatEmbedder}
				bot := newTestBot(t, client)
				bot.config.Discord.GuildID = tt.guildID
				session := &stubMessageSession{}

				bot.handleMessage(context.Background(), session, tt.message)

				assert.Empty(t, session.sent)
				assert.Empty(t, client.chatRequests)
			},
		)
	}
}

func TestMentionsBot(t *testing.T) {
	bot := newTestBot(t, &fakeOpenAI{embedFunc: flatEmbedder})

	assert.True(t, bot.mentionsBot(botMessage("<@42> hi")))
	assert.False(
		t, bot.mentionsBot(
			&discordgo.Message{
				Mentions: []*discordgo.User{
					{ID: "42", Username: "impostor"},
				},
			},
		),
	)
	assert.False(t, bot.mentionsBot(&discordgo.Message{}))
	assert.False(
		t,
		bot.mentionsBot(&discordgo.Message{Mentions: []*discordgo.User{nil}}),
	)
}
