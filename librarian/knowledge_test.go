package librarian

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOpenAI implements OpenAIClient with canned embeddings and chat
// completions, recording the requests it receives.
var _ OpenAIClient = (*fakeOpenAI)(nil)

type fakeOpenAI struct {
	embedCalls   int
	embedFunc    func(texts []string) [][]float32
	chatRequests []openai.ChatCompletionRequest
	chatFunc     func(request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (f *fakeOpenAI) CreateEmbeddings(
	_ context.Context,
	request openai.EmbeddingRequestConverter,
) (openai.EmbeddingResponse, error) {
	f.embedCalls++
	texts, ok := request.Convert().Input.([]string)
	if !ok {
		return openai.EmbeddingResponse{}, fmt.Errorf(
			"unexpected embedding input type %T",
			request.Convert().Input,
		)
	}
	vectors := f.embedFunc(texts)
	response := openai.EmbeddingResponse{}
	for i, vector := range vectors {
		response.Data = append(
			response.Data,
			openai.Embedding{Index: i, Embedding: vector},
		)
	}
	return response, nil
}

func (f *fakeOpenAI) CreateChatCompletion(
	_ context.Context,
	request openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	f.chatRequests = append(f.chatRequests, request)
	if f.chatFunc != nil {
		return f.chatFunc(request)
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "I don't know."}},
		},
	}, nil
}

// flatEmbedder maps every text to the same vector, ignoring content.
func flatEmbedder(texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors
}

// mappedEmbedder looks vectors up by text, falling back to a unit
// vector for unknown inputs.
func mappedEmbedder(vectors map[string][]float32) func([]string) [][]float32 {
	return func(texts []string) [][]float32 {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if vector, ok := vectors[text]; ok {
				out[i] = vector
			} else {
				out[i] = []float32{1, 0, 0}
			}
		}
		return out
	}
}

type journalEntry struct {
	title   string
	content string
	tags    []string
}

func journalHandler(t *testing.T, entries *[]journalEntry) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/journals/journal-1/search", r.URL.Path)
		assert.Equal(t, knowledgeQuery, r.URL.Query().Get("q"))
		assert.Equal(t, "true", r.URL.Query().Get("content"))
		assert.Equal(t, "Bearer spire-token", r.Header.Get("Authorization"))

		results := JournalSearchResults{TotalResults: len(*entries)}
		for _, entry := range *entries {
			results.Results = append(
				results.Results, JournalSearchResult{
					Title:   entry.title,
					Content: entry.content,
					Tags:    entry.tags,
				},
			)
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(results))
	}
}

func newTestKnowledgeBase(
	t *testing.T,
	entries *[]journalEntry,
	client *fakeOpenAI,
) *KnowledgeBase {
	t.Helper()
	server := httptest.NewServer(journalHandler(t, entries))
	t.Cleanup(server.Close)

	spire := newSpireClient(
		SpireConfig{
			URL:         server.URL,
			AccessToken: "spire-token",
			JournalID:   "journal-1",
		},
		server.Client(),
		testLogger(),
	)
	config := OpenAIConfig{
		EmbeddingModel:  DefaultEmbeddingModel,
		CompletionModel: DefaultCompletionModel,
	}
	return newKnowledgeBase(spire, client, config, testLogger())
}

func promptEntry(prefix string, postfix string) journalEntry {
	content, _ := json.Marshal(Prompt{Prefix: prefix, Postfix: postfix})
	return journalEntry{
		title:   "prompt",
		content: string(content),
		tags:    []string{"bot_username:librarian", tagFunctionPrompt},
	}
}

func dataEntry(content string) journalEntry {
	return journalEntry{
		title:   "data",
		content: content,
		tags:    []string{"bot_username:librarian", tagFunctionData},
	}
}

func TestKnowledgeBaseRefresh(t *testing.T) {
	entries := []journalEntry{
		dataEntry("Moonstream is a web3 analytics platform."),
		promptEntry("Answer the question.", " Be brief."),
	}
	client := &fakeOpenAI{embedFunc: flatEmbedder}
	kb := newTestKnowledgeBase(t, &entries, client)

	require.NoError(t, kb.Refresh(context.Background()))
	assert.Equal(t, 1, client.embedCalls)
	require.Len(t, kb.chunks, 1)
	assert.Equal(
		t,
		"Moonstream is a web3 analytics platform.",
		kb.chunks[0].Text,
	)
	assert.Equal(t, "Answer the question.", kb.prompt.Prefix)
	assert.Equal(t, " Be brief.", kb.prompt.Postfix)

	// Unchanged data must not be re-embedded.
	require.NoError(t, kb.Refresh(context.Background()))
	assert.Equal(t, 1, client.embedCalls)

	entries[0] = dataEntry("Moonstream indexes blockchains.")
	require.NoError(t, kb.Refresh(context.Background()))
	assert.Equal(t, 2, client.embedCalls)
	require.Len(t, kb.chunks, 1)
	assert.Equal(t, "Moonstream indexes blockchains.", kb.chunks[0].Text)
}

func TestKnowledgeBaseRefreshEntryCount(t *testing.T) {
	entries := []journalEntry{dataEntry("only the data entry")}
	client := &fakeOpenAI{embedFunc: flatEmbedder}
	kb := newTestKnowledgeBase(t, &entries, client)

	err := kb.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedJournalEntries)
	assert.Zero(t, client.embedCalls)
}

func TestKnowledgeBaseRefreshBadPrompt(t *testing.T) {
	entries := []journalEntry{
		dataEntry("some knowledge"),
		{
			title:   "prompt",
			content: "not json at all",
			tags:    []string{tagFunctionPrompt},
		},
	}
	client := &fakeOpenAI{embedFunc: flatEmbedder}
	kb := newTestKnowledgeBase(t, &entries, client)

	err := kb.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt")
}

func TestKnowledgeBaseAnswer(t *testing.T) {
	question := "what is moonstream"
	finalQuestion := "Answer the question. Source text: what is moonstream. Be brief."

	vectors := map[string][]float32{
		"Moonstream is a web3 analytics platform.": {1, 0, 0},
		finalQuestion: {1, 0, 0},
	}
	entries := []journalEntry{
		dataEntry("Moonstream is a web3 analytics platform."),
		promptEntry("Answer the question.", " Be brief."),
	}
	client := &fakeOpenAI{
		embedFunc: mappedEmbedder(vectors),
		chatFunc: func(request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{
				Choices: []openai.ChatCompletionChoice{
					{
						Message: openai.ChatCompletionMessage{
							Content: "  An analytics platform.\n",
						},
					},
				},
			}, nil
		},
	}
	kb := newTestKnowledgeBase(t, &entries, client)
	require.NoError(t, kb.Refresh(context.Background()))

	answer, err := kb.Answer(context.Background(), question)
	require.NoError(t, err)
	assert.Equal(t, "An analytics platform.", answer)

	require.Len(t, client.chatRequests, 1)
	request := client.chatRequests[0]
	assert.Equal(t, DefaultCompletionModel, request.Model)
	require.Len(t, request.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, request.Messages[0].Role)
	assert.Contains(
		t,
		request.Messages[0].Content,
		"Moonstream is a web3 analytics platform.",
	)
	assert.Equal(t, openai.ChatMessageRoleUser, request.Messages[1].Role)
	assert.Equal(t, finalQuestion, request.Messages[1].Content)
}

func TestKnowledgeBaseAnswerWithoutKnowledge(t *testing.T) {
	kb := newKnowledgeBase(
		nil,
		&fakeOpenAI{embedFunc: flatEmbedder},
		OpenAIConfig{},
		testLogger(),
	)
	_, err := kb.Answer(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestSimilaritySearch(t *testing.T) {
	chunks := []chunk{
		{Text: "east", Embedding: []float32{1, 0}},
		{Text: "north", Embedding: []float32{0, 1}},
		{Text: "northeast", Embedding: []float32{1, 1}},
		{Text: "west", Embedding: []float32{-1, 0}},
	}

	documents := similaritySearch(chunks, []float32{1, 0.2}, 2)
	assert.Equal(t, []string{"east", "northeast"}, documents)

	// A limit past the number of chunks returns everything, ranked.
	documents = similaritySearch(chunks, []float32{0, 1}, 10)
	require.Len(t, documents, 4)
	assert.Equal(t, "north", documents[0])
	assert.Equal(t, "west", documents[3])
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(
		t, 1.0, cosineSimilarity([]float32{3, 4}, []float32{3, 4}), 1e-9,
	)
	assert.InDelta(
		t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9,
	)
	assert.InDelta(
		t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9,
	)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosineSimilarity(nil, nil))
}

func TestSplitText(t *testing.T) {
	t.Run(
		"short text is a single chunk", func(t *testing.T) {
			texts := splitText("Moonstream is a web3 analytics platform.")
			require.Len(t, texts, 1)
			assert.Equal(
				t, "Moonstream is a web3 analytics platform.", texts[0],
			)
		},
	)

	t.Run(
		"empty text yields nothing", func(t *testing.T) {
			assert.Empty(t, splitText(""))
		},
	)

	t.Run(
		"oversized paragraph becomes its own chunk", func(t *testing.T) {
			huge := strings.Repeat("x", 1500)
			texts := splitText(huge + "\n\nshort tail")
			require.Len(t, texts, 2)
			assert.Equal(t, huge, texts[0])
			assert.Equal(t, "short tail", texts[1])
		},
	)

	t.Run(
		"paragraphs merge with trailing overlap", func(t *testing.T) {
			var paragraphs []string
			for i := 0; i < 12; i++ {
				paragraphs = append(
					paragraphs,
					fmt.Sprintf("p%02d-%s", i, strings.Repeat("x", 95)),
				)
			}
			texts := splitText(strings.Join(paragraphs, "\n\n"))
			require.Len(t, texts, 2)

			assert.True(t, strings.HasPrefix(texts[0], "p00-"))
			assert.Contains(t, texts[0], "p08-")
			assert.NotContains(t, texts[0], "p09-")
			assert.LessOrEqual(t, len(texts[0]), chunkSize)

			// The last paragraph of the first chunk carries over.
			assert.True(t, strings.HasPrefix(texts[1], "p08-"))
			assert.Contains(t, texts[1], "p11-")
		},
	)
}

func TestHasTag(t *testing.T) {
	tags := []string{"bot_username:librarian", tagFunctionData}
	assert.True(t, hasTag(tags, tagFunctionData))
	assert.False(t, hasTag(tags, tagFunctionPrompt))
	assert.False(t, hasTag(nil, tagFunctionData))
}
