package librarian

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// The bot's journal holds exactly two entries tagged for it: one with
// the knowledge text, one with the prompt prefix/postfix.
const (
	knowledgeQuery = "tag:bot_username:librarian"

	tagFunctionData   = "function:data"
	tagFunctionPrompt = "function:prompt"
)

const (
	chunkSeparator = "\n\n"
	chunkSize      = 1000
	chunkOverlap   = 200

	// retrievalChunks is how many knowledge chunks are passed to the
	// completion as context for a question.
	retrievalChunks = 4
)

var ErrUnexpectedJournalEntries = errors.New(
	"unexpected number of journal entries",
)

// Prompt wraps the question sent to the completion model. Prefix and
// postfix come from the journal's prompt entry.
type Prompt struct {
	Prefix  string `json:"prefix"`
	Postfix string `json:"postfix"`
}

// OpenAIClient is the part of the OpenAI API surface the knowledge base
// uses.
type OpenAIClient interface {
	CreateEmbeddings(
		ctx context.Context,
		request openai.EmbeddingRequestConverter,
	) (openai.EmbeddingResponse, error)
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

type chunk struct {
	Text      string
	Embedding []float32
}

// KnowledgeBase holds the bot's knowledge text as embedded chunks plus
// the current prompt. Refresh re-fetches both from the Spire journal;
// the knowledge text is hash-compared so embeddings are only recomputed
// when it actually changed.
type KnowledgeBase struct {
	mu sync.RWMutex

	spire  *SpireClient
	client OpenAIClient
	config OpenAIConfig
	logger *slog.Logger

	dataHash string
	chunks   []chunk
	prompt   Prompt
}

func newKnowledgeBase(
	spire *SpireClient,
	client OpenAIClient,
	config OpenAIConfig,
	logger *slog.Logger,
) *KnowledgeBase {
	return &KnowledgeBase{
		spire:  spire,
		client: client,
		config: config,
		logger: logger.With(loggerNameKey, "knowledge"),
	}
}

// Refresh fetches the bot's journal entries and updates the prompt and,
// when the knowledge text changed, the chunk embeddings.
func (k *KnowledgeBase) Refresh(ctx context.Context) error {
	response, err := k.spire.Search(ctx, knowledgeQuery)
	if err != nil {
		return fmt.Errorf("unable to search journal: %w", err)
	}
	if response.TotalResults != 2 {
		return fmt.Errorf(
			"%w: %d",
			ErrUnexpectedJournalEntries,
			response.TotalResults,
		)
	}

	for _, result := range response.Results {
		switch {
		case hasTag(result.Tags, tagFunctionData):
			if err := k.refreshData(ctx, result.Content); err != nil {
				return err
			}
		case hasTag(result.Tags, tagFunctionPrompt):
			if err := k.refreshPrompt(result.Content); err != nil {
				return err
			}
		default:
			k.logger.Warn(
				"journal entry without function tag",
				"title", result.Title,
				"tags", result.Tags,
			)
		}
	}
	return nil
}

func (k *KnowledgeBase) refreshData(ctx context.Context, content string) error {
	newHash := md5Hash(content)

	k.mu.RLock()
	unchanged := k.dataHash == newHash
	k.mu.RUnlock()
	if unchanged {
		return nil
	}

	texts := splitText(content)
	embeddings, err := k.embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("unable to embed knowledge text: %w", err)
	}

	chunks := make([]chunk, len(texts))
	for i, text := range texts {
		chunks[i] = chunk{Text: text, Embedding: embeddings[i]}
	}

	k.mu.Lock()
	k.chunks = chunks
	k.dataHash = newHash
	k.mu.Unlock()

	k.logger.Info(
		"regenerated embeddings for source data",
		"chunks", len(chunks),
	)
	return nil
}

func (k *KnowledgeBase) refreshPrompt(content string) error {
	var prompt Prompt
	if err := json.Unmarshal([]byte(content), &prompt); err != nil {
		return fmt.Errorf("unable to parse journal prompt entry: %w", err)
	}
	k.mu.Lock()
	k.prompt = prompt
	k.mu.Unlock()
	return nil
}

// Answer wraps the question in the current prompt, retrieves the most
// similar knowledge chunks and asks the completion model.
func (k *KnowledgeBase) Answer(ctx context.Context, question string) (string, error) {
	k.mu.RLock()
	prompt := k.prompt
	chunks := k.chunks
	k.mu.RUnlock()

	if len(chunks) == 0 {
		return "", errors.New("knowledge base is empty")
	}

	finalQuestion := fmt.Sprintf(
		"%s Source text: %s.%s",
		prompt.Prefix,
		question,
		prompt.Postfix,
	)

	embeddings, err := k.embed(ctx, []string{finalQuestion})
	if err != nil {
		return "", fmt.Errorf("unable to embed question: %w", err)
	}
	documents := similaritySearch(chunks, embeddings[0], retrievalChunks)

	request := openai.ChatCompletionRequest{
		Model: k.config.CompletionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"Use the following pieces of context to answer "+
						"the question at the end. If you don't know the "+
						"answer, just say that you don't know, don't try "+
						"to make up an answer.\n\n%s",
					strings.Join(documents, chunkSeparator),
				),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: finalQuestion,
			},
		},
	}
	response, err := k.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func (k *KnowledgeBase) embed(ctx context.Context, texts []string) ([][]float32, error) {
	response, err := k.client.CreateEmbeddings(
		ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: k.config.EmbeddingModel,
		},
	)
	if err != nil {
		return nil, err
	}
	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf(
			"embedding response size mismatch: sent %d, received %d",
			len(texts),
			len(response.Data),
		)
	}
	embeddings := make([][]float32, len(texts))
	for _, data := range response.Data {
		embeddings[data.Index] = data.Embedding
	}
	return embeddings, nil
}

// similaritySearch returns the texts of the limit chunks most similar
// to the query embedding, best match first.
func similaritySearch(chunks []chunk, query []float32, limit int) []string {
	type scored struct {
		text  string
		score float64
	}
	ranked := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		ranked = append(
			ranked,
			scored{text: c.Text, score: cosineSimilarity(c.Embedding, query)},
		)
	}
	sort.SliceStable(
		ranked, func(i, j int) bool {
			return ranked[i].score > ranked[j].score
		},
	)
	if limit > len(ranked) {
		limit = len(ranked)
	}
	documents := make([]string, limit)
	for i := 0; i < limit; i++ {
		documents[i] = ranked[i].text
	}
	return documents
}

func cosineSimilarity(a []float32, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// splitText breaks the knowledge text into chunks of at most chunkSize
// characters along paragraph boundaries, carrying up to chunkOverlap
// trailing characters of each chunk into the next one. Paragraphs
// longer than chunkSize become chunks of their own.
func splitText(raw string) []string {
	paragraphs := strings.Split(raw, chunkSeparator)

	var texts []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		texts = append(
			texts,
			strings.TrimSpace(strings.Join(current, chunkSeparator)),
		)
		// Keep a tail of the chunk as overlap for the next one.
		var overlap []string
		overlapLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			pieceLen := len(current[i]) + len(chunkSeparator)
			if overlapLen+pieceLen > chunkOverlap {
				break
			}
			overlap = append([]string{current[i]}, overlap...)
			overlapLen += pieceLen
		}
		current = overlap
		currentLen = overlapLen
	}

	for _, paragraph := range paragraphs {
		if paragraph == "" {
			continue
		}
		pieceLen := len(paragraph) + len(chunkSeparator)
		if currentLen+pieceLen > chunkSize && currentLen > 0 {
			flush()
		}
		current = append(current, paragraph)
		currentLen += pieceLen
	}
	if len(current) > 0 {
		texts = append(
			texts,
			strings.TrimSpace(strings.Join(current, chunkSeparator)),
		)
	}
	if len(texts) == 0 && strings.TrimSpace(raw) != "" {
		texts = append(texts, strings.TrimSpace(raw))
	}
	return texts
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func md5Hash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
