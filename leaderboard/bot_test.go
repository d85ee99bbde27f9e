package leaderboard

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerInteractionCreateRecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	b := &Bot{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	var wg sync.WaitGroup
	handler := b.handlerInteractionCreate(context.Background(), &wg)

	// a command interaction carrying no data panics inside the router;
	// the handler goroutine has to survive it
	handler(
		nil, &discordgo.InteractionCreate{
			Interaction: &discordgo.Interaction{
				ID:   "i1",
				Type: discordgo.InteractionApplicationCommand,
			},
		},
	)
	wg.Wait()

	assert.Contains(t, buf.String(), "panic handling interaction")
}

func TestWithLoggerRoundTrip(t *testing.T) {
	logger := testLogger(t)
	ctx := WithLogger(context.Background(), logger)

	got, ok := ContextLogger(ctx)
	require.True(t, ok)
	assert.Same(t, logger, got)

	_, ok = ContextLogger(context.Background())
	assert.False(t, ok)

	got, ok = ContextLogger(WithLogger(context.Background(), nil))
	require.True(t, ok)
	assert.Same(t, slog.Default(), got)
}
