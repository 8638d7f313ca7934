package usecase_test

import (
	"context"
	"testing"
	"wa-blaster/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newResponder(t *testing.T, h *harness) *usecase.AutoResponder {
	t.Helper()

	return usecase.NewAutoResponder(usecase.AutoResponderParams{
		Sessions: h.sessions,
		Gate:     h.gate,
		Settings: h.store,
		Logger:   zaptest.NewLogger(t),
	})
}

func enableAutoReply(t *testing.T, h *harness, template string) {
	t.Helper()

	_, err := h.settings.ToggleAutoReply(context.Background(), true)
	require.NoError(t, err)
	_, err = h.settings.UpdateAutoReplyTemplate(context.Background(), template)
	require.NoError(t, err)
}

func TestAutoReplyDisabledDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.page.AddIncoming("hello?")
	responder := newResponder(t, h)

	result, err := responder.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, usecase.TickDisabled, result)
	assert.Empty(t, h.page.Calls())
}

func TestAutoReplyAnswersOnlyNewMessages(t *testing.T) {
	h := newHarness(t)
	enableAutoReply(t, h, "Auto: {message}")
	responder := newResponder(t, h)
	ctx := context.Background()

	result, err := responder.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.TickIdle, result)

	h.page.AddIncoming("old message")
	result, err = responder.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.TickPrimed, result)
	assert.Empty(t, h.page.Transcript())

	h.page.AddIncoming("what is the price?")
	result, err = responder.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.TickReplied, result)
	require.Len(t, h.page.Transcript(), 1)
	assert.Equal(t, "Auto: what is the price?", h.page.Transcript()[0].Text)

	result, err = responder.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.TickIdle, result)
	assert.Len(t, h.page.Transcript(), 1)
}

func TestAutoReplyYieldsToBatch(t *testing.T) {
	h := newHarness(t)
	enableAutoReply(t, h, "Auto: {message}")
	responder := newResponder(t, h)

	release, ok := h.gate.TryAcquire("batch")
	require.True(t, ok)
	defer release()

	result, err := responder.Tick(context.Background())

	require.NoError(t, err)
	assert.Equal(t, usecase.TickBusy, result)
	assert.Empty(t, h.page.Calls())
}

func TestAutoReplyRunStopsWithContext(t *testing.T) {
	h := newHarness(t)
	responder := newResponder(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		responder.Run(ctx)
		close(done)
	}()

	cancel()
	<-done

	assert.Empty(t, h.page.Calls())
}
