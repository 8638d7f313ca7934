package automation_test

import (
	"context"
	"errors"
	"testing"
	"wa-blaster/internal/automation"
	"wa-blaster/internal/automation/automationtest"
	"wa-blaster/internal/selectors"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		expected   string
		want       bool
	}{
		{"exact", "hello", "hello", true},
		{"case and spacing", "Hello   World", "hello world", true},
		{"truncated transcript", "Our spring sale starts", "Our spring sale starts tomorrow at nine", true},
		{"transcript adds timestamp", "hello there 10:42", "hello there", true},
		{"half of significant words", "sale tomorrow only", "Huge sale tomorrow for members", true},
		{"too few significant words", "sale ends", "Huge sale tomorrow for members", false},
		{"only short words", "a b c", "hi yo ok", false},
		{"empty transcript", "", "hello", false},
		{"unrelated", "see you later", "invoice attached please review", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, automation.Matches(tt.transcript, tt.expected))
		})
	}
}

func TestVerifyEmptyTextAlwaysSucceeds(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.TranscriptErr = errors.New("boom")
	kit, _ := newKit(t, page)

	assert.True(t, kit.Verifier.Verify(context.Background(), ""))
	assert.True(t, kit.Verifier.Verify(context.Background(), "   "))
	assert.Zero(t, page.Count(automation.FnTranscript))
}

func TestVerifyFindsRecentMessage(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.AddOutgoing("older", false)
	page.AddOutgoing("hello world", false)
	kit, _ := newKit(t, page)

	assert.True(t, kit.Verifier.Verify(context.Background(), "hello world"))
	assert.False(t, kit.Verifier.Verify(context.Background(), "something else entirely"))
}

func TestVerifyIsIdempotent(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.AddOutgoing("hello", false)
	kit, _ := newKit(t, page)

	first := kit.Verifier.Verify(context.Background(), "hello")
	second := kit.Verifier.Verify(context.Background(), "hello")
	assert.Equal(t, first, second)

	first = kit.Verifier.Verify(context.Background(), "goodbye friend")
	second = kit.Verifier.Verify(context.Background(), "goodbye friend")
	assert.Equal(t, first, second)
}

func TestVerifyAcceptsDeliveryIndicator(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.AddOutgoing("[image]", true)
	kit, _ := newKit(t, page)

	assert.True(t, kit.Verifier.Verify(context.Background(), "caption that is not rendered"))
}

func TestVerifySinceIgnoresOlderBubbles(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.AddOutgoing("hello", true)
	kit, _ := newKit(t, page)

	baseline := kit.Verifier.Snapshot(context.Background())
	assert.True(t, baseline.Taken)
	assert.False(t, kit.Verifier.VerifySince(context.Background(), "hello", baseline))

	page.AddOutgoing("hello", false)
	assert.True(t, kit.Verifier.VerifySince(context.Background(), "hello", baseline))
}

func TestVerifyFailOpenOnScanError(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.TranscriptErr = errors.New("detached")
	kit, _ := newKit(t, page)

	assert.True(t, kit.Verifier.Verify(context.Background(), "hello"))

	strict := automation.NewVerifier(kit.Bridge, selectors.Default(), 10, false, zaptest.NewLogger(t))
	assert.False(t, strict.Verify(context.Background(), "hello"))
}

func TestAfter(t *testing.T) {
	entries := []automation.TranscriptEntry{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	upTo := func(e ...automation.TranscriptEntry) automation.Baseline {
		return automation.Baseline{Taken: true, Entries: e}
	}

	assert.Equal(t, entries, automation.After(entries, automation.Baseline{}))
	assert.Equal(t, entries, automation.After(entries, upTo()))
	assert.Equal(t, entries[2:], automation.After(entries, upTo(entries[:2]...)))
	assert.Empty(t, automation.After(entries, upTo(entries...)))
	assert.Equal(t, entries, automation.After(entries, upTo(automation.TranscriptEntry{ID: "gone"})))
}

func TestAfterWithoutIDs(t *testing.T) {
	bubble := func(texts ...string) []automation.TranscriptEntry {
		out := make([]automation.TranscriptEntry, 0, len(texts))
		for _, text := range texts {
			out = append(out, automation.TranscriptEntry{Text: text})
		}

		return out
	}

	tests := []struct {
		name   string
		before []automation.TranscriptEntry
		now    []automation.TranscriptEntry
		want   []automation.TranscriptEntry
	}{
		{
			name:   "nothing new",
			before: bubble("a", "b"),
			now:    bubble("a", "b"),
			want:   bubble(),
		},
		{
			name:   "appended",
			before: bubble("a", "b"),
			now:    bubble("a", "b", "c"),
			want:   bubble("c"),
		},
		{
			name:   "window shifted",
			before: bubble("a", "b", "hello"),
			now:    bubble("b", "hello", "hello"),
			want:   bubble("hello"),
		},
		{
			name:   "window replaced",
			before: bubble("a", "b"),
			now:    bubble("x", "y"),
			want:   bubble("x", "y"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := automation.After(tt.now, automation.Baseline{Taken: true, Entries: tt.before})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifySinceWithoutIDsIgnoresDeliveredOldBubble(t *testing.T) {
	page := automationtest.NewPage(selectors.Default())
	page.HideIDs = true
	page.AddOutgoing("yesterday's note", true)
	kit, _ := newKit(t, page)
	ctx := context.Background()

	baseline := kit.Verifier.Snapshot(ctx)
	assert.False(t, kit.Verifier.VerifySince(ctx, "hello", baseline))

	page.AddOutgoing("hello", false)
	assert.True(t, kit.Verifier.VerifySince(ctx, "hello", baseline))
}
