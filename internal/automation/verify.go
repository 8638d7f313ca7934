package automation

import (
	"context"
	"strings"
	"unicode/utf8"
	"wa-blaster/internal/selectors"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	verifierName   = "DeliveryVerifier"
	verifierTracer = "automation.verify"

	DefaultVerifyRecent = 10
	significantWordLen  = 3
)

// TranscriptEntry is one outgoing bubble, oldest first.
type TranscriptEntry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Delivered bool   `json:"delivered"`
}

// Verifier decides from the transcript whether a message is now visible.
// It is a heuristic: the page never exposes a delivery receipt.
type Verifier struct {
	bridge   *Bridge
	catalog  *selectors.Catalog
	recent   int
	failOpen bool
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewVerifier(bridge *Bridge, catalog *selectors.Catalog, recent int, failOpen bool, logger *zap.Logger) *Verifier {
	if recent <= 0 {
		recent = DefaultVerifyRecent
	}

	return &Verifier{
		bridge:   bridge,
		catalog:  catalog,
		recent:   recent,
		failOpen: failOpen,
		logger:   logger.With(zap.String(logg.Layer, verifierName)),
		tracer:   otel.Tracer(verifierTracer),
	}
}

func (v *Verifier) Transcript(ctx context.Context) ([]TranscriptEntry, error) {
	var entries []TranscriptEntry

	err := v.bridge.Call(ctx, FnTranscript, map[string]any{
		"outgoing":   v.catalog.Set(selectors.RoleOutgoingMessage).Queries,
		"text":       v.catalog.Set(selectors.RoleMessageText).Queries,
		"indicators": v.catalog.Set(selectors.RoleDeliveryIndicator).Queries,
		"limit":      v.recent,
	}, &entries)

	return entries, err
}

// Baseline is the outgoing window seen before a send. The zero value means
// no snapshot could be taken.
type Baseline struct {
	Taken   bool
	Entries []TranscriptEntry
}

// Snapshot records the current outgoing window.
func (v *Verifier) Snapshot(ctx context.Context) Baseline {
	entries, err := v.Transcript(ctx)
	if err != nil {
		return Baseline{}
	}

	return Baseline{Taken: true, Entries: entries}
}

// Verify checks the recent transcript for expected.
func (v *Verifier) Verify(ctx context.Context, expected string) bool {
	return v.VerifySince(ctx, expected, Baseline{})
}

// VerifySince is Verify restricted to bubbles newer than baseline. Without
// a baseline the whole recent window counts.
func (v *Verifier) VerifySince(ctx context.Context, expected string, baseline Baseline) (ok bool) {
	const op = "Verify"
	logger := v.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, v.tracer, logger, op, attribute.Bool("has_baseline", baseline.Taken))
	defer func() {
		step.SetAttributes(attribute.Bool("verified", ok))
		step.End(nil)
	}()

	if strings.TrimSpace(expected) == "" {
		return true
	}

	entries, err := v.Transcript(ctx)
	if err != nil {
		logger.Warn("Transcript scan failed", zap.Error(err), zap.Bool("fail_open", v.failOpen))
		return v.failOpen
	}

	entries = After(entries, baseline)

	for _, entry := range entries {
		if Matches(entry.Text, expected) {
			step.AddEvent("text matched")
			return true
		}
	}

	for _, entry := range entries {
		if entry.Delivered {
			logger.Debug("Delivery indicator found without text match", zap.String("entry_id", entry.ID))
			step.AddEvent("delivery indicator")

			return true
		}
	}

	return false
}

// After returns the entries that were not in baseline. Bubbles are matched
// by id when the page exposes one. Otherwise the old window is aligned by
// text against the start of the new one, which may have shifted as new
// bubbles pushed old ones out.
func After(entries []TranscriptEntry, baseline Baseline) []TranscriptEntry {
	if !baseline.Taken || len(baseline.Entries) == 0 {
		return entries
	}

	if last := baseline.Entries[len(baseline.Entries)-1].ID; last != "" {
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].ID == last {
				return entries[i+1:]
			}
		}

		return entries
	}

	for shift := range baseline.Entries {
		kept := baseline.Entries[shift:]
		if len(kept) <= len(entries) && sameTexts(entries[:len(kept)], kept) {
			return entries[len(kept):]
		}
	}

	return entries
}

func sameTexts(a, b []TranscriptEntry) bool {
	for i := range a {
		if a[i].Text != b[i].Text {
			return false
		}
	}

	return true
}

// Matches reports whether a transcript text shows the expected message:
// either text contains the other after normalization, or at least half of
// the expected significant words appear.
func Matches(transcript, expected string) bool {
	got := normalize(transcript)
	want := normalize(expected)

	if got == "" || want == "" {
		return false
	}

	if strings.Contains(got, want) || strings.Contains(want, got) {
		return true
	}

	var significant []string
	for _, word := range strings.Fields(want) {
		if utf8.RuneCountInString(word) > significantWordLen {
			significant = append(significant, word)
		}
	}

	if len(significant) == 0 {
		return false
	}

	hits := 0
	for _, word := range significant {
		if strings.Contains(got, word) {
			hits++
		}
	}

	return hits*2 >= len(significant)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
