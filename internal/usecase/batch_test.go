package usecase_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"wa-blaster/internal/automation"
	"wa-blaster/internal/automation/automationtest"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/selectors"
	"wa-blaster/internal/usecase"
	"wa-blaster/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRunBatchValidAndUnreachableNumbers(t *testing.T) {
	h := newHarness(t)
	h.markUnreachable("15551230002")

	navigationsBeforeDelay := -1
	h.sleeps.OnSleep(func(d time.Duration) {
		if d == 2*time.Second+testDelayBuffer {
			navigationsBeforeDelay = navigations(h.page.Calls())
		}
	})

	report, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind: entity.BatchKindBulk,
		Recipients: []entity.Recipient{
			entity.NumberRecipient("15551230001"),
			entity.NumberRecipient("15551230002"),
		},
		Message:      "hello",
		DelaySeconds: 2,
	})

	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.Equal(t, entity.OutcomeSuccess, report.Results[0].Status)
	assert.Equal(t, "15551230001", report.Results[0].Recipient.Value)
	assert.Equal(t, automation.StrategyButtonClick, report.Results[0].StrategyUsed)

	assert.Equal(t, entity.OutcomeInvalid, report.Results[1].Status)
	assert.Equal(t, "15551230002", report.Results[1].Recipient.Value)

	assert.Equal(t, 1, navigationsBeforeDelay)
	assert.GreaterOrEqual(t, h.sleeps.Total(), 2*time.Second)
	assert.Equal(t, 1, h.page.Count(automation.FnExecInsert))
	assert.Equal(t, entity.Counts{Success: 1, Invalid: 1}, report.Counts)

	require.Len(t, h.store.Reports(), 1)
	assert.Equal(t, report.ID, h.store.Reports()[0].ID)
}

func TestRunBatchComposeMissing(t *testing.T) {
	h := newHarness(t)
	h.page.Hide(selectors.RoleComposeBox)

	report, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind:       entity.BatchKindBulk,
		Recipients: []entity.Recipient{entity.NumberRecipient("15551230001")},
		Message:    "hello",
	})

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, entity.OutcomeFailed, report.Results[0].Status)
	assert.Equal(t, "Message input not found", report.Results[0].Error)
	assert.Zero(t, h.page.Count(automation.FnExecInsert))
}

func TestRunBatchCorruptAttachmentFailsBeforeText(t *testing.T) {
	h := newHarness(t)

	report, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind:       entity.BatchKindBulk,
		Recipients: []entity.Recipient{entity.NumberRecipient("15551230001")},
		Message:    "see attached",
		Attachment: &entity.Attachment{
			Name:      "broken.png",
			MimeType:  "image/png",
			SizeBytes: 10,
			DataURI:   "data:image/png;base64,@@@not base64@@@",
		},
	})

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, entity.OutcomeFailed, report.Results[0].Status)
	assert.Contains(t, strings.ToLower(report.Results[0].Error), "attach")
	assert.Zero(t, h.page.Count(automation.FnExecInsert))
	assert.Zero(t, h.page.Count(automation.FnAssignContent))
	assert.Empty(t, h.page.Files())
}

func TestRunBatchAttachmentWithCaption(t *testing.T) {
	h := newHarness(t)

	report, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind:       entity.BatchKindBulk,
		Recipients: []entity.Recipient{entity.NumberRecipient("15551230001")},
		Message:    "quarterly report",
		Attachment: entity.NewAttachment("report.pdf", "application/pdf", []byte("%PDF-1.4")),
	})

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, entity.OutcomeSuccess, report.Results[0].Status)
	require.Len(t, h.page.Files(), 1)
	assert.Equal(t, "report.pdf", h.page.Files()[0].Name)
	require.Len(t, h.page.Transcript(), 1)
	assert.Equal(t, "quarterly report", h.page.Transcript()[0].Text)
}

func TestRunBatchAttachmentOnly(t *testing.T) {
	h := newHarness(t)

	report, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind:       entity.BatchKindBulk,
		Recipients: []entity.Recipient{entity.NumberRecipient("15551230001")},
		Attachment: entity.NewAttachment("photo.png", "image/png", []byte{0x89, 'P', 'N', 'G'}),
	})

	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSuccess, report.Results[0].Status)
	assert.Zero(t, h.page.Count(automation.FnExecInsert))
	assert.Len(t, h.page.Files(), 1)
}

func TestRunBatchOneOutcomePerRecipientInOrder(t *testing.T) {
	h := newHarness(t)
	h.page.ButtonSends = false
	h.page.EnterSends = false
	h.page.ScriptSends = false

	recipients := []entity.Recipient{
		entity.NumberRecipient("15551230001"),
		entity.NumberRecipient("15551230002"),
		entity.NumberRecipient("15551230003"),
	}

	report, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind:         entity.BatchKindBulk,
		Recipients:   recipients,
		Message:      "hello",
		DelaySeconds: 1,
	})

	require.NoError(t, err)
	require.Len(t, report.Results, len(recipients))

	for i, outcome := range report.Results {
		assert.Equal(t, recipients[i], outcome.Recipient)
		assert.Equal(t, entity.OutcomeFailed, outcome.Status)
		assert.Equal(t, []string{"button-click", "enter-key", "script-injection"}, outcome.AttemptedMethods)
	}

	assert.Equal(t, entity.Counts{Failed: 3}, report.Counts)
	assert.Equal(t, "Failed to send messages: 3 failed, 0 invalid numbers", report.Summary())
}

func TestRunBatchSelectsGroupsByIDThenName(t *testing.T) {
	h := newHarness(t)
	h.page.SetRows(
		automationtest.Row{ID: "g1", Title: "Team", Group: true},
		automationtest.Row{ID: "g2", Title: "Family", Group: true},
	)

	report, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind: entity.BatchKindGroup,
		Recipients: []entity.Recipient{
			entity.GroupRecipient("g1", "Team"),
			entity.GroupRecipient("group-synthetic-7", "family"),
			entity.GroupRecipient("g9", "Nowhere"),
		},
		Message: "meeting at 5",
	})

	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, entity.OutcomeSuccess, report.Results[0].Status)
	assert.Equal(t, entity.OutcomeSuccess, report.Results[1].Status)
	assert.Equal(t, entity.OutcomeFailed, report.Results[2].Status)
	assert.Contains(t, report.Results[2].Error, "chat not found")
	assert.Equal(t, []string{"Team", "Family"}, h.page.Selected())
	assert.Zero(t, navigations(h.page.Calls()))
}

func TestRunBatchGroupFallsBackToWelcomeMessage(t *testing.T) {
	h := newHarness(t)
	h.page.SetRows(automationtest.Row{ID: "g1", Title: "Team", Group: true})
	_, err := h.settings.UpdateWelcomeMessage(context.Background(), "Hi {name}")
	require.NoError(t, err)

	report, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind:       entity.BatchKindGroup,
		Recipients: []entity.Recipient{entity.GroupRecipient("g1", "Team")},
	})

	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeSuccess, report.Results[0].Status)
	require.Len(t, h.page.Transcript(), 1)
	assert.Equal(t, "Hi Team", h.page.Transcript()[0].Text)
}

func TestRunBatchNotAuthenticated(t *testing.T) {
	h := newHarness(t)
	h.page.Hide(selectors.RoleChatList)
	h.page.Show(selectors.RoleLoginQR)

	report, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind:       entity.BatchKindBulk,
		Recipients: []entity.Recipient{entity.NumberRecipient("15551230001")},
		Message:    "hello",
	})

	require.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, apperr.CodeNotAuthenticated, apperr.CodeOf(err))
	assert.Zero(t, navigations(h.page.Calls()))
	assert.Empty(t, h.store.Reports())
}

func TestRunBatchRejectsWhileBusy(t *testing.T) {
	h := newHarness(t)

	release, ok := h.gate.TryAcquire("auto-reply")
	require.True(t, ok)
	defer release()

	_, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind:       entity.BatchKindBulk,
		Recipients: []entity.Recipient{entity.NumberRecipient("15551230001")},
		Message:    "hello",
	})

	require.Error(t, err)
	assert.Equal(t, apperr.CodeBusy, apperr.CodeOf(err))
	assert.Empty(t, h.page.Calls())
}

func TestRunBatchCancelledAtCheckpoint(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.sleeps.OnSleep(func(d time.Duration) {
		if d == 2*time.Second+testDelayBuffer {
			cancel()
		}
	})

	report, err := h.batches.RunBatch(ctx, entity.BatchRequest{
		Kind: entity.BatchKindBulk,
		Recipients: []entity.Recipient{
			entity.NumberRecipient("15551230001"),
			entity.NumberRecipient("15551230002"),
			entity.NumberRecipient("15551230003"),
		},
		Message:      "hello",
		DelaySeconds: 2,
	})

	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, entity.OutcomeSuccess, report.Results[0].Status)
	assert.Equal(t, entity.Failed(entity.NumberRecipient("15551230002"), "cancelled"), report.Results[1])
	assert.Equal(t, entity.Failed(entity.NumberRecipient("15551230003"), "cancelled"), report.Results[2])
	assert.Equal(t, 1, navigations(h.page.Calls()))
	assert.Len(t, h.store.Reports(), 1)
}

func TestRunBatchCancelDuringSendKeepsOutcome(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the settle pause follows the click, so the message is already out
	h.sleeps.OnSleep(func(d time.Duration) {
		if d == testOptions().Settle {
			cancel()
		}
	})

	report, err := h.batches.RunBatch(ctx, entity.BatchRequest{
		Kind: entity.BatchKindBulk,
		Recipients: []entity.Recipient{
			entity.NumberRecipient("15551230001"),
			entity.NumberRecipient("15551230002"),
		},
		Message:      "hello",
		DelaySeconds: 2,
	})

	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	first := report.Results[0]
	assert.Equal(t, entity.OutcomeSuccess, first.Status)
	assert.Equal(t, automation.StrategyButtonClick, first.StrategyUsed)
	assert.Empty(t, first.Error)

	assert.Equal(t, entity.Failed(entity.NumberRecipient("15551230002"), "cancelled"), report.Results[1])
	assert.Equal(t, 1, navigations(h.page.Calls()))
	assert.Equal(t, entity.Counts{Success: 1, Failed: 1}, report.Counts)
}

func TestRunBatchValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   entity.BatchRequest
		field string
	}{
		{
			name:  "no recipients",
			req:   entity.BatchRequest{Kind: entity.BatchKindBulk, Message: "hi"},
			field: "recipients",
		},
		{
			name: "no text and no attachment",
			req: entity.BatchRequest{
				Kind:       entity.BatchKindBulk,
				Recipients: []entity.Recipient{entity.NumberRecipient("15551230001")},
				Message:    "  ",
			},
			field: "message",
		},
		{
			name: "unsupported attachment",
			req: entity.BatchRequest{
				Kind:       entity.BatchKindBulk,
				Recipients: []entity.Recipient{entity.NumberRecipient("15551230001")},
				Attachment: entity.NewAttachment("a.zip", "application/zip", []byte("PK")),
			},
			field: "attachment",
		},
		{
			name: "negative delay",
			req: entity.BatchRequest{
				Kind:         entity.BatchKindBulk,
				Recipients:   []entity.Recipient{entity.NumberRecipient("15551230001")},
				Message:      "hi",
				DelaySeconds: -1,
			},
			field: "delaySeconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.batches.RunBatch(context.Background(), tt.req)

			require.Error(t, err)
			assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Metadata[apperr.MetaField])
			assert.Empty(t, h.page.Calls())
		})
	}
}

func TestRunBatchReopensClosedTab(t *testing.T) {
	h := newHarness(t)

	h.sleeps.OnSleep(func(d time.Duration) {
		if d == testDelayBuffer {
			h.page.Close()
		}
	})

	report, err := h.batches.RunBatch(context.Background(), entity.BatchRequest{
		Kind: entity.BatchKindBulk,
		Recipients: []entity.Recipient{
			entity.NumberRecipient("15551230001"),
			entity.NumberRecipient("15551230002"),
		},
		Message: "hello",
	})

	require.NoError(t, err)
	assert.Equal(t, entity.Counts{Success: 2}, report.Counts)
	assert.Equal(t, 1, h.browser.Opened())
}

func TestRunBatchRateCeilingStopsAtDeadline(t *testing.T) {
	h := newHarness(t)
	limited := usecase.NewOrchestrator(usecase.OrchestratorParams{
		Sessions:         h.sessions,
		Gate:             h.gate,
		Settings:         h.store,
		Reports:          h.store,
		DelayBuffer:      testDelayBuffer,
		RecipientTimeout: time.Minute,
		MaxPerMinute:     1,
		Sleep:            h.sleeps.Sleep,
		Logger:           zaptest.NewLogger(t),
	})

	// one token per minute: the second send cannot be admitted before the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := limited.RunBatch(ctx, entity.BatchRequest{
		Kind: entity.BatchKindBulk,
		Recipients: []entity.Recipient{
			entity.NumberRecipient("15551230001"),
			entity.NumberRecipient("15551230002"),
		},
		Message: "hello",
	})

	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, entity.OutcomeSuccess, report.Results[0].Status)
	assert.Equal(t, entity.Failed(entity.NumberRecipient("15551230002"), "cancelled"), report.Results[1])
	assert.Equal(t, 1, navigations(h.page.Calls()))
}
